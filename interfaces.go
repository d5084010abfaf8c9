package raffle

import "context"

// ConfigChangeFunc receives the current category configuration after a change
type ConfigChangeFunc func(categories []PrizeCategory)

// AssignmentsFunc receives the flattened ticket-level assignment list after a change
type AssignmentsFunc func(assignments []GeneratedPrizeAssignment)

// RandomSource produces uniformly distributed integers
type RandomSource interface {
	// GenerateInRange returns a number within [min, max] (inclusive)
	GenerateInRange(min, max int) (int, error)
}

// NumberAllocator hands out unique ticket numbers from a pool
type NumberAllocator interface {
	// Allocate returns a fresh number in [1, max] or ErrPoolExhausted
	Allocate(max int) (int, error)

	// Release makes n available again
	Release(n int) bool

	// Reserve marks a specific number as used
	Reserve(n int) bool

	// Clear forgets every used number
	Clear()

	// Used returns how many numbers are currently held
	Used() int
}

// SnapshotSaver persists and restores editing session snapshots
type SnapshotSaver interface {
	Save(ctx context.Context, snapshot *SessionSnapshot) error
	Load(ctx context.Context, sessionID string) (*SessionSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}
