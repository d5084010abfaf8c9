package raffle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSnapshotStore guards a SnapshotSaver with a circuit breaker so that an
// unavailable Redis fails fast instead of stalling every auto-save
type BreakerSnapshotStore struct {
	store SnapshotSaver

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker
	logger  Logger
	config  *CircuitBreakerConfig
}

// NewBreakerSnapshotStore wraps store. A disabled config returns a pass-through wrapper.
func NewBreakerSnapshotStore(store SnapshotSaver, config *CircuitBreakerConfig, logger Logger) *BreakerSnapshotStore {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}

	b := &BreakerSnapshotStore{
		store:  store,
		logger: logger,
		config: config,
	}
	if config.Enabled {
		b.breaker = b.newBreaker()
	}
	return b
}

func (b *BreakerSnapshotStore) newBreaker() *gobreaker.CircuitBreaker {
	config := b.config
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= config.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		// A missing snapshot is an answer, not a failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSnapshotNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if config.OnStateChange {
				b.logger.Info("Circuit breaker '%s' state changed from %s to %s", name, from, to)
			}
		},
	})
}

func (b *BreakerSnapshotStore) executeWithBreaker(operation func() (any, error)) (any, error) {
	b.mu.RLock()
	breaker := b.breaker
	b.mu.RUnlock()

	if breaker == nil {
		return operation()
	}

	result, err := breaker.Execute(operation)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return nil, ErrCircuitBreakerOpen.WithDetails("circuit breaker is open, snapshot requests are being rejected")
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrServiceUnavailable.WithDetails("too many requests while the circuit breaker is half-open")
	}
	return result, err
}

// Save writes a snapshot through the breaker
func (b *BreakerSnapshotStore) Save(ctx context.Context, snapshot *SessionSnapshot) error {
	_, err := b.executeWithBreaker(func() (any, error) {
		return nil, b.store.Save(ctx, snapshot)
	})
	return err
}

// Load reads a snapshot through the breaker
func (b *BreakerSnapshotStore) Load(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	result, err := b.executeWithBreaker(func() (any, error) {
		return b.store.Load(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}

	snapshot, _ := result.(*SessionSnapshot)
	return snapshot, nil
}

// Delete removes a snapshot through the breaker
func (b *BreakerSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	_, err := b.executeWithBreaker(func() (any, error) {
		return nil, b.store.Delete(ctx, sessionID)
	})
	return err
}

// State returns the breaker state: closed, half-open, open or disabled
func (b *BreakerSnapshotStore) State() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.breaker == nil {
		return "disabled"
	}

	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Counts returns the breaker's request counters
func (b *BreakerSnapshotStore) Counts() gobreaker.Counts {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.breaker == nil {
		return gobreaker.Counts{}
	}
	return b.breaker.Counts()
}

// Reset recreates the breaker, since gobreaker has no reset of its own
func (b *BreakerSnapshotStore) Reset() {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	b.breaker = b.newBreaker()
	b.mu.Unlock()

	b.logger.Info("Circuit breaker '%s' has been reset", b.config.Name)
}

// HealthCheck reports the breaker's condition as a flat map for health endpoints
func (b *BreakerSnapshotStore) HealthCheck() map[string]any {
	result := map[string]any{
		"circuit_breaker_enabled": b.config.Enabled,
		"timestamp":               time.Now().Unix(),
	}

	state := b.State()
	result["state"] = state
	if state == "disabled" {
		result["healthy"] = true
		return result
	}

	counts := b.Counts()
	result["requests"] = counts.Requests
	result["total_successes"] = counts.TotalSuccesses
	result["total_failures"] = counts.TotalFailures
	result["consecutive_failures"] = counts.ConsecutiveFailures

	if counts.Requests > 0 {
		result["failure_rate"] = float64(counts.TotalFailures) / float64(counts.Requests)
	} else {
		result["failure_rate"] = 0.0
	}

	healthy := true
	switch state {
	case "open":
		healthy = false
	case "half-open":
		healthy = counts.ConsecutiveFailures <= 2
	}
	result["healthy"] = healthy
	return result
}

// stateToNumeric maps a breaker state to the gauge value exported as metrics
func stateToNumeric(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
