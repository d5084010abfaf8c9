package raffle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionSnapshot is a draft of one editing session: the configuration and the
// assignments generated for it
type SessionSnapshot struct {
	SessionID   string                     `json:"session_id"`
	PoolSize    int                        `json:"pool_size"`
	Categories  []PrizeCategory            `json:"categories"`
	Assignments []GeneratedPrizeAssignment `json:"assignments"`
	SavedAt     time.Time                  `json:"saved_at"`
}

// Validate checks that the snapshot can be restored: known categories with
// consistent quantities, and distinct in-range ticket numbers owned by active categories
func (s *SessionSnapshot) Validate() error {
	if s.SessionID == "" {
		return ErrInvalidParameters.WithDetails("snapshot session id is empty")
	}
	if s.PoolSize < 0 {
		return ErrInvalidPoolSize
	}

	active := make(map[CategoryID]bool, len(s.Categories))
	for i := range s.Categories {
		c := &s.Categories[i]
		if err := c.Validate(); err != nil {
			return ErrSnapshotCorrupted.WithDetails(fmt.Sprintf("category %q", c.ID)).WithCause(err)
		}
		if _, dup := active[c.ID]; dup {
			return ErrSnapshotCorrupted.WithDetails(fmt.Sprintf("duplicate category %q", c.ID))
		}
		active[c.ID] = c.Active
	}

	seen := make(map[int]struct{}, len(s.Assignments))
	for i := range s.Assignments {
		a := &s.Assignments[i]
		n := a.Number()
		if n < 1 || n > s.PoolSize {
			return ErrSnapshotCorrupted.WithDetails(fmt.Sprintf("ticket %q outside pool of %d", a.TicketNumber, s.PoolSize))
		}
		if _, dup := seen[n]; dup {
			return ErrSnapshotCorrupted.WithDetails(fmt.Sprintf("ticket %q assigned twice", a.TicketNumber))
		}
		if !active[a.CategoryID] {
			return ErrSnapshotCorrupted.WithDetails(fmt.Sprintf("ticket %q held by inactive category %q", a.TicketNumber, a.CategoryID))
		}
		seen[n] = struct{}{}
	}
	return nil
}

// Snapshot captures the engine state for later restoration
func (e *AllocationEngine) Snapshot() *SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return &SessionSnapshot{
		SessionID:   e.sessionID,
		PoolSize:    e.poolSize,
		Categories:  CloneCategories(e.categories),
		Assignments: e.resultLocked().Assignments,
		SavedAt:     time.Now(),
	}
}

// Restore replaces the engine state with a snapshot. The ticket numbers in the
// snapshot are adopted as-is, so a restored session keeps its draw.
func (e *AllocationEngine) Restore(snapshot *SessionSnapshot) error {
	if snapshot == nil {
		return ErrInvalidParameters
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}

	categories := DefaultCategories()
	for _, c := range snapshot.Categories {
		for i := range categories {
			if categories[i].ID == c.ID {
				categories[i] = c.Clone()
			}
		}
	}

	byCategory := make(map[CategoryID][]GeneratedPrizeAssignment)
	for _, a := range snapshot.Assignments {
		byCategory[a.CategoryID] = append(byCategory[a.CategoryID], a)
	}

	e.mu.Lock()
	e.sessionID = snapshot.SessionID
	e.poolSize = snapshot.PoolSize
	e.watcher.Observe(snapshot.PoolSize)
	e.categories = categories
	e.materializer.Reset()
	e.results = make(map[CategoryID]CategoryResult)

	for i := range e.categories {
		c := &e.categories[i]
		if !c.Active {
			continue
		}

		assignments := byCategory[c.ID]
		numbers := make([]int, len(assignments))
		for j := range assignments {
			numbers[j] = assignments[j].Number()
		}
		e.materializer.Adopt(c.ID, numbers)

		requested := c.Demand()
		e.results[c.ID] = CategoryResult{
			CategoryID:  c.ID,
			Assignments: append([]GeneratedPrizeAssignment{}, assignments...),
			Requested:   requested,
			Generated:   len(assignments),
			Shortfall:   max(0, requested-len(assignments)),
		}
	}
	snap := e.snapshotLocked()
	logger := e.logger
	e.mu.Unlock()

	logger.Info("Restored session %s: pool=%d, assignments=%d",
		snapshot.SessionID, snapshot.PoolSize, len(snapshot.Assignments))
	e.notifier.Schedule(snap)
	return nil
}

// SnapshotStore keeps session snapshots in Redis under SnapshotKeyPrefix + session id
type SnapshotStore struct {
	redisClient *redis.Client
	logger      Logger
	ttl         time.Duration
	recovery    *ErrorRecovery
}

// NewSnapshotStore creates a store with default TTL and retry settings
func NewSnapshotStore(redisClient *redis.Client, logger Logger) *SnapshotStore {
	return NewSnapshotStoreWithConfig(redisClient, DefaultSnapshotConfig(), logger)
}

// NewSnapshotStoreWithConfig creates a store with custom TTL and retry settings
func NewSnapshotStoreWithConfig(redisClient *redis.Client, config *SnapshotConfig, logger Logger) *SnapshotStore {
	if logger == nil {
		logger = NewSilentLogger()
	}
	if config == nil {
		config = DefaultSnapshotConfig()
	}

	handler := NewErrorHandlerWithDelay(logger, config.RetryInterval)
	return &SnapshotStore{
		redisClient: redisClient,
		logger:      logger,
		ttl:         config.TTL,
		recovery:    NewErrorRecovery(handler, config.RetryAttempts, logger),
	}
}

// SnapshotKey returns the Redis key of a session
func SnapshotKey(sessionID string) string {
	return SnapshotKeyPrefix + sessionID
}

// ParseSnapshotKey extracts the session id from a snapshot key
func ParseSnapshotKey(key string) (string, error) {
	if !strings.HasPrefix(key, SnapshotKeyPrefix) {
		return "", fmt.Errorf("invalid snapshot key format: missing prefix")
	}

	sessionID := strings.TrimPrefix(key, SnapshotKeyPrefix)
	if sessionID == "" {
		return "", fmt.Errorf("invalid snapshot key format: empty session id")
	}
	return sessionID, nil
}

func serializeSnapshot(snapshot *SessionSnapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, ErrInvalidParameters
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, ErrSerializationFailed.WithCause(err)
	}
	if len(data) > MaxSnapshotSize {
		return nil, ErrSerializationFailed.WithDetails(fmt.Sprintf(
			"snapshot size (%d bytes) exceeds maximum allowed size (%d bytes): session=%s, assignments=%d",
			len(data), MaxSnapshotSize, snapshot.SessionID, len(snapshot.Assignments)))
	}
	return data, nil
}

func deserializeSnapshot(data []byte) (*SessionSnapshot, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParameters
	}
	if len(data) > MaxSnapshotSize {
		return nil, ErrDeserializationFailed.WithDetails(fmt.Sprintf("snapshot size (%d bytes) exceeds maximum", len(data)))
	}

	var snapshot SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, ErrDeserializationFailed.WithCause(err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, ErrSnapshotCorrupted.WithCause(err)
	}
	return &snapshot, nil
}

// redisError maps transient go-redis failures to ErrRedisTimeout or
// ErrRedisConnectionFailed; other errors are returned unchanged
func redisError(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return ErrRedisTimeout.WithDetails(err.Error()).WithCause(err)
	case errors.Is(err, redis.ErrClosed), IsRetryableError(err):
		return ErrRedisConnectionFailed.WithDetails(err.Error()).WithCause(err)
	}
	return err
}

// Save writes the snapshot with the store TTL
func (s *SnapshotStore) Save(ctx context.Context, snapshot *SessionSnapshot) error {
	data, err := serializeSnapshot(snapshot)
	if err != nil {
		s.logger.Error("Failed to serialize session snapshot: %v", err)
		return err
	}

	key := SnapshotKey(snapshot.SessionID)
	start := time.Now()
	s.logger.Debug("Saving session snapshot: key=%s, size=%d bytes, ttl=%v", key, len(data), s.ttl)

	ctx = ContextWithSessionID(ctx, snapshot.SessionID)
	err = s.recovery.ExecuteWithRetry(ctx, func() error {
		return redisError(s.redisClient.Set(ctx, key, data, s.ttl).Err())
	})
	if err != nil {
		return ErrSnapshotSaveFailure.WithSessionID(snapshot.SessionID).WithOperation("save").WithCause(err)
	}

	s.logger.Debug("Saved session snapshot: key=%s, assignments=%d, elapsed=%v",
		key, len(snapshot.Assignments), time.Since(start))
	return nil
}

// Load reads a snapshot; ErrSnapshotNotFound when the session has none
func (s *SnapshotStore) Load(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	if sessionID == "" {
		return nil, ErrInvalidParameters.WithDetails("empty session id")
	}

	key := SnapshotKey(sessionID)
	s.logger.Debug("Loading session snapshot: key=%s", key)

	var data []byte
	missing := false
	ctx = ContextWithSessionID(ctx, sessionID)
	err := s.recovery.ExecuteWithRetry(ctx, func() error {
		var getErr error
		data, getErr = s.redisClient.Get(ctx, key).Bytes()
		if errors.Is(getErr, redis.Nil) {
			missing = true
			return nil
		}
		return redisError(getErr)
	})
	if err != nil {
		return nil, ErrSnapshotLoadFailure.WithSessionID(sessionID).WithOperation("load").WithCause(err)
	}
	if missing {
		return nil, ErrSnapshotNotFound.WithSessionID(sessionID)
	}

	snapshot, err := deserializeSnapshot(data)
	if err != nil {
		s.logger.Error("Failed to decode session snapshot: key=%s, size=%d bytes: %v", key, len(data), err)
		return nil, err
	}
	return snapshot, nil
}

// Delete removes a snapshot; deleting a missing session is not an error
func (s *SnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidParameters.WithDetails("empty session id")
	}

	key := SnapshotKey(sessionID)
	var removed int64
	ctx = ContextWithSessionID(ctx, sessionID)
	err := s.recovery.ExecuteWithRetry(ctx, func() error {
		var delErr error
		removed, delErr = s.redisClient.Del(ctx, key).Result()
		return redisError(delErr)
	})
	if err != nil {
		return ErrSnapshotSaveFailure.WithSessionID(sessionID).WithOperation("delete").WithCause(err)
	}

	s.logger.Debug("Deleted session snapshot: key=%s, removed=%d", key, removed)
	return nil
}

// Sessions lists the session ids that currently have a snapshot
func (s *SnapshotStore) Sessions(ctx context.Context) ([]string, error) {
	var (
		cursor   uint64
		sessions []string
	)
	for {
		keys, next, err := s.redisClient.Scan(ctx, cursor, SnapshotKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, ErrSnapshotLoadFailure.WithOperation("scan").WithCause(redisError(err))
		}
		for _, key := range keys {
			if id, err := ParseSnapshotKey(key); err == nil {
				sessions = append(sessions, id)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return sessions, nil
}

// TTL returns the remaining lifetime of a session snapshot
func (s *SnapshotStore) TTL(ctx context.Context, sessionID string) (time.Duration, error) {
	ttl, err := s.redisClient.TTL(ctx, SnapshotKey(sessionID)).Result()
	if err != nil {
		return 0, ErrSnapshotLoadFailure.WithSessionID(sessionID).WithOperation("ttl").WithCause(redisError(err))
	}
	if ttl == -2 {
		return 0, ErrSnapshotNotFound.WithSessionID(sessionID)
	}
	return ttl, nil
}

// AutoSaver writes a snapshot to a SnapshotSaver after every published configuration change
type AutoSaver struct {
	saver  SnapshotSaver
	logger Logger

	mu      sync.Mutex
	saves   int
	lastErr error
}

// AutoSave registers an AutoSaver on engine. Saves run on the notifier's
// publication path and use ctx for every write.
func AutoSave(ctx context.Context, engine *AllocationEngine, saver SnapshotSaver, logger Logger) *AutoSaver {
	if logger == nil {
		logger = NewSilentLogger()
	}

	a := &AutoSaver{saver: saver, logger: logger}
	engine.OnConfigChange(func([]PrizeCategory) {
		a.save(ctx, engine.Snapshot())
	})
	return a
}

func (a *AutoSaver) save(ctx context.Context, snapshot *SessionSnapshot) {
	err := a.saver.Save(ctx, snapshot)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastErr = err
	if err != nil {
		a.logger.Error("Auto-save failed for session %s: %v", snapshot.SessionID, err)
		return
	}
	a.saves++
}

// LastError returns the error of the most recent save, nil if it succeeded
func (a *AutoSaver) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.lastErr
}

// Saves returns how many snapshots were saved successfully
func (a *AutoSaver) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.saves
}
