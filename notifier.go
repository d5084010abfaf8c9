package raffle

import (
	"sync"
	"time"
)

// ChangeSnapshot is what the notifier publishes after a mutation
type ChangeSnapshot struct {
	Categories  []PrizeCategory
	Assignments []GeneratedPrizeAssignment
}

// ChangeNotifier republishes engine state to the surrounding application.
//
// Publication is deferred by delay so that several mutations made during one
// logical edit collapse into one notification: a newer Schedule replaces a pending
// snapshot and restarts the timer. A zero delay publishes synchronously.
type ChangeNotifier struct {
	delay   time.Duration
	logger  Logger
	monitor *AllocationMonitor

	mu            sync.Mutex
	timer         *time.Timer
	pending       *ChangeSnapshot
	generation    uint64
	closed        bool
	onConfig      []ConfigChangeFunc
	onAssignments []AssignmentsFunc

	publishMu sync.Mutex // held from pending handoff through callback delivery
}

// NewChangeNotifier creates a notifier with the given debounce delay
func NewChangeNotifier(delay time.Duration, logger Logger, monitor *AllocationMonitor) *ChangeNotifier {
	if logger == nil {
		logger = NewSilentLogger()
	}
	if delay < 0 {
		delay = 0
	}
	return &ChangeNotifier{
		delay:   delay,
		logger:  logger,
		monitor: monitor,
	}
}

// OnConfigChange registers a category-configuration listener
func (n *ChangeNotifier) OnConfigChange(fn ConfigChangeFunc) {
	if fn == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.onConfig = append(n.onConfig, fn)
}

// OnAssignmentsGenerated registers an assignment-list listener
func (n *ChangeNotifier) OnAssignmentsGenerated(fn AssignmentsFunc) {
	if fn == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.onAssignments = append(n.onAssignments, fn)
}

// SetLogger updates the logger at runtime
func (n *ChangeNotifier) SetLogger(logger Logger) {
	if logger == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.logger = logger
}

// Schedule queues snapshot for publication, superseding any pending one
func (n *ChangeNotifier) Schedule(snapshot ChangeSnapshot) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}

	if n.delay == 0 {
		n.mu.Unlock()
		n.publishMu.Lock()
		defer n.publishMu.Unlock()
		n.publish(snapshot)
		return
	}

	if n.pending != nil {
		n.logger.Debug("Superseding pending change notification")
	}
	n.pending = &snapshot
	n.generation++
	gen := n.generation

	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.delay, func() { n.fire(gen) })
	n.mu.Unlock()
}

// fire publishes the pending snapshot if no newer one was scheduled
func (n *ChangeNotifier) fire(gen uint64) {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	n.mu.Lock()
	if n.closed || gen != n.generation || n.pending == nil {
		n.mu.Unlock()
		return
	}
	snapshot := *n.pending
	n.pending = nil
	n.timer = nil
	n.mu.Unlock()

	n.publish(snapshot)
}

// Flush publishes the pending snapshot immediately. It reports whether anything was published.
func (n *ChangeNotifier) Flush() bool {
	n.publishMu.Lock()
	defer n.publishMu.Unlock()

	n.mu.Lock()
	if n.closed || n.pending == nil {
		n.mu.Unlock()
		return false
	}
	snapshot := *n.pending
	n.pending = nil
	n.generation++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()

	n.publish(snapshot)
	return true
}

// Pending reports whether a notification is waiting
func (n *ChangeNotifier) Pending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.pending != nil
}

// Close cancels pending work; later Schedule calls are dropped
func (n *ChangeNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	n.pending = nil
	n.generation++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

// publish delivers snapshot to the listeners; the caller holds publishMu
func (n *ChangeNotifier) publish(snapshot ChangeSnapshot) {
	n.mu.Lock()
	onConfig := append([]ConfigChangeFunc(nil), n.onConfig...)
	onAssignments := append([]AssignmentsFunc(nil), n.onAssignments...)
	logger := n.logger
	n.mu.Unlock()

	for _, fn := range onConfig {
		fn(CloneCategories(snapshot.Categories))
	}
	for _, fn := range onAssignments {
		fn(append([]GeneratedPrizeAssignment(nil), snapshot.Assignments...))
	}

	n.monitor.RecordNotification()
	logger.Debug("Published change notification: %d categories, %d assignments",
		len(snapshot.Categories), len(snapshot.Assignments))
}
