package raffle

import (
	"math"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// editOutcome tells the engine what a category mutation requires
type editOutcome int

const (
	editIgnored    editOutcome = iota // input rejected, nothing changed
	editConfigOnly                    // configuration changed, assignments still valid
	editRegenerate                    // demand changed, regenerate the category
	editUnchanged                     // already in the requested state, nothing to publish
)

// AllocationEngine holds the three prize categories of one editing session and
// keeps their ticket-level assignments in step with every edit.
//
// Interactive edits never return errors: invalid input is ignored and the caller
// is expected to display the engine's state. Each edit regenerates only the
// category it touched; a pool-size change rebalances and regenerates everything.
type AllocationEngine struct {
	mu sync.Mutex

	sessionID  string
	categories []PrizeCategory
	results    map[CategoryID]CategoryResult
	poolSize   int
	watcher    PoolSizeWatcher
	maxQty     int

	allocator    *UniqueNumberAllocator
	materializer *PrizeMaterializer
	rebalancer   *CapacityRebalancer
	notifier     *ChangeNotifier
	monitor      *AllocationMonitor
	logger       Logger
}

// NewAllocationEngine creates an engine for a pool of poolSize tickets with default settings
func NewAllocationEngine(poolSize int) *AllocationEngine {
	return NewAllocationEngineWithConfig(poolSize, DefaultEngineConfig(), NewDefaultLogger(DefaultLogLevel))
}

// NewAllocationEngineWithLogger creates an engine with a custom logger
func NewAllocationEngineWithLogger(poolSize int, logger Logger) *AllocationEngine {
	return NewAllocationEngineWithConfig(poolSize, DefaultEngineConfig(), logger)
}

// NewAllocationEngineWithConfig creates an engine with custom configuration and logger
func NewAllocationEngineWithConfig(poolSize int, config *EngineConfig, logger Logger) *AllocationEngine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}
	if poolSize < 0 {
		poolSize = 0
	}

	monitor := NewAllocationMonitor()
	allocator := NewUniqueNumberAllocator(NewSecureRandomGenerator())

	e := &AllocationEngine{
		sessionID:    uuid.NewString(),
		categories:   DefaultCategories(),
		results:      make(map[CategoryID]CategoryResult),
		poolSize:     poolSize,
		maxQty:       config.MaxCategoryQuantity,
		allocator:    allocator,
		materializer: NewPrizeMaterializer(allocator, logger, monitor),
		rebalancer:   NewCapacityRebalancer(logger),
		notifier:     NewChangeNotifier(config.NotifyDelay, logger, monitor),
		monitor:      monitor,
		logger:       logger,
	}
	if e.maxQty <= 0 {
		e.maxQty = MaxCategoryQuantity
	}
	e.watcher.Observe(poolSize)

	logger.Info("Allocation engine created: session=%s, pool=%d, maxQuantity=%d, notifyDelay=%v",
		e.sessionID, poolSize, e.maxQty, config.NotifyDelay)
	return e
}

// SessionID returns the editing session identifier
func (e *AllocationEngine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sessionID
}

// SetRandomSource replaces the randomness used for new draws
func (e *AllocationEngine) SetRandomSource(rng RandomSource) {
	if rng == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.allocator.rng = rng
}

// SetLogger updates the logger at runtime
func (e *AllocationEngine) SetLogger(logger Logger) {
	if logger == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger = logger
	e.materializer.logger = logger
	e.rebalancer.logger = logger
	e.notifier.SetLogger(logger)
}

// OnConfigChange registers a listener for the category configuration
func (e *AllocationEngine) OnConfigChange(fn ConfigChangeFunc) { e.notifier.OnConfigChange(fn) }

// OnAssignmentsGenerated registers a listener for the flattened assignment list
func (e *AllocationEngine) OnAssignmentsGenerated(fn AssignmentsFunc) {
	e.notifier.OnAssignmentsGenerated(fn)
}

// Flush publishes a pending change notification immediately
func (e *AllocationEngine) Flush() bool { return e.notifier.Flush() }

// Close stops pending notifications
func (e *AllocationEngine) Close() {
	e.notifier.Close()

	e.mu.Lock()
	logger, sessionID := e.logger, e.sessionID
	e.mu.Unlock()

	logger.Debug("Allocation engine closed: session=%s", sessionID)
}

// Monitor returns the engine's allocation counters
func (e *AllocationEngine) Monitor() *AllocationMonitor { return e.monitor }

// Toggle flips a category between active and inactive.
//
// Activating clears its individual prizes and keeps quantity and unit value.
// Deactivating clears its individual prizes and releases every ticket number it holds.
func (e *AllocationEngine) Toggle(id CategoryID) {
	e.mutate("Toggle", id, e.toggleLocked)
}

// SetActive activates or deactivates a category; it is a no-op if already in that state
func (e *AllocationEngine) SetActive(id CategoryID, active bool) {
	e.mutate("SetActive", id, func(c *PrizeCategory) editOutcome {
		if c.Active == active {
			return editUnchanged
		}
		return e.toggleLocked(c)
	})
}

func (e *AllocationEngine) toggleLocked(c *PrizeCategory) editOutcome {
	c.IndividualPrizes = []IndividualPrize{}
	if c.Active {
		c.Active = false
		e.materializer.ReleaseCategory(c.ID)
		delete(e.results, c.ID)
		e.logger.Info("Category %s deactivated", c.ID)
		return editConfigOnly
	}

	c.Active = true
	e.logger.Info("Category %s activated: quantity=%d, unitValue=%s", c.ID, c.Quantity, c.UnitValue)
	return editRegenerate
}

// SetQuantity sets a simple-mode category's quantity.
//
// NaN, infinite and negative values are ignored. Otherwise the value is clamped to
// max(1, min(value, pool size - other active demand, max category quantity)).
// Inactive categories keep their frozen quantity, and detailed categories derive
// their quantity from their entries, so both ignore the call.
func (e *AllocationEngine) SetQuantity(id CategoryID, value float64) {
	e.mutate("SetQuantity", id, func(c *PrizeCategory) editOutcome {
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return editIgnored
		}
		if !c.Active || c.Detailed() {
			return editIgnored
		}

		otherDemand := 0
		for i := range e.categories {
			if e.categories[i].ID != c.ID && e.categories[i].Active {
				otherDemand += e.categories[i].Quantity
			}
		}
		maxAvailable := e.poolSize - otherDemand

		requested := int(math.Min(math.Floor(value), float64(math.MaxInt32)))
		final := max(MinCategoryQuantity, min(requested, maxAvailable, e.maxQty))
		if final == c.Quantity {
			return editConfigOnly
		}

		e.logger.Debug("SetQuantity %s: requested=%v, maxAvailable=%d, final=%d", c.ID, value, maxAvailable, final)
		c.Quantity = final
		return editRegenerate
	})
}

// SetUnitValue sets the value of each simple-mode reward. NaN, infinite and
// negative values are ignored; there is no upper bound.
func (e *AllocationEngine) SetUnitValue(id CategoryID, value float64) {
	e.mutate("SetUnitValue", id, func(c *PrizeCategory) editOutcome {
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return editIgnored
		}

		v := decimal.NewFromFloat(value)
		if v.Equal(c.UnitValue) {
			return editConfigOnly
		}
		c.UnitValue = v
		if c.Active && !c.Detailed() {
			return editRegenerate
		}
		return editConfigOnly
	})
}

// AddIndividualPrize appends an entry to an active category and returns its ID.
// An empty ID is replaced by a generated one. Invalid entries are ignored and
// the empty string is returned.
func (e *AllocationEngine) AddIndividualPrize(id CategoryID, prize IndividualPrize) string {
	if prize.ID == "" {
		prize.ID = uuid.NewString()
	}

	added := ""
	e.mutate("AddIndividualPrize", id, func(c *PrizeCategory) editOutcome {
		if !c.Active || prize.Validate() != nil {
			return editIgnored
		}
		if slices.ContainsFunc(c.IndividualPrizes, func(p IndividualPrize) bool { return p.ID == prize.ID }) {
			return editIgnored
		}

		c.IndividualPrizes = append(c.IndividualPrizes, prize.clone())
		c.Quantity = c.EntryTotal()
		added = prize.ID
		return editRegenerate
	})
	return added
}

// RemoveIndividualPrize deletes an entry from a category
func (e *AllocationEngine) RemoveIndividualPrize(id CategoryID, prizeID string) {
	e.mutate("RemoveIndividualPrize", id, func(c *PrizeCategory) editOutcome {
		i := slices.IndexFunc(c.IndividualPrizes, func(p IndividualPrize) bool { return p.ID == prizeID })
		if i < 0 {
			return editIgnored
		}

		c.IndividualPrizes = slices.Delete(c.IndividualPrizes, i, i+1)
		c.Quantity = c.EntryTotal()
		return editRegenerate
	})
}

// UpdateIndividualPrize changes the quantity and value of an entry.
// Quantities below 1 and negative, NaN or infinite values are ignored.
func (e *AllocationEngine) UpdateIndividualPrize(id CategoryID, prizeID string, quantity int, value float64) {
	e.mutate("UpdateIndividualPrize", id, func(c *PrizeCategory) editOutcome {
		if quantity < 1 || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return editIgnored
		}
		i := slices.IndexFunc(c.IndividualPrizes, func(p IndividualPrize) bool { return p.ID == prizeID })
		if i < 0 {
			return editIgnored
		}

		p := &c.IndividualPrizes[i]
		v := decimal.NewFromFloat(value)
		if p.Quantity == quantity && p.Value.Equal(v) {
			return editConfigOnly
		}
		p.Quantity = quantity
		p.Value = v
		c.Quantity = c.EntryTotal()
		return editRegenerate
	})
}

// AttachCatalogItem turns an entry into a physical-item reward using a catalog lookup result
func (e *AllocationEngine) AttachCatalogItem(id CategoryID, prizeID string, item CatalogItem) {
	e.mutate("AttachCatalogItem", id, func(c *PrizeCategory) editOutcome {
		if item.ExternalID == "" || item.Value.IsNegative() {
			return editIgnored
		}
		i := slices.IndexFunc(c.IndividualPrizes, func(p IndividualPrize) bool { return p.ID == prizeID })
		if i < 0 {
			return editIgnored
		}

		p := &c.IndividualPrizes[i]
		p.Kind = PrizeKindItem
		p.Item = item.Ref()
		p.Value = item.Value
		return editRegenerate
	})
}

// SetPoolSize reacts to a change of the total ticket count.
//
// Negative sizes and repeats of the last observed size are ignored. A real change
// rebalances active demand into the new pool and regenerates every category.
func (e *AllocationEngine) SetPoolSize(size int) {
	e.mu.Lock()
	logger := e.logger
	logger.Debug("SetPoolSize called with size=%d", size)

	if size < 0 {
		e.mu.Unlock()
		e.monitor.RecordIgnoredEdit()
		return
	}

	previous, changed := e.watcher.Observe(size)
	if !changed {
		e.mu.Unlock()
		return
	}

	e.poolSize = size
	rebalanced, adjusted := e.rebalancer.Rebalance(e.categories, size)
	if adjusted {
		e.monitor.RecordRebalance()
	}
	e.categories = rebalanced
	result := e.regenerateAllLocked()
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	logger.Info("Pool size changed %d -> %d: %d assignments, shortfall=%d",
		previous, size, result.Generated, result.Shortfall)
	e.notifier.Schedule(snapshot)
}

// RegenerateAll redraws every category from an empty allocator
func (e *AllocationEngine) RegenerateAll() MaterializeResult {
	e.mu.Lock()
	result := e.regenerateAllLocked()
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.notifier.Schedule(snapshot)
	return result
}

// Categories returns a copy of the three categories in tier order
func (e *AllocationEngine) Categories() []PrizeCategory {
	e.mu.Lock()
	defer e.mu.Unlock()

	return CloneCategories(e.categories)
}

// Category returns a copy of one category
func (e *AllocationEngine) Category(id CategoryID) (PrizeCategory, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.categoryLocked(id)
	if c == nil {
		return PrizeCategory{}, false
	}
	return c.Clone(), true
}

// Assignments returns the flattened assignment list in tier order
func (e *AllocationEngine) Assignments() []GeneratedPrizeAssignment {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.resultLocked().Assignments
}

// Result returns the flattened assignments together with requested/generated/shortfall counts
func (e *AllocationEngine) Result() MaterializeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.resultLocked()
}

// Shortfall returns how many requested units currently lack a ticket number
func (e *AllocationEngine) Shortfall() int {
	return e.Result().Shortfall
}

// PoolSize returns the current ticket pool size
func (e *AllocationEngine) PoolSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.poolSize
}

// HeldNumbers returns the ticket numbers currently held by a category
func (e *AllocationEngine) HeldNumbers(id CategoryID) []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.materializer.Held(id)
}

// mutate applies edit to one category under the lock, regenerates it when needed
// and schedules a notification. Unknown ids and ignored edits change nothing.
func (e *AllocationEngine) mutate(operation string, id CategoryID, edit func(c *PrizeCategory) editOutcome) {
	e.mu.Lock()
	logger := e.logger
	c := e.categoryLocked(id)
	if c == nil {
		e.mu.Unlock()
		logger.Debug("%s ignored: unknown category %q", operation, id)
		e.monitor.RecordIgnoredEdit()
		return
	}

	outcome := edit(c)
	switch outcome {
	case editIgnored:
		e.mu.Unlock()
		logger.Debug("%s ignored for category %s", operation, id)
		e.monitor.RecordIgnoredEdit()
		return
	case editUnchanged:
		e.mu.Unlock()
		return
	case editRegenerate:
		e.results[c.ID] = e.materializer.MaterializeCategory(c, e.poolSize)
	}

	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.notifier.Schedule(snapshot)
}

func (e *AllocationEngine) categoryLocked(id CategoryID) *PrizeCategory {
	for i := range e.categories {
		if e.categories[i].ID == id {
			return &e.categories[i]
		}
	}
	return nil
}

func (e *AllocationEngine) regenerateAllLocked() MaterializeResult {
	e.materializer.Reset()
	e.results = make(map[CategoryID]CategoryResult)

	for i := range e.categories {
		c := &e.categories[i]
		if !c.Active {
			continue
		}
		e.results[c.ID] = e.materializer.MaterializeCategory(c, e.poolSize)
	}
	return e.resultLocked()
}

func (e *AllocationEngine) resultLocked() MaterializeResult {
	results := make([]CategoryResult, 0, len(e.categories))
	for _, c := range e.categories {
		if r, ok := e.results[c.ID]; ok {
			results = append(results, r)
		}
	}
	return FlattenResults(results)
}

func (e *AllocationEngine) snapshotLocked() ChangeSnapshot {
	return ChangeSnapshot{
		Categories:  CloneCategories(e.categories),
		Assignments: e.resultLocked().Assignments,
	}
}
