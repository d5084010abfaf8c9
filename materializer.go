package raffle

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PrizeMaterializer expands category configuration into ticket-level assignments
type PrizeMaterializer struct {
	allocator NumberAllocator
	held      map[CategoryID][]int
	logger    Logger
	monitor   *AllocationMonitor
}

// NewPrizeMaterializer creates a materializer drawing numbers from allocator.
// monitor may be nil.
func NewPrizeMaterializer(allocator NumberAllocator, logger Logger, monitor *AllocationMonitor) *PrizeMaterializer {
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &PrizeMaterializer{
		allocator: allocator,
		held:      make(map[CategoryID][]int),
		logger:    logger,
		monitor:   monitor,
	}
}

// unit is one reward unit waiting for a ticket number
type unit struct {
	prizeID string
	kind    PrizeKind
	value   decimal.Decimal
	item    *ItemRef
}

// ReleaseCategory returns every number held by id to the allocator
func (m *PrizeMaterializer) ReleaseCategory(id CategoryID) int {
	numbers := m.held[id]
	released := 0
	for _, n := range numbers {
		if m.allocator.Release(n) {
			released++
		}
	}
	delete(m.held, id)

	if released > 0 {
		m.logger.Debug("Released %d ticket numbers held by %s", released, id)
		m.monitor.RecordRelease(released)
	}
	return released
}

// MaterializeCategory regenerates one category from scratch.
//
// Every number the category holds is released first, then each requested unit
// draws a fresh number. When the pool runs out, generation for the category stops
// and the remaining units are reported as Shortfall.
func (m *PrizeMaterializer) MaterializeCategory(c *PrizeCategory, poolSize int) CategoryResult {
	startTime := time.Now()
	m.ReleaseCategory(c.ID)

	result := CategoryResult{CategoryID: c.ID, Assignments: []GeneratedPrizeAssignment{}}
	if !c.Active {
		return result
	}

	units := expandUnits(c)
	result.Requested = len(units)

	held := make([]int, 0, len(units))
	for _, u := range units {
		n, err := m.allocator.Allocate(poolSize)
		if err != nil {
			if !errors.Is(err, ErrPoolExhausted) {
				m.logger.Error("Allocate failed for %s: %v", c.ID, err)
			}
			break
		}

		var item *ItemRef
		if u.item != nil {
			ref := *u.item
			item = &ref
		}

		held = append(held, n)
		result.Assignments = append(result.Assignments, GeneratedPrizeAssignment{
			TicketNumber: FormatTicketNumber(n, poolSize),
			Value:        u.value,
			CategoryID:   c.ID,
			Kind:         u.kind,
			Item:         item,
			PrizeID:      u.prizeID,
		})
	}

	if len(held) > 0 {
		m.held[c.ID] = held
	}
	result.Generated = len(result.Assignments)
	result.Shortfall = result.Requested - result.Generated

	if result.Truncated() {
		m.logger.Info("Category %s truncated: generated %d of %d (pool=%d, held=%d)",
			c.ID, result.Generated, result.Requested, poolSize, m.allocator.Used())
	}
	m.monitor.RecordMaterialization(result.Generated, result.Shortfall, time.Since(startTime))
	return result
}

// MaterializeAll clears the allocator and regenerates every category
func (m *PrizeMaterializer) MaterializeAll(categories []PrizeCategory, poolSize int) MaterializeResult {
	m.allocator.Clear()
	m.held = make(map[CategoryID][]int)

	results := make([]CategoryResult, 0, len(categories))
	for i := range categories {
		results = append(results, m.MaterializeCategory(&categories[i], poolSize))
	}
	return FlattenResults(results)
}

// Held returns the numbers currently held by id
func (m *PrizeMaterializer) Held(id CategoryID) []int {
	return append([]int(nil), m.held[id]...)
}

// Adopt registers numbers as held by id, reserving them in the allocator.
// Numbers already held elsewhere are skipped and reported.
func (m *PrizeMaterializer) Adopt(id CategoryID, numbers []int) (skipped []int) {
	for _, n := range numbers {
		if !m.allocator.Reserve(n) {
			skipped = append(skipped, n)
			continue
		}
		m.held[id] = append(m.held[id], n)
	}
	return skipped
}

// Reset forgets every held number
func (m *PrizeMaterializer) Reset() {
	m.allocator.Clear()
	m.held = make(map[CategoryID][]int)
}

// FlattenResults concatenates category results in the given order
func FlattenResults(results []CategoryResult) MaterializeResult {
	flat := MaterializeResult{
		Assignments: []GeneratedPrizeAssignment{},
		ByCategory:  make(map[CategoryID]int),
	}
	for _, r := range results {
		flat.Assignments = append(flat.Assignments, r.Assignments...)
		flat.Requested += r.Requested
		flat.Generated += r.Generated
		flat.Shortfall += r.Shortfall
		if r.Shortfall > 0 {
			flat.ByCategory[r.CategoryID] = r.Shortfall
		}
	}
	return flat
}

func expandUnits(c *PrizeCategory) []unit {
	if !c.Detailed() {
		units := make([]unit, c.Quantity)
		for i := range units {
			units[i] = unit{kind: PrizeKindCash, value: c.UnitValue}
		}
		return units
	}

	units := make([]unit, 0, c.EntryTotal())
	for _, p := range c.IndividualPrizes {
		var item *ItemRef
		if p.Kind == PrizeKindItem {
			item = p.Item
		}
		for range p.Quantity {
			units = append(units, unit{prizeID: p.ID, kind: p.Kind, value: p.Value, item: item})
		}
	}
	return units
}
