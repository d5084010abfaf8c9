package raffle

import (
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, poolSize int) *AllocationEngine {
	t.Helper()

	e := NewAllocationEngineWithConfig(poolSize, NewEngineConfig(MaxCategoryQuantity, 0), NewSilentLogger())
	e.SetRandomSource(NewSeededRandomGenerator(uint64(poolSize) + 1))
	t.Cleanup(e.Close)
	return e
}

func activate(e *AllocationEngine, id CategoryID, quantity float64, unitValue float64) {
	e.SetActive(id, true)
	e.SetUnitValue(id, unitValue)
	e.SetQuantity(id, quantity)
}

func ticketsOf(assignments []GeneratedPrizeAssignment, id CategoryID) []string {
	var tickets []string
	for _, a := range assignments {
		if a.CategoryID == id {
			tickets = append(tickets, a.TicketNumber)
		}
	}
	return tickets
}

func requireUniqueTickets(t *testing.T, assignments []GeneratedPrizeAssignment, poolSize int) {
	t.Helper()

	seen := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		require.False(t, seen[a.TicketNumber], "ticket %s assigned twice", a.TicketNumber)
		seen[a.TicketNumber] = true

		n := a.Number()
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, poolSize)
	}
}

func TestNewAllocationEngine(t *testing.T) {
	e := NewAllocationEngineWithLogger(500, NewSilentLogger())
	defer e.Close()

	assert.NotEmpty(t, e.SessionID())
	assert.Equal(t, 500, e.PoolSize())
	assert.Empty(t, e.Assignments())

	categories := e.Categories()
	require.Len(t, categories, 3)
	for i, c := range categories {
		assert.Equal(t, CategoryIDs[i], c.ID)
		assert.False(t, c.Active)
		assert.Empty(t, c.IndividualPrizes)
	}
}

func TestAllocationEngine_Toggle(t *testing.T) {
	t.Run("activation_materializes", func(t *testing.T) {
		e := newTestEngine(t, 100)

		activate(e, CategoryTier1, 7, 25)

		c, ok := e.Category(CategoryTier1)
		require.True(t, ok)
		assert.True(t, c.Active)
		assert.Equal(t, 7, c.Quantity)
		assert.Len(t, e.Assignments(), 7)
	})

	t.Run("deactivation_releases_every_number", func(t *testing.T) {
		e := newTestEngine(t, 100)
		activate(e, CategoryTier1, 7, 25)
		require.Len(t, e.HeldNumbers(CategoryTier1), 7)
		releasesBefore := e.Monitor().GetMetrics().Releases

		e.Toggle(CategoryTier1)

		c, _ := e.Category(CategoryTier1)
		assert.False(t, c.Active)
		assert.Equal(t, 7, c.Quantity, "quantity is frozen, not reset")
		assert.Empty(t, e.HeldNumbers(CategoryTier1))
		assert.Empty(t, e.Assignments())
		assert.Equal(t, int64(7), e.Monitor().GetMetrics().Releases-releasesBefore)

		e.Toggle(CategoryTier1)

		assignments := e.Assignments()
		require.Len(t, assignments, 7)
		requireUniqueTickets(t, assignments, 100)
	})

	t.Run("toggle_clears_individual_prizes", func(t *testing.T) {
		e := newTestEngine(t, 100)
		e.Toggle(CategoryTier2)
		e.AddIndividualPrize(CategoryTier2, IndividualPrize{Kind: PrizeKindCash, Quantity: 3, Value: decimal.NewFromInt(10)})

		e.Toggle(CategoryTier2)
		e.Toggle(CategoryTier2)

		c, _ := e.Category(CategoryTier2)
		assert.True(t, c.Active)
		assert.Empty(t, c.IndividualPrizes)
		assert.Equal(t, 3, c.Quantity)
	})
}

func TestAllocationEngine_SetActive(t *testing.T) {
	t.Run("same_state_is_silent", func(t *testing.T) {
		e := newTestEngine(t, 100)
		activate(e, CategoryTier1, 5, 10)

		published := 0
		e.OnConfigChange(func([]PrizeCategory) { published++ })

		e.SetActive(CategoryTier1, true)
		e.SetActive(CategoryTier2, false)

		assert.Zero(t, published)
		assert.Zero(t, e.Monitor().GetMetrics().IgnoredEdits)
		assert.Len(t, e.HeldNumbers(CategoryTier1), 5)
	})

	t.Run("concurrent_activation_is_idempotent", func(t *testing.T) {
		e := newTestEngine(t, 100)
		activate(e, CategoryTier1, 5, 10)

		for round := range 20 {
			e.SetActive(CategoryTier1, false)

			var wg sync.WaitGroup
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					e.SetActive(CategoryTier1, true)
				}()
			}
			wg.Wait()

			c, _ := e.Category(CategoryTier1)
			require.True(t, c.Active, "round %d", round)
			require.Len(t, e.HeldNumbers(CategoryTier1), 5, "round %d", round)
		}
	})
}

func TestAllocationEngine_SetLoggerConcurrentWithEdits(t *testing.T) {
	e := NewAllocationEngineWithLogger(10, NewSilentLogger())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 100 {
			e.SetLogger(NewSilentLogger())
		}
	}()
	go func() {
		defer wg.Done()
		for range 100 {
			e.SetPoolSize(20)
			e.SetQuantity("unknown", 1)
		}
		e.Close()
	}()
	wg.Wait()

	logger := NewSilentLogger()
	e.SetLogger(logger)
	assert.Same(t, logger, e.notifier.logger)
}

func TestAllocationEngine_SetQuantity(t *testing.T) {
	tests := []struct {
		name       string
		poolSize   int
		otherQty   float64
		value      float64
		expected   int
		initialQty float64
	}{
		{name: "plain_value", poolSize: 1000, value: 42, expected: 42, initialQty: 1},
		{name: "fraction_floors", poolSize: 1000, value: 3.9, expected: 3, initialQty: 1},
		{name: "zero_floors_to_one", poolSize: 1000, value: 0, expected: 1, initialQty: 5},
		{name: "ceiling", poolSize: 1000, value: 150, expected: 100, initialQty: 1},
		{name: "capacity_left_by_others", poolSize: 100, otherQty: 10, value: 95, expected: 90, initialQty: 1},
		{name: "no_capacity_still_one", poolSize: 5, otherQty: 5, value: 3, expected: 1, initialQty: 1},
		{name: "nan_ignored", poolSize: 100, value: math.NaN(), expected: 4, initialQty: 4},
		{name: "inf_ignored", poolSize: 100, value: math.Inf(1), expected: 4, initialQty: 4},
		{name: "negative_ignored", poolSize: 100, value: -3, expected: 4, initialQty: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.poolSize)
			activate(e, CategoryTier1, tt.initialQty, 10)
			if tt.otherQty > 0 {
				activate(e, CategoryTier2, tt.otherQty, 10)
			}

			e.SetQuantity(CategoryTier1, tt.value)

			c, _ := e.Category(CategoryTier1)
			assert.Equal(t, tt.expected, c.Quantity)
		})
	}

	t.Run("idempotent", func(t *testing.T) {
		e := newTestEngine(t, 100)
		activate(e, CategoryTier1, 1, 10)
		activate(e, CategoryTier2, 30, 10)

		e.SetQuantity(CategoryTier1, 85)
		first, _ := e.Category(CategoryTier1)
		e.SetQuantity(CategoryTier1, 85)
		second, _ := e.Category(CategoryTier1)

		assert.Equal(t, 70, first.Quantity)
		assert.Equal(t, first.Quantity, second.Quantity)
	})

	t.Run("inactive_category_is_frozen", func(t *testing.T) {
		e := newTestEngine(t, 100)

		e.SetQuantity(CategoryTier3, 10)

		c, _ := e.Category(CategoryTier3)
		assert.Equal(t, 0, c.Quantity)
		assert.Empty(t, e.Assignments())
	})

	t.Run("detailed_category_ignores_quantity", func(t *testing.T) {
		e := newTestEngine(t, 100)
		e.Toggle(CategoryTier1)
		e.AddIndividualPrize(CategoryTier1, IndividualPrize{Kind: PrizeKindCash, Quantity: 4, Value: decimal.NewFromInt(5)})

		e.SetQuantity(CategoryTier1, 20)

		c, _ := e.Category(CategoryTier1)
		assert.Equal(t, 4, c.Quantity)
		assert.NoError(t, c.Validate())
	})

	t.Run("unknown_category_ignored", func(t *testing.T) {
		e := newTestEngine(t, 100)
		before := e.Categories()

		e.SetQuantity("tier9", 10)
		e.Toggle("tier9")

		assert.Equal(t, before, e.Categories())
		assert.Equal(t, int64(2), e.Monitor().GetMetrics().IgnoredEdits)
	})
}

func TestAllocationEngine_SetUnitValue(t *testing.T) {
	e := newTestEngine(t, 100)
	activate(e, CategoryTier1, 3, 10)
	tickets := ticketsOf(e.Assignments(), CategoryTier1)

	e.SetUnitValue(CategoryTier1, 12.5)

	c, _ := e.Category(CategoryTier1)
	assert.True(t, c.UnitValue.Equal(decimal.RequireFromString("12.5")))
	assignments := e.Assignments()
	require.Len(t, assignments, 3)
	for _, a := range assignments {
		assert.True(t, a.Value.Equal(decimal.RequireFromString("12.5")))
	}
	assert.Len(t, ticketsOf(assignments, CategoryTier1), len(tickets))

	for _, bad := range []float64{-1, math.NaN(), math.Inf(-1)} {
		e.SetUnitValue(CategoryTier1, bad)
	}
	c, _ = e.Category(CategoryTier1)
	assert.True(t, c.UnitValue.Equal(decimal.RequireFromString("12.5")))

	e.SetUnitValue(CategoryTier1, 1e12)
	c, _ = e.Category(CategoryTier1)
	assert.True(t, c.UnitValue.Equal(decimal.NewFromInt(1_000_000_000_000)), "no upper bound")
}

func TestAllocationEngine_IndividualPrizes(t *testing.T) {
	e := newTestEngine(t, 1000)
	e.Toggle(CategoryTier1)

	cashID := e.AddIndividualPrize(CategoryTier1, IndividualPrize{Kind: PrizeKindCash, Quantity: 3, Value: decimal.NewFromInt(100)})
	require.NotEmpty(t, cashID)
	itemID := e.AddIndividualPrize(CategoryTier1, IndividualPrize{ID: "item-1", Kind: PrizeKindCash, Quantity: 2, Value: decimal.Zero})
	require.Equal(t, "item-1", itemID)

	c, _ := e.Category(CategoryTier1)
	assert.Equal(t, 5, c.Quantity)
	assert.Len(t, e.Assignments(), 5)

	t.Run("invalid_entries_ignored", func(t *testing.T) {
		assert.Empty(t, e.AddIndividualPrize(CategoryTier1, IndividualPrize{Kind: PrizeKindCash, Quantity: 0}))
		assert.Empty(t, e.AddIndividualPrize(CategoryTier1, IndividualPrize{Kind: "voucher", Quantity: 1}))
		assert.Empty(t, e.AddIndividualPrize(CategoryTier1, IndividualPrize{Kind: PrizeKindCash, Quantity: 1, Value: decimal.NewFromInt(-5)}))
		assert.Empty(t, e.AddIndividualPrize(CategoryTier1, IndividualPrize{ID: "item-1", Kind: PrizeKindCash, Quantity: 1}))
		assert.Empty(t, e.AddIndividualPrize(CategoryTier3, IndividualPrize{Kind: PrizeKindCash, Quantity: 1}), "inactive category")

		c, _ := e.Category(CategoryTier1)
		assert.Len(t, c.IndividualPrizes, 2)
	})

	t.Run("attach_catalog_item", func(t *testing.T) {
		e.AttachCatalogItem(CategoryTier1, "item-1", CatalogItem{
			ExternalID: "sku-42",
			Name:       "Scooter",
			Value:      decimal.NewFromInt(1500),
			ImageURL:   "https://example.com/scooter.png",
		})

		c, _ := e.Category(CategoryTier1)
		entry := c.IndividualPrizes[1]
		assert.Equal(t, PrizeKindItem, entry.Kind)
		require.NotNil(t, entry.Item)
		assert.Equal(t, "sku-42", entry.Item.ExternalID)
		assert.True(t, entry.Value.Equal(decimal.NewFromInt(1500)))

		items := 0
		for _, a := range e.Assignments() {
			if a.Kind == PrizeKindItem {
				items++
				assert.Equal(t, "Scooter", a.Item.Name)
			}
		}
		assert.Equal(t, 2, items)
	})

	t.Run("update_entry", func(t *testing.T) {
		e.UpdateIndividualPrize(CategoryTier1, cashID, 6, 75)

		c, _ := e.Category(CategoryTier1)
		assert.Equal(t, 8, c.Quantity)
		assert.Len(t, e.Assignments(), 8)

		e.UpdateIndividualPrize(CategoryTier1, cashID, 0, 75)
		c, _ = e.Category(CategoryTier1)
		assert.Equal(t, 8, c.Quantity)
	})

	t.Run("remove_entry", func(t *testing.T) {
		e.RemoveIndividualPrize(CategoryTier1, cashID)

		c, _ := e.Category(CategoryTier1)
		assert.Equal(t, 2, c.Quantity)
		assert.NoError(t, c.Validate())
		assert.Len(t, e.Assignments(), 2)

		e.RemoveIndividualPrize(CategoryTier1, "missing")
		assert.Len(t, e.Assignments(), 2)
	})
}

func TestAllocationEngine_PerCategoryIsolation(t *testing.T) {
	e := newTestEngine(t, 500)
	activate(e, CategoryTier1, 5, 10)
	activate(e, CategoryTier2, 8, 20)
	activate(e, CategoryTier3, 3, 30)

	tier2 := ticketsOf(e.Assignments(), CategoryTier2)
	tier3 := ticketsOf(e.Assignments(), CategoryTier3)

	e.SetQuantity(CategoryTier1, 40)
	e.SetUnitValue(CategoryTier1, 11)
	e.Toggle(CategoryTier1)
	e.Toggle(CategoryTier1)

	assignments := e.Assignments()
	assert.Equal(t, tier2, ticketsOf(assignments, CategoryTier2))
	assert.Equal(t, tier3, ticketsOf(assignments, CategoryTier3))
	requireUniqueTickets(t, assignments, 500)
}

func TestAllocationEngine_SetPoolSize(t *testing.T) {
	t.Run("rebalances_and_regenerates", func(t *testing.T) {
		e := newTestEngine(t, 1000)
		activate(e, CategoryTier1, 10, 50)
		activate(e, CategoryTier2, 95, 20)

		e.SetPoolSize(100)

		t1, _ := e.Category(CategoryTier1)
		t2, _ := e.Category(CategoryTier2)
		assert.Equal(t, 9, t1.Quantity)
		assert.Equal(t, 90, t2.Quantity)
		assert.Equal(t, 100, e.PoolSize())

		assignments := e.Assignments()
		assert.Len(t, assignments, 99)
		requireUniqueTickets(t, assignments, 100)
		assert.Zero(t, e.Shortfall())
		assert.Equal(t, int64(1), e.Monitor().GetMetrics().Rebalances)
	})

	t.Run("unchanged_size_is_noop", func(t *testing.T) {
		e := newTestEngine(t, 100)
		activate(e, CategoryTier1, 10, 50)
		before := e.Assignments()

		e.SetPoolSize(100)

		assert.Equal(t, before, e.Assignments())
	})

	t.Run("negative_size_ignored", func(t *testing.T) {
		e := newTestEngine(t, 100)
		e.SetPoolSize(-5)
		assert.Equal(t, 100, e.PoolSize())
	})

	t.Run("growth_widens_ticket_numbers", func(t *testing.T) {
		e := newTestEngine(t, 100)
		activate(e, CategoryTier1, 5, 1)

		e.SetPoolSize(12_345_678)

		for _, a := range e.Assignments() {
			assert.Len(t, a.TicketNumber, 8)
		}
	})

	t.Run("empty_pool", func(t *testing.T) {
		e := newTestEngine(t, 100)
		activate(e, CategoryTier1, 5, 1)

		e.SetPoolSize(0)

		assert.Empty(t, e.Assignments())
		assert.Equal(t, 1, e.Shortfall())
	})
}

func TestAllocationEngine_Uniqueness(t *testing.T) {
	e := newTestEngine(t, 120)

	activate(e, CategoryTier1, 30, 10)
	activate(e, CategoryTier2, 40, 10)
	activate(e, CategoryTier3, 50, 10)
	for i := range 50 {
		id := CategoryIDs[i%3]
		e.SetQuantity(id, float64(10+i%25))
		if i%7 == 0 {
			e.Toggle(id)
		}
		if i%11 == 0 {
			e.SetPoolSize(100 + i)
		}
		requireUniqueTickets(t, e.Assignments(), e.PoolSize())
	}
}

func TestAllocationEngine_Notifications(t *testing.T) {
	e := newTestEngine(t, 100)

	var (
		mu          sync.Mutex
		configs     [][]PrizeCategory
		assignments [][]GeneratedPrizeAssignment
	)
	e.OnConfigChange(func(categories []PrizeCategory) {
		mu.Lock()
		defer mu.Unlock()
		configs = append(configs, categories)
	})
	e.OnAssignmentsGenerated(func(list []GeneratedPrizeAssignment) {
		mu.Lock()
		defer mu.Unlock()
		assignments = append(assignments, list)
	})

	activate(e, CategoryTier1, 4, 10)
	e.SetQuantity(CategoryTier1, math.NaN())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, configs, 3, "toggle, unit value and quantity publish; ignored edits do not")
	assert.True(t, configs[2][0].Active)
	assert.Equal(t, 4, configs[2][0].Quantity)
	assert.Len(t, assignments[2], 4)

	configs[2][0].Quantity = 99
	c, _ := e.Category(CategoryTier1)
	assert.Equal(t, 4, c.Quantity, "listeners receive copies")
}

func TestAllocationEngine_ListenerMayReadEngine(t *testing.T) {
	e := newTestEngine(t, 100)

	var seen int
	e.OnAssignmentsGenerated(func([]GeneratedPrizeAssignment) {
		seen = len(e.Assignments())
	})

	activate(e, CategoryTier1, 6, 1)

	assert.Equal(t, 6, seen)
}
