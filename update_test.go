package raffle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAssignments() []GeneratedPrizeAssignment {
	item := &ItemRef{ExternalID: "sku-1", Name: "Bike"}
	return []GeneratedPrizeAssignment{
		{TicketNumber: "000042", Value: decimal.NewFromInt(50), CategoryID: CategoryTier2, Kind: PrizeKindCash},
		{TicketNumber: "000007", Value: decimal.NewFromInt(500), CategoryID: CategoryTier1, Kind: PrizeKindItem, Item: item},
		{TicketNumber: "000013", Value: decimal.NewFromInt(50), CategoryID: CategoryTier2, Kind: PrizeKindCash},
		{TicketNumber: "000003", Value: decimal.NewFromInt(500), CategoryID: CategoryTier1, Kind: PrizeKindItem, Item: item},
		{TicketNumber: "000099", Value: decimal.NewFromInt(20), CategoryID: CategoryTier2, Kind: PrizeKindCash},
	}
}

func TestBuildUpdatePayload(t *testing.T) {
	tests := []struct {
		name            string
		edit            func(map[string]any)
		expectFields    []string
		expectRegrouped bool
	}{
		{
			name:         "no_changes",
			edit:         func(map[string]any) {},
			expectFields: []string{},
		},
		{
			name:         "non_reward_field",
			edit:         func(c map[string]any) { c["title"] = "Renamed" },
			expectFields: []string{"title"},
		},
		{
			name:            "reward_field",
			edit:            func(c map[string]any) { c["total_numbers"] = 2000 },
			expectFields:    []string{AssignmentsField, "total_numbers"},
			expectRegrouped: true,
		},
		{
			name: "nested_change_sends_whole_root_field",
			edit: func(c map[string]any) {
				c["draw"].(map[string]any)["date"] = "2026-09-09"
				c["prize_categories"].([]any)[0].(map[string]any)["quantity"] = 11
			},
			expectFields:    []string{AssignmentsField, "draw", "prize_categories"},
			expectRegrouped: true,
		},
		{
			name:         "removed_field_sent_as_nil",
			edit:         func(c map[string]any) { delete(c, "price") },
			expectFields: []string{"price"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := campaignConfig()
			current := campaignConfig()
			tt.edit(current)

			diff := NewConfigDiffer(WithKeyedArrays("id")).Diff(original, current)
			payload := BuildUpdatePayload(current, diff, DefaultRewardFields, sampleAssignments())

			fields := make([]string, 0, len(payload))
			for f := range payload {
				fields = append(fields, f)
			}
			assert.ElementsMatch(t, tt.expectFields, fields)
			assert.Equal(t, tt.expectRegrouped, RewardsChanged(diff, DefaultRewardFields))

			for _, f := range tt.expectFields {
				if f == AssignmentsField {
					continue
				}
				assert.True(t, equalValues(current[f], payload[f]), "field %s", f)
			}
		})
	}
}

func TestBuildUpdatePayload_CopiesValues(t *testing.T) {
	original := campaignConfig()
	current := campaignConfig()
	current["draw"].(map[string]any)["channel"] = "recorded"

	payload := BuildUpdatePayload(current, DiffConfigs(original, current), nil, nil)
	payload["draw"].(map[string]any)["channel"] = "mutated"

	assert.Equal(t, "recorded", current["draw"].(map[string]any)["channel"])
}

func TestGroupAssignments(t *testing.T) {
	payload := GroupAssignments(sampleAssignments())

	assert.Equal(t, 5, payload.TotalUnits)
	require.Len(t, payload.Categories, 2)

	tier1 := payload.Categories[0]
	assert.Equal(t, CategoryTier1, tier1.CategoryID)
	assert.Empty(t, tier1.CashLots)
	require.Len(t, tier1.ItemUnits, 1)
	assert.Equal(t, "sku-1", tier1.ItemUnits[0].Item.ExternalID)
	assert.Equal(t, 2, tier1.ItemUnits[0].Quantity)
	assert.Equal(t, []string{"000003", "000007"}, tier1.ItemUnits[0].TicketNumbers)

	tier2 := payload.Categories[1]
	assert.Equal(t, CategoryTier2, tier2.CategoryID)
	require.Len(t, tier2.CashLots, 2)
	assert.True(t, tier2.CashLots[0].Value.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, []string{"000013", "000042"}, tier2.CashLots[0].TicketNumbers)
	assert.Equal(t, 1, tier2.CashLots[1].Quantity)
	assert.True(t, tier2.CashLots[1].Value.Equal(decimal.NewFromInt(20)))

	empty := GroupAssignments(nil)
	assert.Empty(t, empty.Categories)
	assert.Zero(t, empty.TotalUnits)
}

func TestTicketNumberWidth(t *testing.T) {
	tests := []struct {
		pool   int
		width  int
		format string
	}{
		{pool: 0, width: 6, format: "000001"},
		{pool: 100, width: 6, format: "000001"},
		{pool: 999_999, width: 6, format: "000001"},
		{pool: 1_000_000, width: 7, format: "0000001"},
		{pool: 12_345_678, width: 8, format: "00000001"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.width, TicketNumberWidth(tt.pool), "pool %d", tt.pool)
		assert.Equal(t, tt.format, FormatTicketNumber(1, tt.pool))
	}

	a := GeneratedPrizeAssignment{TicketNumber: "000420"}
	assert.Equal(t, 420, a.Number())
	a.TicketNumber = "n/a"
	assert.Zero(t, a.Number())
}
