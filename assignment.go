package raffle

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// GeneratedPrizeAssignment binds one reward unit to one ticket number
type GeneratedPrizeAssignment struct {
	TicketNumber string          `json:"ticket_number"` // Zero-padded ticket number
	Value        decimal.Decimal `json:"value"`         // Reward value of this unit
	CategoryID   CategoryID      `json:"category_id"`   // Owning category
	Kind         PrizeKind       `json:"kind"`          // Cash or item
	Item         *ItemRef        `json:"item,omitempty"`
	PrizeID      string          `json:"prize_id,omitempty"` // Source individual prize, empty in simple mode
}

// Number returns the numeric ticket number
func (a *GeneratedPrizeAssignment) Number() int {
	n, err := strconv.Atoi(a.TicketNumber)
	if err != nil {
		return 0
	}
	return n
}

// TicketNumberWidth returns the formatted width for a pool: the digit count of
// poolSize, never below TicketNumberMinWidth.
func TicketNumberWidth(poolSize int) int {
	return max(TicketNumberMinWidth, len(strconv.Itoa(max(poolSize, 0))))
}

// FormatTicketNumber zero-pads n to the width of the pool
func FormatTicketNumber(n, poolSize int) string {
	return fmt.Sprintf("%0*d", TicketNumberWidth(poolSize), n)
}

// CategoryResult is the outcome of materializing one category
type CategoryResult struct {
	CategoryID  CategoryID                 `json:"category_id"`
	Assignments []GeneratedPrizeAssignment `json:"assignments"`
	Requested   int                        `json:"requested"` // Units the category asked for
	Generated   int                        `json:"generated"` // Units that received a ticket number
	Shortfall   int                        `json:"shortfall"` // Units dropped because the pool ran out
}

// Truncated reports whether some requested units were dropped
func (r *CategoryResult) Truncated() bool { return r.Shortfall > 0 }

// MaterializeResult is the flattened outcome of a materialization pass
type MaterializeResult struct {
	Assignments []GeneratedPrizeAssignment `json:"assignments"`
	Requested   int                        `json:"requested"`
	Generated   int                        `json:"generated"`
	Shortfall   int                        `json:"shortfall"`
	ByCategory  map[CategoryID]int         `json:"by_category_shortfall,omitempty"`
}

// Complete reports whether every requested unit received a ticket number
func (r *MaterializeResult) Complete() bool { return r.Shortfall == 0 }

// SuccessRate returns the share of requested units that were generated, as a percentage
func (r *MaterializeResult) SuccessRate() float64 {
	if r.Requested == 0 {
		return 100.0
	}
	return float64(r.Generated) / float64(r.Requested) * 100.0
}

// CashLot groups ticket numbers that win the same cash value in one category
type CashLot struct {
	Value         decimal.Decimal `json:"value"`
	Quantity      int             `json:"quantity"`
	TicketNumbers []string        `json:"ticket_numbers"`
}

// ItemUnits groups ticket numbers that win the same catalog item in one category
type ItemUnits struct {
	Item          ItemRef         `json:"item"`
	Value         decimal.Decimal `json:"value"`
	Quantity      int             `json:"quantity"`
	TicketNumbers []string        `json:"ticket_numbers"`
}

// CategoryPayload is the per-category submission shape
type CategoryPayload struct {
	CategoryID CategoryID  `json:"category_id"`
	CashLots   []CashLot   `json:"cash_lots,omitempty"`
	ItemUnits  []ItemUnits `json:"item_units,omitempty"`
}

// SubmissionPayload is the assignment list regrouped for the campaign submission
type SubmissionPayload struct {
	Categories []CategoryPayload `json:"categories"`
	TotalUnits int               `json:"total_units"`
}

// GroupAssignments regroups a flat assignment list into cash lots and item units
// per category. Categories follow the fixed tier order; lots keep first-seen order
// and their ticket numbers are sorted.
func GroupAssignments(assignments []GeneratedPrizeAssignment) SubmissionPayload {
	type lotKey struct {
		kind  PrizeKind
		value string
		item  string
	}

	byCategory := make(map[CategoryID]*CategoryPayload)
	index := make(map[CategoryID]map[lotKey]int)

	for _, a := range assignments {
		cp, ok := byCategory[a.CategoryID]
		if !ok {
			cp = &CategoryPayload{CategoryID: a.CategoryID}
			byCategory[a.CategoryID] = cp
			index[a.CategoryID] = make(map[lotKey]int)
		}

		key := lotKey{kind: a.Kind, value: a.Value.String()}
		if a.Kind == PrizeKindItem && a.Item != nil {
			key.item = a.Item.ExternalID
		}

		i, seen := index[a.CategoryID][key]
		switch {
		case a.Kind == PrizeKindItem && a.Item != nil:
			if !seen {
				i = len(cp.ItemUnits)
				index[a.CategoryID][key] = i
				cp.ItemUnits = append(cp.ItemUnits, ItemUnits{Item: *a.Item, Value: a.Value})
			}
			cp.ItemUnits[i].Quantity++
			cp.ItemUnits[i].TicketNumbers = append(cp.ItemUnits[i].TicketNumbers, a.TicketNumber)
		default:
			if !seen {
				i = len(cp.CashLots)
				index[a.CategoryID][key] = i
				cp.CashLots = append(cp.CashLots, CashLot{Value: a.Value})
			}
			cp.CashLots[i].Quantity++
			cp.CashLots[i].TicketNumbers = append(cp.CashLots[i].TicketNumbers, a.TicketNumber)
		}
	}

	payload := SubmissionPayload{TotalUnits: len(assignments)}
	for _, id := range CategoryIDs {
		cp, ok := byCategory[id]
		if !ok {
			continue
		}
		for i := range cp.CashLots {
			sort.Strings(cp.CashLots[i].TicketNumbers)
		}
		for i := range cp.ItemUnits {
			sort.Strings(cp.ItemUnits[i].TicketNumbers)
		}
		payload.Categories = append(payload.Categories, *cp)
	}
	return payload
}
