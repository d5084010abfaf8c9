package raffle

import (
	"slices"

	"github.com/shopspring/decimal"
)

// CategoryID identifies one of the fixed reward tiers
type CategoryID string

const (
	CategoryTier1 CategoryID = "tier1"
	CategoryTier2 CategoryID = "tier2"
	CategoryTier3 CategoryID = "tier3"
)

// CategoryIDs lists the fixed tiers in materialization order
var CategoryIDs = []CategoryID{CategoryTier1, CategoryTier2, CategoryTier3}

// Valid reports whether id is one of the fixed tiers
func (id CategoryID) Valid() bool {
	return slices.Contains(CategoryIDs, id)
}

// PrizeKind is the shape of a reward
type PrizeKind string

const (
	PrizeKindCash PrizeKind = "cash"
	PrizeKindItem PrizeKind = "item"
)

// Valid reports whether k is a known prize kind
func (k PrizeKind) Valid() bool {
	return k == PrizeKindCash || k == PrizeKindItem
}

// ItemRef points at a physical catalog item
type ItemRef struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
}

// CatalogItem is a reward-catalog lookup result supplied by the surrounding application
type CatalogItem struct {
	ExternalID string          `json:"external_id"`
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	ImageURL   string          `json:"image_url,omitempty"`
}

// Ref returns the item reference carried by assignments
func (c CatalogItem) Ref() *ItemRef {
	return &ItemRef{ExternalID: c.ExternalID, Name: c.Name, ImageURL: c.ImageURL}
}

// IndividualPrize is one entry of a category: a cash lot or a batch of identical items
type IndividualPrize struct {
	ID       string          `json:"id"`
	Kind     PrizeKind       `json:"kind"`
	Quantity int             `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
	Item     *ItemRef        `json:"item,omitempty"`
}

// Validate validates the individual prize
func (p *IndividualPrize) Validate() error {
	if p.ID == "" {
		return ErrInvalidPrizeID
	}
	if !p.Kind.Valid() {
		return ErrInvalidPrizeKind
	}
	if p.Quantity < 1 {
		return ErrInvalidPrizeQuantity
	}
	if p.Value.IsNegative() {
		return ErrNegativePrizeValue
	}
	if p.Kind == PrizeKindItem && p.Item == nil {
		return ErrMissingItemRef
	}
	return nil
}

func (p IndividualPrize) clone() IndividualPrize {
	if p.Item != nil {
		item := *p.Item
		p.Item = &item
	}
	return p
}

// PrizeCategory is the configuration of one reward tier
type PrizeCategory struct {
	ID               CategoryID        `json:"id"`
	Active           bool              `json:"active"`
	Quantity         int               `json:"quantity"`
	UnitValue        decimal.Decimal   `json:"unit_value"`
	IndividualPrizes []IndividualPrize `json:"individual_prizes"`
}

// NewPrizeCategory creates an inactive category with no rewards
func NewPrizeCategory(id CategoryID) PrizeCategory {
	return PrizeCategory{
		ID:               id,
		UnitValue:        decimal.Zero,
		IndividualPrizes: []IndividualPrize{},
	}
}

// DefaultCategories returns the three fixed tiers, all inactive
func DefaultCategories() []PrizeCategory {
	categories := make([]PrizeCategory, 0, len(CategoryIDs))
	for _, id := range CategoryIDs {
		categories = append(categories, NewPrizeCategory(id))
	}
	return categories
}

// Detailed reports whether the category is driven by individual prize entries
func (c *PrizeCategory) Detailed() bool {
	return len(c.IndividualPrizes) > 0
}

// EntryTotal returns the sum of the individual prize quantities
func (c *PrizeCategory) EntryTotal() int {
	total := 0
	for _, p := range c.IndividualPrizes {
		total += p.Quantity
	}
	return total
}

// Demand returns how many assignments the category asks for
func (c *PrizeCategory) Demand() int {
	if !c.Active {
		return 0
	}
	if c.Detailed() {
		return c.EntryTotal()
	}
	return c.Quantity
}

// Validate validates the category configuration
func (c *PrizeCategory) Validate() error {
	if !c.ID.Valid() {
		return ErrUnknownCategory
	}
	if c.Quantity < 0 {
		return ErrInvalidPrizeQuantity
	}
	if c.UnitValue.IsNegative() {
		return ErrNegativePrizeValue
	}
	for i := range c.IndividualPrizes {
		if err := c.IndividualPrizes[i].Validate(); err != nil {
			return err
		}
	}
	if c.Detailed() && c.Quantity != c.EntryTotal() {
		return ErrQuantityMismatch
	}
	return nil
}

// Clone returns a deep copy of the category
func (c PrizeCategory) Clone() PrizeCategory {
	prizes := make([]IndividualPrize, len(c.IndividualPrizes))
	for i, p := range c.IndividualPrizes {
		prizes[i] = p.clone()
	}
	c.IndividualPrizes = prizes
	return c
}

// CloneCategories deep-copies a category list
func CloneCategories(categories []PrizeCategory) []PrizeCategory {
	out := make([]PrizeCategory, len(categories))
	for i, c := range categories {
		out[i] = c.Clone()
	}
	return out
}

// TotalDemand sums the demand of every active category
func TotalDemand(categories []PrizeCategory) int {
	total := 0
	for i := range categories {
		if categories[i].Active {
			total += categories[i].Quantity
		}
	}
	return total
}
