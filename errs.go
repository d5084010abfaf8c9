package raffle

import "errors"

// Validation errors for the prize configuration model
var (
	// ErrInvalidPrizeID indicates an individual prize without an ID
	ErrInvalidPrizeID = errors.New("invalid prize ID: cannot be empty")

	// ErrInvalidPrizeKind indicates a prize kind other than cash or item
	ErrInvalidPrizeKind = errors.New("invalid prize kind: must be cash or item")

	// ErrInvalidPrizeQuantity indicates an individual prize with quantity below 1
	ErrInvalidPrizeQuantity = errors.New("invalid prize quantity: must be at least 1")

	// ErrNegativePrizeValue indicates a negative prize or unit value
	ErrNegativePrizeValue = errors.New("invalid prize value: cannot be negative")

	// ErrMissingItemRef indicates an item prize without a catalog reference
	ErrMissingItemRef = errors.New("invalid item prize: missing catalog reference")

	// ErrUnknownCategory indicates a category identifier outside the fixed tiers
	ErrUnknownCategory = errors.New("unknown prize category")

	// ErrQuantityMismatch indicates a category whose quantity differs from the sum of its entries
	ErrQuantityMismatch = errors.New("category quantity does not match its individual prizes")

	// ErrInvalidRange indicates invalid random range parameters
	ErrInvalidRange = errors.New("invalid range: min must be less than or equal to max")
)
