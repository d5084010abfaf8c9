package raffle

import (
	"fmt"
	"strings"
)

// ValidateRange validates range parameters
func ValidateRange(min, max int) error {
	if min > max {
		return ErrInvalidRange
	}
	return nil
}

// ValidatePoolSize validates a ticket pool size
func ValidatePoolSize(size int) error {
	if size < 0 {
		return ErrInvalidPoolSize
	}
	return nil
}

// ParseCategoryID parses a category identifier such as "tier2" or "TIER2"
func ParseCategoryID(s string) (CategoryID, error) {
	id := CategoryID(strings.ToLower(strings.TrimSpace(s)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return id, nil
}
