package pantry

import "github.com/zombor/shelf-scanner/internal/scanning"

// DefaultMaxShelfLifeDays is the longest shelf-life still worth tracking
const DefaultMaxShelfLifeDays = 300

// Validator decides whether a recognition result is worth persisting
type Validator struct {
	MaxDays uint
}

// Eligible reports whether at least one item has a known shelf-life within MaxDays.
// The decision covers the whole result; ineligible items are not filtered out.
func (v Validator) Eligible(items []scanning.Item) bool {
	maxDays := v.MaxDays
	if maxDays == 0 {
		maxDays = DefaultMaxShelfLifeDays
	}
	for _, item := range items {
		if days, ok := item.ShelfLife.Days(); ok && days <= maxDays {
			return true
		}
	}
	return false
}
