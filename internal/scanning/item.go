package scanning

import (
	"bytes"
	"fmt"
	"strconv"
)

// ShelfLife is an estimated freshness window. The zero value is unknown.
type ShelfLife struct {
	days  uint
	known bool
}

// Unknown returns a shelf-life with no estimate
func Unknown() ShelfLife {
	return ShelfLife{}
}

// Days returns a shelf-life of n days
func Days(n uint) ShelfLife {
	return ShelfLife{days: n, known: true}
}

// Days reports the estimate in days and whether one is known
func (s ShelfLife) Days() (uint, bool) {
	return s.days, s.known
}

// Known reports whether the shelf-life carries a day count
func (s ShelfLife) Known() bool {
	return s.known
}

func (s ShelfLife) String() string {
	if !s.known {
		return "unknown"
	}
	if s.days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", s.days)
}

// MarshalJSON encodes a known shelf-life as an integer and an unknown one as null
func (s ShelfLife) MarshalJSON() ([]byte, error) {
	if !s.known {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatUint(uint64(s.days), 10)), nil
}

// UnmarshalJSON accepts null or a non-negative integer
func (s *ShelfLife) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = Unknown()
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 0)
	if err != nil {
		return fmt.Errorf("decoding shelf life %q: %w", data, err)
	}
	*s = Days(uint(n))
	return nil
}

// Item is a single recognized object
type Item struct {
	Name      string    `json:"name"`
	ShelfLife ShelfLife `json:"shelf_life_days"`
}
