package model

import (
	"strings"
	"time"
)

// ClosureCategory classifies why the facility is closed.
type ClosureCategory string

const (
	ClosureMaintenance     ClosureCategory = "MAINTENANCE"
	ClosureHoliday         ClosureCategory = "HOLIDAY"
	ClosureExternalBooking ClosureCategory = "EXTERNAL_BOOKING"
	ClosureOther           ClosureCategory = "OTHER"
)

// ParseClosureCategory maps user input onto a known category.  Empty input
// yields ClosureOther; unknown values report ok=false.
func ParseClosureCategory(s string) (ClosureCategory, bool) {
	switch c := ClosureCategory(strings.ToUpper(strings.TrimSpace(s))); c {
	case "":
		return ClosureOther, true
	case ClosureMaintenance, ClosureHoliday, ClosureExternalBooking, ClosureOther:
		return c, true
	}
	return "", false
}

// Closure is a facility-wide interval [StartsAt, EndsAt) during which no
// reservation may be created.  Closures never overlap each other.
type Closure struct {
	ID        uint64          `json:"id"`         // closures.id
	StartsAt  time.Time       `json:"starts_at"`  // closures.starts_at
	EndsAt    time.Time       `json:"ends_at"`    // closures.ends_at
	Reason    string          `json:"reason"`     // closures.reason
	Category  ClosureCategory `json:"category"`   // closures.category
	CreatedAt time.Time       `json:"created_at"` // closures.created_at
}

// Window returns the closure's interval.
func (c Closure) Window() Interval { return NewInterval(c.StartsAt, c.EndsAt) }
