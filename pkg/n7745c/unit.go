package n7745c

import (
	"fmt"
	"strings"
)

// TimeUnit is the unit of the logging integration time.
type TimeUnit string

const (
	Microseconds TimeUnit = "US"
	Milliseconds TimeUnit = "MS"
	Seconds      TimeUnit = "S"
)

// TimeUnits lists the accepted units in UI order.
var TimeUnits = []TimeUnit{Microseconds, Milliseconds, Seconds}

// ParseTimeUnit parses US, MS or S (case-insensitive).
func ParseTimeUnit(s string) (TimeUnit, error) {
	u := TimeUnit(strings.ToUpper(strings.TrimSpace(s)))
	switch u {
	case Microseconds, Milliseconds, Seconds:
		return u, nil
	}
	return "", fmt.Errorf("invalid time unit %q: expected US, MS or S", s)
}

// ToSeconds converts v expressed in u to seconds.
func (u TimeUnit) ToSeconds(v float64) float64 {
	switch u {
	case Microseconds:
		return v / 1_000_000
	case Milliseconds:
		return v / 1000
	default:
		return v
	}
}
