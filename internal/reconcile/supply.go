package reconcile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/solarperf/internal/models"
)

// ErrMalformedSupplyDate is returned when a recorded supply date does not end
// in a YY?MM?DD pattern.
var ErrMalformedSupplyDate = errors.New("reconcile: malformed supply date")

// SupplyDate is the commissioning date of a site with a two-digit year.
type SupplyDate struct {
	Year  int
	Month int
	Day   int
}

// ParseSupplyDate reads the last eight characters of s as YY-MM-DD. Any
// single-character separators are accepted, so "2018-03-15" and "2018.03.15"
// both parse.
func ParseSupplyDate(s string) (SupplyDate, error) {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return SupplyDate{}, fmt.Errorf("%w: %q", ErrMalformedSupplyDate, s)
	}
	tail := s[len(s)-8:]

	year, err1 := strconv.Atoi(tail[0:2])
	month, err2 := strconv.Atoi(tail[3:5])
	day, err3 := strconv.Atoi(tail[6:8])
	if err := errors.Join(err1, err2, err3); err != nil {
		return SupplyDate{}, fmt.Errorf("%w: %q", ErrMalformedSupplyDate, s)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return SupplyDate{}, fmt.Errorf("%w: %q", ErrMalformedSupplyDate, s)
	}
	return SupplyDate{Year: year, Month: month, Day: day}, nil
}

// Check rejects a day past the end of its month under cal.
func (d SupplyDate) Check(cal Calendar) error {
	if n := cal.DaysInMonth(d.Month, d.Year); d.Day > n {
		return fmt.Errorf("%w: day %d of month %d/%02d, which has %d days", ErrMalformedSupplyDate, d.Day, d.Month, d.Year, n)
	}
	return nil
}

func (d SupplyDate) Period() models.MonthYear {
	return models.MonthYear{Month: d.Month, Year: d.Year}
}

// Rule is the outcome of comparing a month to a site's supply date.
type Rule int

const (
	// RuleExcluded: the month is before supply; generation and forecast are zero.
	RuleExcluded Rule = iota
	// RuleProrated: the supply month; only readings from the supply day count
	// and the forecast is scaled by the fraction of the month remaining.
	RuleProrated
	// RuleFull: the month is after supply and counts unadjusted.
	RuleFull
)

func (r Rule) String() string {
	switch r {
	case RuleExcluded:
		return "excluded"
	case RuleProrated:
		return "prorated"
	case RuleFull:
		return "full"
	}
	return "unknown"
}

// Classify decides how month p counts for a site supplied on d.
func Classify(d SupplyDate, p models.MonthYear) Rule {
	start := d.Period()
	switch {
	case p.Before(start):
		return RuleExcluded
	case p == start:
		return RuleProrated
	default:
		return RuleFull
	}
}

// ProratedForecast scales a month's forecast by 1 - supplyDay/daysInMonth.
func ProratedForecast(raw float64, supplyDay, daysInMonth int) float64 {
	return raw * (1 - float64(supplyDay)/float64(daysInMonth))
}
