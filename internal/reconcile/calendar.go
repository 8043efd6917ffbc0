package reconcile

import "time"

// Calendar answers month lengths for two-digit years.
type Calendar struct {
	// Gregorian applies the standard leap-year rule to 20YY. When false,
	// February has 29 days only in LeapYears.
	Gregorian bool
	LeapYears map[int]bool
}

// LegacyCalendar reproduces the leap years hardcoded in the existing reports.
// It is only correct for 2016-2031.
func LegacyCalendar() Calendar {
	return Calendar{LeapYears: map[int]bool{16: true, 20: true, 24: true, 28: true}}
}

func GregorianCalendar() Calendar {
	return Calendar{Gregorian: true}
}

// DaysInMonth returns the number of days in month of the two-digit year.
func (c Calendar) DaysInMonth(month, year int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	}
	if c.Gregorian {
		return time.Date(2000+year, time.March, 0, 0, 0, 0, 0, time.UTC).Day()
	}
	if c.LeapYears[year] {
		return 29
	}
	return 28
}
