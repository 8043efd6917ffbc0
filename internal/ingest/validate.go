package ingest

import (
	"github.com/lox/solarperf/internal/models"
)

const (
	FlagValueMissing     = "value_missing"
	FlagValueNegative    = "value_negative"
	FlagDayOutOfRange    = "day_out_of_range"
	FlagValueImplausible = "value_implausible"
)

// maxDailyGeneration is well above any single meter's daily output in kWh.
const maxDailyGeneration = 100000

// ValidateReading returns quality flags for a daily reading. Flagged readings
// are still stored; missing and zero days are reported as outages later.
func ValidateReading(r models.DailyReading) []string {
	var flags []string

	if !r.Value.Valid {
		flags = append(flags, FlagValueMissing)
	} else {
		if r.Value.Float64 < 0 {
			flags = append(flags, FlagValueNegative)
		}
		if r.Value.Float64 > maxDailyGeneration {
			flags = append(flags, FlagValueImplausible)
		}
	}

	if r.Date.Day < 1 || r.Date.Day > 31 {
		flags = append(flags, FlagDayOutOfRange)
	}

	return flags
}
