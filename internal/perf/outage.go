package perf

import "database/sql"

// DefaultOutageThreshold is the daily generation below which a day counts as
// an outage.
const DefaultOutageThreshold = 0.1

// OutageDays counts missing readings and readings below threshold.
func OutageDays(values []sql.NullFloat64, threshold float64) int {
	n := 0
	for _, v := range values {
		if !v.Valid || v.Float64 < threshold {
			n++
		}
	}
	return n
}
