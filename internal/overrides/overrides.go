// Package overrides holds per-site corrections that are not present in the
// CRM export: forecast derates for the solar farm sites and tariffs for sites
// whose tariff field is empty.
package overrides

import (
	"github.com/shopspring/decimal"
)

// Table maps SMIs to corrections. The zero value applies nothing.
type Table struct {
	// Derates maps SMI to two-digit year to a forecast multiplier.
	Derates map[string]map[int]float64
	Tariffs map[string]decimal.Decimal
}

// Default returns the corrections carried by the existing report process.
func Default() Table {
	farmDerate := func() map[int]float64 {
		return map[int]float64{16: 0.933, 17: 0.926, 18: 0.919}
	}
	return Table{
		Derates: map[string]map[int]float64{
			"6203778594": farmDerate(),
			"6203779394": farmDerate(),
		},
		Tariffs: map[string]decimal.Decimal{
			"6203778594": decimal.NewFromInt(9),
			"6203779394": decimal.NewFromInt(9),
			"B162191181": decimal.NewFromInt(14),
			"B165791182": decimal.NewFromInt(14),
			"D170092557": decimal.NewFromInt(14),
			"C172991611": decimal.RequireFromString("16.02"),
			"G161391137": decimal.RequireFromString("19.63"),
			"G161391138": decimal.RequireFromString("19.63"),
		},
	}
}

// Derate returns the forecast multiplier for smi in a two-digit year.
func (t Table) Derate(smi string, year int) (float64, bool) {
	byYear, ok := t.Derates[smi]
	if !ok {
		return 1, false
	}
	f, ok := byYear[year]
	if !ok {
		return 1, false
	}
	return f, true
}

// Tariff returns the override tariff for smi, if any.
func (t Table) Tariff(smi string) (decimal.Decimal, bool) {
	v, ok := t.Tariffs[smi]
	return v, ok
}
