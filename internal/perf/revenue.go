package perf

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Revenue values a triple at a tariff quoted per 100 units of output.
type Revenue struct {
	Forecast   decimal.Decimal
	Generation decimal.Decimal
	// Shortfall is Generation - Forecast and is negative when a site is
	// behind forecast.
	Shortfall decimal.Decimal
}

func ComputeRevenue(t Triple, tariff decimal.Decimal) Revenue {
	fc := decimal.NewFromFloat(t.Forecast).Mul(tariff).Div(hundred)
	gen := decimal.NewFromFloat(t.Generation).Mul(tariff).Div(hundred)
	return Revenue{
		Forecast:   fc,
		Generation: gen,
		Shortfall:  gen.Sub(fc),
	}
}
