package models

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// Site is one row of the CRM site export, keyed by SMI.
type Site struct {
	SMI           string
	RefNo         string
	ECS           string
	Installer     string
	PVSize        string // kept as text, the export uses placeholders for unknown sizes
	PanelBrand    string
	Address       string
	Postcode      string
	State         string
	SiteStatus    string
	InstallDate   string
	SupplyDate    string // blank when the site has no recorded supply date
	Tariff        decimal.NullDecimal
	ExportControl bool
	SiteType      string // "C&I", "SME", "Resi" or blank
}

// HasSupplyDate reports whether a supply date was recorded.
func (s Site) HasSupplyDate() bool {
	return s.SupplyDate != ""
}

// MonthYear identifies a calendar month. Year is two-digit, matching the
// daily export.
type MonthYear struct {
	Month int
	Year  int
}

func (p MonthYear) String() string {
	return fmt.Sprintf("%d, %d", p.Month, p.Year)
}

// Before orders periods by (year, month).
func (p MonthYear) Before(o MonthYear) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Date is an observation day, two-digit year.
type Date struct {
	Day   int
	Month int
	Year  int
}

func (d Date) Period() MonthYear {
	return MonthYear{Month: d.Month, Year: d.Year}
}

type DailyReading struct {
	SMI      string
	Datatype string
	Date     Date
	Value    sql.NullFloat64
}

// Forecast is one month of a site's repeating annual forecast profile.
type Forecast struct {
	SMI   string
	Month int
	Value float64
}

// MonthlyResult is the effective generation and forecast for one site and
// month after supply-date reconciliation.
type MonthlyResult struct {
	SMI        string
	Period     MonthYear
	Generation float64
	Forecast   float64
}
