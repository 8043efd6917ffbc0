package ingest

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNoSMIColumn is returned when no header of a site export maps to the SMI field.
var ErrNoSMIColumn = errors.New("ingest: no SMI column in site export")

// Canonical site export fields.
const (
	FieldSMI           = "smi"
	FieldRefNo         = "ref_no"
	FieldECS           = "ecs"
	FieldInstaller     = "installer"
	FieldPVSize        = "pv_size"
	FieldPanelBrand    = "panel_brand"
	FieldAddress       = "address"
	FieldPostcode      = "postcode"
	FieldState         = "state"
	FieldSiteStatus    = "site_status"
	FieldInstallDate   = "install_date"
	FieldSupplyDate    = "supply_date"
	FieldExportControl = "export_control"
	FieldTariff        = "tariff"
)

var monthFields = [...]string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// HeaderMapping maps any header matching Pattern to Field.
type HeaderMapping struct {
	Pattern string `yaml:"pattern"`
	Field   string `yaml:"field"`
}

// DefaultHeaderMappings matches the CRM export headers. Order matters: the
// first matching pattern wins, so "Installation Date" is tried before "Supply".
func DefaultHeaderMappings() []HeaderMapping {
	mappings := []HeaderMapping{
		{Pattern: "SMI", Field: FieldSMI},
		{Pattern: "Reference", Field: FieldRefNo},
		{Pattern: "ECS", Field: FieldECS},
		{Pattern: "Installer", Field: FieldInstaller},
		{Pattern: "Size", Field: FieldPVSize},
		{Pattern: "Brand", Field: FieldPanelBrand},
		{Pattern: "Address", Field: FieldAddress},
		{Pattern: "Postcode", Field: FieldPostcode},
		{Pattern: "State", Field: FieldState},
		{Pattern: "PPA", Field: FieldSiteStatus},
		{Pattern: "Installation Date", Field: FieldInstallDate},
		{Pattern: "Supply", Field: FieldSupplyDate},
		{Pattern: "Export", Field: FieldExportControl},
		{Pattern: "Tariff", Field: FieldTariff},
	}
	for _, name := range monthFields {
		title := string(name[0]-'a'+'A') + name[1:]
		mappings = append(mappings, HeaderMapping{Pattern: title, Field: name})
	}
	return mappings
}

// HeaderMap resolves export headers to canonical fields.
type HeaderMap struct {
	patterns []*regexp.Regexp
	fields   []string
}

func NewHeaderMap(mappings []HeaderMapping) (*HeaderMap, error) {
	m := &HeaderMap{}
	for _, hm := range mappings {
		re, err := regexp.Compile(hm.Pattern)
		if err != nil {
			return nil, fmt.Errorf("header pattern %q: %w", hm.Pattern, err)
		}
		m.patterns = append(m.patterns, re)
		m.fields = append(m.fields, hm.Field)
	}
	return m, nil
}

// Field returns the field for a single header.
func (m *HeaderMap) Field(header string) (string, bool) {
	for i, re := range m.patterns {
		if re.MatchString(header) {
			return m.fields[i], true
		}
	}
	return "", false
}

// Columns maps each recognised field to its column index. When two headers
// resolve to the same field the leftmost column is used.
func (m *HeaderMap) Columns(headers []string) (map[string]int, error) {
	cols := make(map[string]int)
	for i, h := range headers {
		field, ok := m.Field(h)
		if !ok {
			continue
		}
		if _, seen := cols[field]; !seen {
			cols[field] = i
		}
	}
	if _, ok := cols[FieldSMI]; !ok {
		return nil, ErrNoSMIColumn
	}
	return cols, nil
}
