package store

import (
	"database/sql"
	"fmt"

	"github.com/lox/solarperf/internal/models"
)

// ReplaceSites swaps the site metadata and forecast tables for the given rows
// in a single transaction. Duplicate SMIs keep the first row seen.
func (s *Store) ReplaceSites(sites []models.Site, forecasts []models.Forecast) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM smi_details`); err != nil {
		return fmt.Errorf("clear smi_details: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM forecast`); err != nil {
		return fmt.Errorf("clear forecast: %w", err)
	}

	for _, st := range sites {
		_, err := tx.Exec(`
			INSERT INTO smi_details (smi, ref_no, ecs, installer, pv_size, panel_brand, address, postcode,
				state, site_status, install_date, supply_date, tariff, export_control, site_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(smi) DO NOTHING
		`, st.SMI, st.RefNo, st.ECS, st.Installer, st.PVSize, st.PanelBrand, st.Address, st.Postcode,
			st.State, st.SiteStatus, st.InstallDate, st.SupplyDate, st.Tariff, st.ExportControl, st.SiteType)
		if err != nil {
			return fmt.Errorf("insert site %s: %w", st.SMI, err)
		}
	}

	for _, fc := range forecasts {
		_, err := tx.Exec(`
			INSERT INTO forecast (smi, month, val) VALUES (?, ?, ?)
			ON CONFLICT(smi, month) DO NOTHING
		`, fc.SMI, fc.Month, fc.Value)
		if err != nil {
			return fmt.Errorf("insert forecast %s/%d: %w", fc.SMI, fc.Month, err)
		}
	}

	return tx.Commit()
}

// GetSite returns the metadata for smi, or nil when the site is unknown.
func (s *Store) GetSite(smi string) (*models.Site, error) {
	var st models.Site
	err := s.db.QueryRow(`
		SELECT smi, COALESCE(ref_no, ''), COALESCE(ecs, ''), COALESCE(installer, ''), COALESCE(pv_size, ''),
			COALESCE(panel_brand, ''), COALESCE(address, ''), COALESCE(postcode, ''), COALESCE(state, ''),
			COALESCE(site_status, ''), COALESCE(install_date, ''), COALESCE(supply_date, ''), tariff,
			export_control, COALESCE(site_type, '')
		FROM smi_details WHERE smi = ?
	`, smi).Scan(&st.SMI, &st.RefNo, &st.ECS, &st.Installer, &st.PVSize,
		&st.PanelBrand, &st.Address, &st.Postcode, &st.State,
		&st.SiteStatus, &st.InstallDate, &st.SupplyDate, &st.Tariff,
		&st.ExportControl, &st.SiteType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Forecast returns the raw forecast for a calendar month; invalid when absent.
func (s *Store) Forecast(smi string, month int) (sql.NullFloat64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRow(`SELECT val FROM forecast WHERE smi = ? AND month = ?`, smi, month).Scan(&v)
	if err == sql.ErrNoRows {
		return sql.NullFloat64{}, nil
	}
	return v, err
}

// Forecasts returns a site's forecast profile ordered by month.
func (s *Store) Forecasts(smi string) ([]models.Forecast, error) {
	rows, err := s.db.Query(`SELECT smi, month, val FROM forecast WHERE smi = ? ORDER BY month`, smi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forecasts []models.Forecast
	for rows.Next() {
		var fc models.Forecast
		if err := rows.Scan(&fc.SMI, &fc.Month, &fc.Value); err != nil {
			return nil, err
		}
		forecasts = append(forecasts, fc)
	}
	return forecasts, rows.Err()
}

func (s *Store) CountSites() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM smi_details`).Scan(&n)
	return n, err
}
