package store

import (
	"database/sql"
	"fmt"

	"github.com/lox/solarperf/internal/models"
)

// ClearDerived purges month_gen and adj_forecast so a reconcile pass starts
// from nothing.
func (s *Store) ClearDerived() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM month_gen`); err != nil {
		return fmt.Errorf("clear month_gen: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM adj_forecast`); err != nil {
		return fmt.Errorf("clear adj_forecast: %w", err)
	}
	return tx.Commit()
}

// SaveMonthlyResults writes effective generation and forecast rows. Existing
// (smi, month, year) keys are left untouched.
func (s *Store) SaveMonthlyResults(results []models.MonthlyResult) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	genStmt, err := tx.Prepare(`
		INSERT INTO month_gen (smi, month, year, val) VALUES (?, ?, ?, ?)
		ON CONFLICT(smi, month, year) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer genStmt.Close()

	fcStmt, err := tx.Prepare(`
		INSERT INTO adj_forecast (smi, month, year, adj_val) VALUES (?, ?, ?, ?)
		ON CONFLICT(smi, month, year) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer fcStmt.Close()

	stored := 0
	for _, r := range results {
		res, err := genStmt.Exec(r.SMI, r.Period.Month, r.Period.Year, r.Generation)
		if err != nil {
			return 0, fmt.Errorf("insert month_gen %s %s: %w", r.SMI, r.Period, err)
		}
		if _, err := fcStmt.Exec(r.SMI, r.Period.Month, r.Period.Year, r.Forecast); err != nil {
			return 0, fmt.Errorf("insert adj_forecast %s %s: %w", r.SMI, r.Period, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			stored += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return stored, nil
}

// AdjustedForecastSeries returns a site's effective forecasts ordered by (year, month).
func (s *Store) AdjustedForecastSeries(smi string) ([]float64, error) {
	return s.series(`SELECT adj_val FROM adj_forecast WHERE smi = ? ORDER BY year, month`, smi)
}

// GenerationSeries returns a site's effective generation ordered by (year, month).
func (s *Store) GenerationSeries(smi string) ([]float64, error) {
	return s.series(`SELECT val FROM month_gen WHERE smi = ? ORDER BY year, month`, smi)
}

func (s *Store) series(query, smi string) ([]float64, error) {
	rows, err := s.db.Query(query, smi)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// MonthlyGeneration returns the stored effective generation for one month.
func (s *Store) MonthlyGeneration(smi string, p models.MonthYear) (sql.NullFloat64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRow(`SELECT val FROM month_gen WHERE smi = ? AND month = ? AND year = ?`,
		smi, p.Month, p.Year).Scan(&v)
	if err == sql.ErrNoRows {
		return sql.NullFloat64{}, nil
	}
	return v, err
}
