package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/lox/solarperf/internal/models"
)

// ErrNoReadings is returned when the daily readings table is empty.
var ErrNoReadings = errors.New("store: no daily readings")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the SQLite database at path and applies migrations. The pool is
// limited to one connection: every phase is a single writer.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if version, err := s.MigrationVersion(); err == nil {
		log.Printf("store: opened %s at schema version %d", path, version)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ClearDailyReadings empties the readings table ahead of a fresh ingest.
func (s *Store) ClearDailyReadings() error {
	_, err := s.db.Exec(`DELETE FROM daily_gen`)
	return err
}

// InsertDailyReadings stores readings in one transaction. Duplicate
// (smi, day, month, year) keys are ignored; the number of new rows is returned.
func (s *Store) InsertDailyReadings(readings []models.DailyReading) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_gen (smi, datatype, obs_day, obs_month, obs_year, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(smi, obs_day, obs_month, obs_year) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	stored := 0
	for _, r := range readings {
		res, err := stmt.Exec(r.SMI, r.Datatype, r.Date.Day, r.Date.Month, r.Date.Year, r.Value)
		if err != nil {
			return 0, fmt.Errorf("insert reading %s %d/%d/%d: %w", r.SMI, r.Date.Day, r.Date.Month, r.Date.Year, err)
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

// ReadingSMIs returns every SMI with at least one daily reading.
func (s *Store) ReadingSMIs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT smi FROM daily_gen ORDER BY smi`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var smis []string
	for rows.Next() {
		var smi string
		if err := rows.Scan(&smi); err != nil {
			return nil, err
		}
		smis = append(smis, smi)
	}
	return smis, rows.Err()
}

// ReadingPeriods returns every observed (month, year) ordered by year then month.
func (s *Store) ReadingPeriods() ([]models.MonthYear, error) {
	rows, err := s.db.Query(`
		SELECT obs_month, obs_year FROM daily_gen
		GROUP BY obs_month, obs_year
		ORDER BY obs_year, obs_month
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []models.MonthYear
	for rows.Next() {
		var p models.MonthYear
		if err := rows.Scan(&p.Month, &p.Year); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// LastReadingDate returns the most recent observation day across all sites.
func (s *Store) LastReadingDate() (models.Date, error) {
	var d models.Date
	err := s.db.QueryRow(`
		SELECT obs_day, obs_month, obs_year FROM daily_gen
		ORDER BY obs_year DESC, obs_month DESC, obs_day DESC
		LIMIT 1
	`).Scan(&d.Day, &d.Month, &d.Year)
	if err == sql.ErrNoRows {
		return d, ErrNoReadings
	}
	return d, err
}

// SumReadings sums a site's readings for one month. The result is invalid
// when no readings exist.
func (s *Store) SumReadings(smi string, p models.MonthYear) (sql.NullFloat64, error) {
	var sum sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT SUM(value) FROM daily_gen
		WHERE smi = ? AND obs_month = ? AND obs_year = ?
	`, smi, p.Month, p.Year).Scan(&sum)
	return sum, err
}

// SumReadingsFrom sums a site's readings for one month, counting only days on
// or after fromDay.
func (s *Store) SumReadingsFrom(smi string, p models.MonthYear, fromDay int) (sql.NullFloat64, error) {
	var sum sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT SUM(value) FROM daily_gen
		WHERE smi = ? AND obs_month = ? AND obs_year = ? AND obs_day >= ?
	`, smi, p.Month, p.Year, fromDay).Scan(&sum)
	return sum, err
}

// DailyValues returns the raw readings for a site and month, NULLs included.
func (s *Store) DailyValues(smi string, p models.MonthYear) ([]sql.NullFloat64, error) {
	rows, err := s.db.Query(`
		SELECT value FROM daily_gen
		WHERE smi = ? AND obs_month = ? AND obs_year = ?
		ORDER BY obs_day
	`, smi, p.Month, p.Year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []sql.NullFloat64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *Store) CountDailyReadings() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM daily_gen`).Scan(&n)
	return n, err
}
