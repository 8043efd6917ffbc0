package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS daily_gen (
    smi TEXT NOT NULL,
    datatype TEXT,
    obs_day INTEGER NOT NULL,
    obs_month INTEGER NOT NULL,
    obs_year INTEGER NOT NULL,
    value REAL,
    UNIQUE(smi, obs_day, obs_month, obs_year)
);

CREATE TABLE IF NOT EXISTS smi_details (
    smi TEXT PRIMARY KEY,
    ref_no TEXT,
    ecs TEXT,
    installer TEXT,
    pv_size TEXT,
    panel_brand TEXT,
    address TEXT,
    postcode TEXT,
    state TEXT,
    site_status TEXT,
    install_date TEXT,
    supply_date TEXT,
    tariff TEXT,
    export_control BOOLEAN NOT NULL DEFAULT FALSE,
    site_type TEXT
);

CREATE TABLE IF NOT EXISTS forecast (
    smi TEXT NOT NULL,
    month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
    val REAL NOT NULL,
    UNIQUE(smi, month)
);

CREATE TABLE IF NOT EXISTS month_gen (
    smi TEXT NOT NULL,
    month INTEGER NOT NULL,
    year INTEGER NOT NULL,
    val REAL NOT NULL,
    UNIQUE(smi, month, year)
);

CREATE TABLE IF NOT EXISTS adj_forecast (
    smi TEXT NOT NULL,
    month INTEGER NOT NULL,
    year INTEGER NOT NULL,
    adj_val REAL NOT NULL,
    UNIQUE(smi, month, year)
);

CREATE INDEX IF NOT EXISTS idx_daily_gen_period ON daily_gen(smi, obs_year, obs_month);
`,
	},
	{
		Version:     2,
		Description: "Add runs table for phase auditing",
		SQL: `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    phase TEXT NOT NULL,
    source TEXT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    records INTEGER,
    sites INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`,
	},
	{
		Version:     3,
		Description: "Add source_exports archive of ingested files",
		SQL: `
CREATE TABLE IF NOT EXISTS source_exports (
    hash TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    archived_at DATETIME NOT NULL,
    size INTEGER NOT NULL,
    payload_compressed BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_source_exports_kind ON source_exports(kind, archived_at);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Printf("migrations: completed %d", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
