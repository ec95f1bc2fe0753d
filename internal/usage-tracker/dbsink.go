// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package usage_tracker

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schemaVersion = 2

// DBSink persists usage records into a relational database, refusing to
// run against a schema version it doesn't recognize.
type DBSink struct {
	db *sql.DB
}

// OpenDBSink opens (creating if necessary) a sqlite database at path and
// ensures its schema is present at the expected version.
func OpenDBSink(path string) (*DBSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	s := &DBSink{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DBSink) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	row := s.db.QueryRow(`SELECT version FROM version LIMIT 1`)
	var version int
	switch err := row.Scan(&version); err {
	case sql.ErrNoRows:
		if _, err := s.db.Exec(`
			CREATE TABLE usage (
				started INTEGER, total_time REAL, waiting_time REAL,
				total_bytes INTEGER, result TEXT
			)`); err != nil {
			return fmt.Errorf("create usage table: %w", err)
		}
		if _, err := s.db.Exec(`
			CREATE TABLE current (
				rebooted INTEGER, updated INTEGER, connected INTEGER,
				waiting INTEGER, incomplete_bytes INTEGER
			)`); err != nil {
			return fmt.Errorf("create current table: %w", err)
		}
		if _, err := s.db.Exec(`INSERT INTO version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("seed version row: %w", err)
		}
		return nil
	case nil:
		if version != schemaVersion {
			return fmt.Errorf("usage database has schema version %d, expected %d", version, schemaVersion)
		}
		return nil
	default:
		return fmt.Errorf("read version row: %w", err)
	}
}

func (s *DBSink) RecordUsage(r Record) error {
	_, err := s.db.Exec(
		"INSERT INTO usage (started, total_time, waiting_time, total_bytes, result) VALUES (?, ?, ?, ?, ?)",
		r.Started, r.TotalTime, nullableFloat(r.WaitingTime), r.TotalBytes, string(r.Mood),
	)
	return err
}

func (s *DBSink) UpdateStats(u StatsUpdate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM current"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO current (rebooted, updated, connected, waiting, incomplete_bytes) VALUES (?, ?, ?, ?, ?)",
		u.RebootedAt.Unix(), u.UpdatedAt.Unix(), u.Connected, u.Waiting, u.IncompleteBytes,
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *DBSink) Close() error { return s.db.Close() }

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
