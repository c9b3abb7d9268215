// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Storage is the persistence collaborator for the ad-mediation core:
// ad plays, revenue records, performance counters and per-business
// settings.
type Storage struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies
// pending migrations. Use ":memory:" for tests.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The mediation loop is single-caller but the payout runner may
	// share the file.
	db.SetMaxOpenConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for tests.
func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) Close() error {
	return s.db.Close()
}
