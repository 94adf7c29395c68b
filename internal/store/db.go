package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// Store-level sentinel errors. Services translate these into the caller
// facing taxonomy.
var (
	// ErrStaleVersion means an optimistic concurrency check lost the race.
	ErrStaleVersion = errors.New("store: stale version")
	// ErrRateLimited means an issuance window cap was hit inside the
	// issuing transaction.
	ErrRateLimited = errors.New("store: issuance rate limited")
	// ErrDuplicate means a uniqueness constraint rejected the insert.
	ErrDuplicate = errors.New("store: duplicate row")
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("store: not found")
)

// Open opens a database/sql handle backed by the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*config)
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}
