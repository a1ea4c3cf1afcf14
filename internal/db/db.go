// Package db opens the SQLite database and applies schema migrations.
package db

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Migrations holds the versioned schema (.up.sql/.down.sql pairs).
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Open opens (or creates) the SQLite database at path with WAL journaling
// and foreign keys enabled.
func Open(path string) (*sqlx.DB, error) {
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// WAL lets decision flows read while operator commands write.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return conn, nil
}
