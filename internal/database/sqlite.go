package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite is the default single-host backend. One connection is kept open so
// writers are serialized by the pool itself.
type SQLite struct {
	DB   *sql.DB
	Path string
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	slog.Info("sqlite opened", "path", path)
	return &SQLite{DB: db, Path: path}, nil
}

// sqliteURIEscaper escapes the characters SQLite's URI filename parser
// treats as delimiters, so they stay part of the path.
var sqliteURIEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

func sqliteDSN(path string) string {
	query := url.Values{}
	query.Add("_pragma", "busy_timeout(5000)")
	query.Add("_pragma", "journal_mode(WAL)")
	query.Add("_pragma", "synchronous(FULL)")

	dsn := url.URL{
		Scheme:   "file",
		Opaque:   sqliteURIEscaper.Replace(filepath.Clean(path)),
		RawQuery: query.Encode(),
	}
	return dsn.String()
}

func (db *SQLite) Close() error {
	if db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

func (db *SQLite) Health(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}
