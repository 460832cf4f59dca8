package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"go-quarantine/internal/model"
)

// sqliteTimeLayout is fixed width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteEntryRepository struct {
	db *sql.DB
}

func NewSQLiteEntryRepository(db *sql.DB) *SQLiteEntryRepository {
	return &SQLiteEntryRepository{db: db}
}

func (r *SQLiteEntryRepository) Create(ctx context.Context, entry model.QuarantineEntry) error {
	if err := validateNewEntry(entry); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO quarantine_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		entry.ID, entry.OriginalPath, entry.QuarantinePath, entry.FileHash, entry.FileSize,
		int64(entry.OriginalPermissions.Perm()), entry.ThreatName, entry.Category, entry.Severity,
		formatSQLiteTime(utcOrNow(entry.QuarantinedAt)), string(entry.Status))
	if isSQLiteUniqueViolation(err) {
		return model.ErrEntryExists
	}
	if err != nil {
		return fmt.Errorf("create quarantine entry: %w", err)
	}
	return nil
}

func (r *SQLiteEntryRepository) FindByID(ctx context.Context, id string) (model.QuarantineEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM quarantine_entries WHERE id = ?`, id)

	entry, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QuarantineEntry{}, model.ErrEntryNotFound
	}
	if err != nil {
		return model.QuarantineEntry{}, fmt.Errorf("find quarantine entry: %w", err)
	}
	return entry, nil
}

// FindActiveByOriginalPath returns the newest QUARANTINED entry recorded for
// originalPath.
func (r *SQLiteEntryRepository) FindActiveByOriginalPath(ctx context.Context, originalPath string) (model.QuarantineEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM quarantine_entries
		 WHERE original_path = ? AND status = ?
		 ORDER BY quarantined_at DESC LIMIT 1`,
		originalPath, string(model.EntryStatusQuarantined))

	entry, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QuarantineEntry{}, model.ErrEntryNotFound
	}
	if err != nil {
		return model.QuarantineEntry{}, fmt.Errorf("find quarantine entry by path: %w", err)
	}
	return entry, nil
}

// List returns entries newest first. An empty status lists every entry.
func (r *SQLiteEntryRepository) List(ctx context.Context, status model.EntryStatus) ([]model.QuarantineEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM quarantine_entries`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY quarantined_at DESC, id`

	return r.query(ctx, "list quarantine entries", query, args...)
}

func (r *SQLiteEntryRepository) ListQuarantinedBefore(ctx context.Context, cutoff time.Time) ([]model.QuarantineEntry, error) {
	return r.query(ctx, "list expired quarantine entries",
		`SELECT `+entryColumns+` FROM quarantine_entries
		 WHERE status = ? AND quarantined_at < ?
		 ORDER BY quarantined_at, id`,
		string(model.EntryStatusQuarantined), formatSQLiteTime(cutoff.UTC()))
}

// UpdateStatus moves a QUARANTINED entry to status. Entries already in a
// final status are left unchanged and ErrInvalidStatusTransition is returned.
func (r *SQLiteEntryRepository) UpdateStatus(ctx context.Context, id string, status model.EntryStatus, changedAt time.Time) error {
	if !model.EntryStatusQuarantined.CanTransitionTo(status) {
		return model.ErrInvalidStatusTransition
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE quarantine_entries
		 SET status = ?, status_changed_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), formatSQLiteTime(utcOrNow(changedAt)), id, string(model.EntryStatusQuarantined))
	if err != nil {
		return fmt.Errorf("update quarantine entry status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update quarantine entry status: %w", err)
	}
	if affected > 0 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return model.ErrInvalidStatusTransition
}

func (r *SQLiteEntryRepository) Stats(ctx context.Context) (model.QuarantineStats, error) {
	var stats model.QuarantineStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(file_size), 0)
		 FROM quarantine_entries WHERE status = ?`,
		string(model.EntryStatusQuarantined)).Scan(&stats.EntryCount, &stats.TotalSize)
	if err != nil {
		return model.QuarantineStats{}, fmt.Errorf("quarantine stats: %w", err)
	}
	return stats, nil
}

func (r *SQLiteEntryRepository) query(ctx context.Context, op string, query string, args ...any) ([]model.QuarantineEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	entries := make([]model.QuarantineEntry, 0)
	for rows.Next() {
		entry, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quarantine entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanSQLiteEntry(s rowScanner) (model.QuarantineEntry, error) {
	var row entryRow
	var quarantinedAt string
	var statusChangedAt sql.NullString

	if err := s.Scan(
		&row.entry.ID, &row.entry.OriginalPath, &row.entry.QuarantinePath,
		&row.entry.FileHash, &row.entry.FileSize, &row.permissions,
		&row.entry.ThreatName, &row.entry.Category, &row.entry.Severity,
		&quarantinedAt, &row.status, &statusChangedAt,
	); err != nil {
		return model.QuarantineEntry{}, err
	}

	at, err := time.Parse(sqliteTimeLayout, quarantinedAt)
	if err != nil {
		return model.QuarantineEntry{}, fmt.Errorf("parse quarantined_at: %w", err)
	}
	row.entry.QuarantinedAt = at

	if statusChangedAt.Valid {
		changed, err := time.Parse(sqliteTimeLayout, statusChangedAt.String)
		if err != nil {
			return model.QuarantineEntry{}, fmt.Errorf("parse status_changed_at: %w", err)
		}
		row.entry.StatusChangedAt = &changed
	}

	return row.finish(), nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
