package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-quarantine/internal/model"
)

const pgUniqueViolation = "23505"

type PostgresEntryRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresEntryRepository(pool *pgxpool.Pool) *PostgresEntryRepository {
	return &PostgresEntryRepository{pool: pool}
}

func (r *PostgresEntryRepository) Create(ctx context.Context, entry model.QuarantineEntry) error {
	if err := validateNewEntry(entry); err != nil {
		return err
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO quarantine_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULL)`,
		entry.ID, entry.OriginalPath, entry.QuarantinePath, entry.FileHash, entry.FileSize,
		int64(entry.OriginalPermissions.Perm()), entry.ThreatName, entry.Category, entry.Severity,
		utcOrNow(entry.QuarantinedAt), string(entry.Status))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return model.ErrEntryExists
	}
	if err != nil {
		return fmt.Errorf("create quarantine entry: %w", err)
	}
	return nil
}

func (r *PostgresEntryRepository) FindByID(ctx context.Context, id string) (model.QuarantineEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM quarantine_entries WHERE id = $1`, id)

	entry, err := scanPostgresEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.QuarantineEntry{}, model.ErrEntryNotFound
	}
	if err != nil {
		return model.QuarantineEntry{}, fmt.Errorf("find quarantine entry: %w", err)
	}
	return entry, nil
}

func (r *PostgresEntryRepository) FindActiveByOriginalPath(ctx context.Context, originalPath string) (model.QuarantineEntry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM quarantine_entries
		 WHERE original_path = $1 AND status = $2
		 ORDER BY quarantined_at DESC LIMIT 1`,
		originalPath, string(model.EntryStatusQuarantined))

	entry, err := scanPostgresEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.QuarantineEntry{}, model.ErrEntryNotFound
	}
	if err != nil {
		return model.QuarantineEntry{}, fmt.Errorf("find quarantine entry by path: %w", err)
	}
	return entry, nil
}

func (r *PostgresEntryRepository) List(ctx context.Context, status model.EntryStatus) ([]model.QuarantineEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM quarantine_entries`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY quarantined_at DESC, id`

	return r.query(ctx, "list quarantine entries", query, args...)
}

func (r *PostgresEntryRepository) ListQuarantinedBefore(ctx context.Context, cutoff time.Time) ([]model.QuarantineEntry, error) {
	return r.query(ctx, "list expired quarantine entries",
		`SELECT `+entryColumns+` FROM quarantine_entries
		 WHERE status = $1 AND quarantined_at < $2
		 ORDER BY quarantined_at, id`,
		string(model.EntryStatusQuarantined), cutoff.UTC())
}

func (r *PostgresEntryRepository) UpdateStatus(ctx context.Context, id string, status model.EntryStatus, changedAt time.Time) error {
	if !model.EntryStatusQuarantined.CanTransitionTo(status) {
		return model.ErrInvalidStatusTransition
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE quarantine_entries
		 SET status = $2, status_changed_at = $3
		 WHERE id = $1 AND status = $4`,
		id, string(status), utcOrNow(changedAt), string(model.EntryStatusQuarantined))
	if err != nil {
		return fmt.Errorf("update quarantine entry status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return model.ErrInvalidStatusTransition
}

func (r *PostgresEntryRepository) Stats(ctx context.Context) (model.QuarantineStats, error) {
	var stats model.QuarantineStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(file_size), 0)::BIGINT
		 FROM quarantine_entries WHERE status = $1`,
		string(model.EntryStatusQuarantined)).Scan(&stats.EntryCount, &stats.TotalSize)
	if err != nil {
		return model.QuarantineStats{}, fmt.Errorf("quarantine stats: %w", err)
	}
	return stats, nil
}

func (r *PostgresEntryRepository) query(ctx context.Context, op string, query string, args ...any) ([]model.QuarantineEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	entries := make([]model.QuarantineEntry, 0)
	for rows.Next() {
		entry, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quarantine entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanPostgresEntry(s rowScanner) (model.QuarantineEntry, error) {
	var row entryRow
	var statusChangedAt *time.Time

	if err := s.Scan(
		&row.entry.ID, &row.entry.OriginalPath, &row.entry.QuarantinePath,
		&row.entry.FileHash, &row.entry.FileSize, &row.permissions,
		&row.entry.ThreatName, &row.entry.Category, &row.entry.Severity,
		&row.entry.QuarantinedAt, &row.status, &statusChangedAt,
	); err != nil {
		return model.QuarantineEntry{}, err
	}

	row.entry.QuarantinedAt = row.entry.QuarantinedAt.UTC()
	if statusChangedAt != nil {
		changed := statusChangedAt.UTC()
		row.entry.StatusChangedAt = &changed
	}
	return row.finish(), nil
}
