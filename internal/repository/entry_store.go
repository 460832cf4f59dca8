package repository

import (
	"context"
	"time"

	"go-quarantine/internal/model"
)

// EntryStore is the quarantine metadata store. Both SQLiteEntryRepository
// and PostgresEntryRepository implement it.
type EntryStore interface {
	Create(ctx context.Context, entry model.QuarantineEntry) error
	FindByID(ctx context.Context, id string) (model.QuarantineEntry, error)
	FindActiveByOriginalPath(ctx context.Context, originalPath string) (model.QuarantineEntry, error)
	List(ctx context.Context, status model.EntryStatus) ([]model.QuarantineEntry, error)
	ListQuarantinedBefore(ctx context.Context, cutoff time.Time) ([]model.QuarantineEntry, error)
	UpdateStatus(ctx context.Context, id string, status model.EntryStatus, changedAt time.Time) error
	Stats(ctx context.Context) (model.QuarantineStats, error)
}

var (
	_ EntryStore = (*SQLiteEntryRepository)(nil)
	_ EntryStore = (*PostgresEntryRepository)(nil)
)
