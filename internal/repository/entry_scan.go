package repository

import (
	"io/fs"
	"time"

	"go-quarantine/internal/model"
)

const entryColumns = `id, original_path, quarantine_path, file_hash, file_size,
	original_permissions, threat_name, category, severity,
	quarantined_at, status, status_changed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// entryRow mirrors one quarantine_entries row before driver specific
// conversions are applied.
type entryRow struct {
	entry       model.QuarantineEntry
	permissions int64
	status      string
}

func (r *entryRow) finish() model.QuarantineEntry {
	r.entry.OriginalPermissions = fs.FileMode(r.permissions) & fs.ModePerm
	r.entry.Status = model.EntryStatus(r.status)
	return r.entry
}

func validateNewEntry(entry model.QuarantineEntry) error {
	switch {
	case entry.ID == "", entry.QuarantinePath == "", entry.OriginalPath == "":
		return model.ErrInvalidInput
	case len(entry.FileHash) != 64, entry.FileSize < 0:
		return model.ErrInvalidInput
	case entry.Status != model.EntryStatusQuarantined:
		return model.ErrInvalidInput
	}
	return nil
}

func utcOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
