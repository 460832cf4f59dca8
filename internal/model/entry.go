package model

import (
	"io/fs"
	"time"
)

type EntryStatus string

const (
	EntryStatusQuarantined EntryStatus = "QUARANTINED"
	EntryStatusRestored    EntryStatus = "RESTORED"
	EntryStatusDeleted     EntryStatus = "DELETED"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusQuarantined, EntryStatusRestored, EntryStatusDeleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether an entry in status s may move to next.
// Only QUARANTINED entries change status; RESTORED and DELETED are final.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	return s == EntryStatusQuarantined && (next == EntryStatusRestored || next == EntryStatusDeleted)
}

// QuarantineEntry is the persisted metadata of one isolated file.
// QuarantinePath and FileHash are fixed at creation.
type QuarantineEntry struct {
	ID                  string      `json:"id" yaml:"id"`
	OriginalPath        string      `json:"original_path" yaml:"original_path"`
	QuarantinePath      string      `json:"quarantine_path" yaml:"quarantine_path"`
	FileHash            string      `json:"file_hash" yaml:"file_hash"`
	FileSize            int64       `json:"file_size" yaml:"file_size"`
	OriginalPermissions fs.FileMode `json:"original_permissions" yaml:"original_permissions"`
	ThreatName          string      `json:"threat_name" yaml:"threat_name"`
	Category            string      `json:"category" yaml:"category"`
	Severity            string      `json:"severity" yaml:"severity"`
	QuarantinedAt       time.Time   `json:"quarantined_at" yaml:"quarantined_at"`
	Status              EntryStatus `json:"status" yaml:"status"`
	StatusChangedAt     *time.Time  `json:"status_changed_at,omitempty" yaml:"status_changed_at,omitempty"`
}

func (e QuarantineEntry) IsQuarantined() bool {
	return e.Status == EntryStatusQuarantined
}

type QuarantineStats struct {
	EntryCount int   `json:"entry_count" yaml:"entry_count"`
	TotalSize  int64 `json:"total_size" yaml:"total_size"`
}

// ReconcileReport lists the disagreements between the quarantine directory
// and the QUARANTINED entries of the database.
type ReconcileReport struct {
	OrphanFiles    []string          `json:"orphan_files" yaml:"orphan_files"`
	MissingEntries []QuarantineEntry `json:"missing_entries" yaml:"missing_entries"`
}

func (r ReconcileReport) Consistent() bool {
	return len(r.OrphanFiles) == 0 && len(r.MissingEntries) == 0
}
