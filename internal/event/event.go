package event

import (
	"time"

	"go-quarantine/internal/model"
)

type Type string

const (
	TypeEntryQuarantined Type = "entry.quarantined"
	TypeEntryRestored    Type = "entry.restored"
	TypeEntryDeleted     Type = "entry.deleted"
)

// Event reports a committed status change of a quarantine entry. Entry is
// the record as it was persisted.
type Event struct {
	ID        string                `json:"id"`
	Type      Type                  `json:"type"`
	Entry     model.QuarantineEntry `json:"entry"`
	Timestamp time.Time             `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
