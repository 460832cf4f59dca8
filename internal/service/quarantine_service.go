package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-quarantine/internal/event"
	"go-quarantine/internal/model"
	"go-quarantine/internal/repository"
	"go-quarantine/internal/storage"
	"go-quarantine/internal/util"
	"go-quarantine/pkg/opserror"
)

// maxNameBytes is NAME_MAX on the file systems the quarantine root lives on.
const maxNameBytes = 255

// fallbackBaseName replaces an original name that sanitizes to nothing.
const fallbackBaseName = "file"

// QuarantineManager ties scanner output to the file handler and the entry
// store. The file is always moved before its entry is written, so a failed
// write leaves an orphan file that Reconcile reports.
type QuarantineManager struct {
	handler *storage.SecureFileHandler
	entries repository.EntryStore
	bus     event.Bus
	locks   *keyedMutex
	now     func() time.Time
	newID   func() string
}

// NewQuarantineManager wires the manager. bus may be nil; otherwise every
// committed status change is published on it.
func NewQuarantineManager(handler *storage.SecureFileHandler, entries repository.EntryStore, bus event.Bus) *QuarantineManager {
	return &QuarantineManager{
		handler: handler,
		entries: entries,
		bus:     bus,
		locks:   newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

func (m *QuarantineManager) Root() string {
	return m.handler.Root()
}

// QuarantineFile isolates originalPath and records threat against it.
func (m *QuarantineManager) QuarantineFile(ctx context.Context, originalPath string, threat model.ThreatDetail) model.QuarantineResult {
	if strings.TrimSpace(originalPath) == "" {
		return model.QuarantineFailed(model.QuarantineError, "File path cannot be empty")
	}

	source, err := filepath.Abs(originalPath)
	if err != nil {
		return model.QuarantineFailed(model.QuarantineError, "Invalid file path: %v", err)
	}

	unlock := m.locks.Lock(pathKey(source))
	defer unlock()

	info, err := os.Lstat(source)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return model.QuarantineFailed(model.QuarantineFileNotFound, "File not found: %s", source)
	case errors.Is(err, fs.ErrPermission):
		return model.QuarantineFailed(model.QuarantinePermissionDenied, "Permission denied accessing file: %s", source)
	case err != nil:
		return model.QuarantineFailed(model.QuarantineError, "Cannot access file %s: %v", source, err)
	case !info.Mode().IsRegular():
		return model.QuarantineFailed(model.QuarantineError, "Path is not a regular file: %s", source)
	}

	existing, err := m.entries.FindActiveByOriginalPath(ctx, source)
	switch {
	case err == nil:
		return model.QuarantineResult{
			Status:       model.QuarantineAlreadyQuarantined,
			Entry:        &existing,
			ErrorMessage: fmt.Sprintf("File is already quarantined as entry %s", existing.ID),
		}
	case !errors.Is(err, model.ErrEntryNotFound):
		return model.QuarantineFailed(model.QuarantineDatabaseError, "Cannot check existing entries: %v", err)
	}

	moved := m.handler.MoveToQuarantine(source, quarantineName(m.newID(), filepath.Base(source)))
	if !moved.IsSuccess() {
		slog.Warn("quarantine failed", "path", source, "status", moved.Status, "error", moved.ErrorMessage)
		return model.QuarantineFailed(model.QuarantineStatusFromFileOp(moved.Status), "%s", moved.ErrorMessage)
	}

	entry := model.QuarantineEntry{
		ID:                  m.newID(),
		OriginalPath:        source,
		QuarantinePath:      moved.Path,
		FileHash:            moved.FileHash,
		FileSize:            moved.FileSize,
		OriginalPermissions: *moved.OriginalPermissions,
		ThreatName:          threat.ThreatName,
		Category:            threat.Category,
		Severity:            threat.Severity,
		QuarantinedAt:       m.now(),
		Status:              model.EntryStatusQuarantined,
	}

	if err := m.entries.Create(ctx, entry); err != nil {
		slog.Error("quarantined file has no entry", "path", source, "quarantine_path", moved.Path, "error", err)
		return model.QuarantineFailed(model.QuarantineDatabaseError,
			"File moved to %s but its entry could not be saved: %v", moved.Path, err)
	}

	slog.Info("file quarantined",
		"entry_id", entry.ID,
		"path", source,
		"threat", entry.ThreatName,
		"size", entry.FileSize,
	)
	m.publish(event.TypeEntryQuarantined, entry)
	return model.QuarantineResult{Status: model.QuarantineSuccess, Entry: &entry}
}

// QuarantineScanResult quarantines every detection of an infected scan and
// returns one result per detection, in order.
func (m *QuarantineManager) QuarantineScanResult(ctx context.Context, scan model.ScanResult) []model.QuarantineResult {
	if !scan.HasThreats() {
		return nil
	}

	results := make([]model.QuarantineResult, 0, len(scan.ThreatDetails))
	for _, threat := range scan.ThreatDetails {
		results = append(results, m.QuarantineFile(ctx, threat.FilePath, threat))
	}
	return results
}

// RestoreFile moves the file of entry id back to its original path, or to
// destination when it is not empty, after checking it against the recorded
// hash.
func (m *QuarantineManager) RestoreFile(ctx context.Context, id string, destination string) model.QuarantineResult {
	unlockEntry := m.locks.Lock(entryKey(id))
	defer unlockEntry()

	entry, failed, ok := m.activeEntry(ctx, id)
	if !ok {
		return failed
	}

	target := destination
	if strings.TrimSpace(target) == "" {
		target = entry.OriginalPath
	}
	if abs, err := filepath.Abs(target); err == nil {
		target = abs
	}

	unlockPath := m.locks.Lock(pathKey(target))
	defer unlockPath()

	if err := m.handler.Validator().ValidateQuarantinePath(entry.QuarantinePath); err != nil {
		return m.entryFailed(entry, model.QuarantineInvalidQuarantinePath, opserror.MessageOf(err))
	}

	if err := m.handler.VerifyFileIntegrity(entry.QuarantinePath, entry.FileHash); err != nil {
		slog.Warn("restore integrity check failed", "entry_id", entry.ID, "error", err)
		return m.entryFailed(entry, integrityStatus(err), opserror.MessageOf(err))
	}

	permissions := entry.OriginalPermissions
	result := m.handler.RestoreVerifiedFromQuarantine(entry.QuarantinePath, target, &permissions, entry.FileHash)
	if !result.Moved() {
		slog.Warn("restore failed", "entry_id", entry.ID, "status", result.Status, "error", result.ErrorMessage)
		return m.entryFailed(entry, model.QuarantineStatusFromFileOp(result.Status), result.ErrorMessage)
	}

	if failed, ok := m.markStatus(ctx, &entry, model.EntryStatusRestored); !ok {
		return failed
	}
	m.publish(event.TypeEntryRestored, entry)

	if !result.IsSuccess() {
		slog.Warn("file restored without original permissions", "entry_id", entry.ID, "path", result.Path, "error", result.ErrorMessage)
		return m.entryFailed(entry, model.QuarantineStatusFromFileOp(result.Status), result.ErrorMessage)
	}

	slog.Info("file restored", "entry_id", entry.ID, "path", result.Path)
	return model.QuarantineResult{Status: model.QuarantineSuccess, Entry: &entry}
}

// DeleteFile permanently removes the file of entry id. A file that is
// already gone still marks the entry DELETED.
func (m *QuarantineManager) DeleteFile(ctx context.Context, id string) model.QuarantineResult {
	unlock := m.locks.Lock(entryKey(id))
	defer unlock()

	entry, failed, ok := m.activeEntry(ctx, id)
	if !ok {
		return failed
	}

	result := m.handler.DeleteFromQuarantine(entry.QuarantinePath)
	switch {
	case result.IsSuccess():
	case result.Status == model.FileOpFileNotFound:
		slog.Warn("quarantined file already missing", "entry_id", entry.ID, "quarantine_path", entry.QuarantinePath)
	default:
		slog.Warn("delete failed", "entry_id", entry.ID, "status", result.Status, "error", result.ErrorMessage)
		return m.entryFailed(entry, model.QuarantineStatusFromFileOp(result.Status), result.ErrorMessage)
	}

	if failed, ok := m.markStatus(ctx, &entry, model.EntryStatusDeleted); !ok {
		return failed
	}
	m.publish(event.TypeEntryDeleted, entry)

	slog.Info("quarantined file deleted", "entry_id", entry.ID, "original_path", entry.OriginalPath)
	return model.QuarantineResult{Status: model.QuarantineSuccess, Entry: &entry}
}

func (m *QuarantineManager) GetEntry(ctx context.Context, id string) (model.QuarantineEntry, error) {
	return m.entries.FindByID(ctx, id)
}

// ListEntries lists entries newest first; an empty status lists all of them.
func (m *QuarantineManager) ListEntries(ctx context.Context, status model.EntryStatus) ([]model.QuarantineEntry, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, status)
	}
	return m.entries.List(ctx, status)
}

func (m *QuarantineManager) Stats(ctx context.Context) (model.QuarantineStats, error) {
	return m.entries.Stats(ctx)
}

// CleanupOlderThan deletes every QUARANTINED entry older than age and
// returns how many were deleted. Failures do not stop the sweep.
func (m *QuarantineManager) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	if age <= 0 {
		return 0, fmt.Errorf("%w: retention period must be positive", model.ErrInvalidInput)
	}

	expired, err := m.entries.ListQuarantinedBefore(ctx, m.now().Add(-age))
	if err != nil {
		return 0, err
	}

	deleted := 0
	var errs []error
	for _, entry := range expired {
		result := m.DeleteFile(ctx, entry.ID)
		if !result.IsSuccess() {
			errs = append(errs, fmt.Errorf("entry %s: %w", entry.ID, result.Err()))
			continue
		}
		deleted++
	}

	slog.Info("quarantine cleanup finished", "expired", len(expired), "deleted", deleted)
	return deleted, errors.Join(errs...)
}

// Reconcile compares the top level of the quarantine root with the
// QUARANTINED entries. It only reports; nothing is moved or rewritten.
func (m *QuarantineManager) Reconcile(ctx context.Context) (model.ReconcileReport, error) {
	report := model.ReconcileReport{OrphanFiles: []string{}, MissingEntries: []model.QuarantineEntry{}}

	entries, err := m.entries.List(ctx, model.EntryStatusQuarantined)
	if err != nil {
		return report, err
	}

	dirEntries, err := os.ReadDir(m.Root())
	if err != nil {
		return report, fmt.Errorf("read quarantine root: %w", err)
	}

	// A shared Postgres store holds entries for every host's root; only
	// files that live directly in this root can be checked from here.
	recorded := make(map[string]struct{}, len(entries))
	skipped := 0
	for _, entry := range entries {
		path := filepath.Clean(entry.QuarantinePath)
		if filepath.Dir(path) != m.Root() {
			skipped++
			continue
		}
		recorded[path] = struct{}{}

		if _, err := os.Lstat(entry.QuarantinePath); errors.Is(err, fs.ErrNotExist) {
			report.MissingEntries = append(report.MissingEntries, entry)
			slog.Warn("quarantine entry has no file", "entry_id", entry.ID, "quarantine_path", entry.QuarantinePath)
		}
	}

	for _, dirEntry := range dirEntries {
		path := filepath.Join(m.Root(), dirEntry.Name())
		if _, ok := recorded[path]; ok {
			continue
		}
		report.OrphanFiles = append(report.OrphanFiles, path)
		slog.Warn("quarantine file has no entry", "path", path)
	}

	if skipped > 0 {
		slog.Debug("reconcile skipped entries outside this root", "root", m.Root(), "count", skipped)
	}
	return report, nil
}

// activeEntry loads entry id and requires it to still be QUARANTINED.
func (m *QuarantineManager) activeEntry(ctx context.Context, id string) (model.QuarantineEntry, model.QuarantineResult, bool) {
	entry, err := m.entries.FindByID(ctx, id)
	switch {
	case errors.Is(err, model.ErrEntryNotFound):
		return entry, model.QuarantineFailed(model.QuarantineEntryNotFound, "Quarantine entry not found: %s", id), false
	case err != nil:
		return entry, model.QuarantineFailed(model.QuarantineDatabaseError, "Cannot load quarantine entry %s: %v", id, err), false
	case !entry.IsQuarantined():
		return entry, m.entryFailed(entry, model.QuarantineInvalidState,
			fmt.Sprintf("Entry %s is %s, not %s", id, entry.Status, model.EntryStatusQuarantined)), false
	}
	return entry, model.QuarantineResult{}, true
}

func (m *QuarantineManager) markStatus(ctx context.Context, entry *model.QuarantineEntry, status model.EntryStatus) (model.QuarantineResult, bool) {
	changedAt := m.now()
	if err := m.entries.UpdateStatus(ctx, entry.ID, status, changedAt); err != nil {
		slog.Error("entry status not updated", "entry_id", entry.ID, "status", status, "error", err)
		return m.entryFailed(*entry, model.QuarantineDatabaseError,
			fmt.Sprintf("File operation completed but entry %s could not be marked %s: %v", entry.ID, status, err)), false
	}

	entry.Status = status
	entry.StatusChangedAt = &changedAt
	return model.QuarantineResult{}, true
}

func (m *QuarantineManager) entryFailed(entry model.QuarantineEntry, status model.QuarantineStatus, message string) model.QuarantineResult {
	return model.QuarantineResult{Status: status, Entry: &entry, ErrorMessage: message}
}

func integrityStatus(err error) model.QuarantineStatus {
	switch opserror.CodeOf(err) {
	case string(model.FileOpFileNotFound):
		return model.QuarantineFileNotFound
	case string(model.FileOpPermissionDenied):
		return model.QuarantinePermissionDenied
	case storage.CodeHashMismatch:
		return model.QuarantineIntegrityFailed
	default:
		return model.QuarantineError
	}
}

func (m *QuarantineManager) publish(eventType event.Type, entry model.QuarantineEntry) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(event.Event{
		ID:        m.newID(),
		Type:      eventType,
		Entry:     entry,
		Timestamp: m.now(),
	})
}

// quarantineName prefixes the sanitized original base name with an opaque
// id and trims it to fit a single path component.
func quarantineName(prefix string, base string) string {
	safe := util.SanitizeFilename(base)
	if safe == "" {
		safe = fallbackBaseName
	}
	return util.TruncateName(prefix+"_"+safe, maxNameBytes)
}

func entryKey(id string) string {
	return "entry:" + id
}

func pathKey(path string) string {
	return "path:" + filepath.Clean(path)
}
