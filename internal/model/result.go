package model

import (
	"fmt"
	"io/fs"

	"go-quarantine/pkg/opserror"
)

type FileOperationStatus string

const (
	FileOpSuccess               FileOperationStatus = "SUCCESS"
	FileOpFileNotFound          FileOperationStatus = "FILE_NOT_FOUND"
	FileOpPermissionDenied      FileOperationStatus = "PERMISSION_DENIED"
	FileOpAlreadyExists         FileOperationStatus = "ALREADY_EXISTS"
	FileOpInvalidRestorePath    FileOperationStatus = "INVALID_RESTORE_PATH"
	FileOpInvalidQuarantinePath FileOperationStatus = "INVALID_QUARANTINE_PATH"
	FileOpHashMismatch          FileOperationStatus = "HASH_MISMATCH"
	FileOpError                 FileOperationStatus = "ERROR"
)

// FileOperationResult is the outcome of a single SecureFileHandler call.
// ErrorMessage is set only on failure; the hash, size and permission fields
// only on success. Path is set whenever the file reached its destination,
// which includes the partial failure where permissions could not be applied.
type FileOperationResult struct {
	Status              FileOperationStatus `json:"status"`
	ErrorMessage        string              `json:"error_message,omitempty"`
	Path                string              `json:"path,omitempty"`
	FileHash            string              `json:"file_hash,omitempty"`
	FileSize            int64               `json:"file_size,omitempty"`
	OriginalPermissions *fs.FileMode        `json:"original_permissions,omitempty"`
}

func FileOperationFailed(status FileOperationStatus, format string, args ...any) FileOperationResult {
	return FileOperationResult{Status: status, ErrorMessage: fmt.Sprintf(format, args...)}
}

func (r FileOperationResult) IsSuccess() bool {
	return r.Status == FileOpSuccess
}

// Moved reports whether the file left its source, successfully or not.
func (r FileOperationResult) Moved() bool {
	return r.IsSuccess() || r.Path != ""
}

// Err returns nil for a successful result and an *opserror.Error carrying
// the status otherwise.
func (r FileOperationResult) Err() error {
	if r.IsSuccess() {
		return nil
	}
	return opserror.New(string(r.Status), r.ErrorMessage, "")
}

type QuarantineStatus string

const (
	QuarantineSuccess               QuarantineStatus = "SUCCESS"
	QuarantineFileNotFound          QuarantineStatus = "FILE_NOT_FOUND"
	QuarantinePermissionDenied      QuarantineStatus = "PERMISSION_DENIED"
	QuarantineAlreadyExists         QuarantineStatus = "ALREADY_EXISTS"
	QuarantineInvalidRestorePath    QuarantineStatus = "INVALID_RESTORE_PATH"
	QuarantineInvalidQuarantinePath QuarantineStatus = "INVALID_QUARANTINE_PATH"
	QuarantineAlreadyQuarantined    QuarantineStatus = "ALREADY_QUARANTINED"
	QuarantineEntryNotFound         QuarantineStatus = "ENTRY_NOT_FOUND"
	QuarantineInvalidState          QuarantineStatus = "INVALID_STATE"
	QuarantineIntegrityFailed       QuarantineStatus = "INTEGRITY_FAILED"
	QuarantineDatabaseError         QuarantineStatus = "DATABASE_ERROR"
	QuarantineError                 QuarantineStatus = "ERROR"
)

// QuarantineStatusFromFileOp maps a handler status onto the workflow status
// of the same name.
func QuarantineStatusFromFileOp(status FileOperationStatus) QuarantineStatus {
	switch status {
	case FileOpSuccess:
		return QuarantineSuccess
	case FileOpFileNotFound:
		return QuarantineFileNotFound
	case FileOpPermissionDenied:
		return QuarantinePermissionDenied
	case FileOpAlreadyExists:
		return QuarantineAlreadyExists
	case FileOpInvalidRestorePath:
		return QuarantineInvalidRestorePath
	case FileOpInvalidQuarantinePath:
		return QuarantineInvalidQuarantinePath
	case FileOpHashMismatch:
		return QuarantineIntegrityFailed
	default:
		return QuarantineError
	}
}

// QuarantineResult is the caller-facing outcome of a manager workflow.
type QuarantineResult struct {
	Status       QuarantineStatus `json:"status" yaml:"status"`
	Entry        *QuarantineEntry `json:"entry,omitempty" yaml:"entry,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

func QuarantineFailed(status QuarantineStatus, format string, args ...any) QuarantineResult {
	return QuarantineResult{Status: status, ErrorMessage: fmt.Sprintf(format, args...)}
}

func (r QuarantineResult) IsSuccess() bool {
	return r.Status == QuarantineSuccess
}

func (r QuarantineResult) Err() error {
	if r.IsSuccess() {
		return nil
	}
	return opserror.New(string(r.Status), r.ErrorMessage, "")
}
