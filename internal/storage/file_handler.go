package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go-quarantine/internal/model"
	"go-quarantine/pkg/opserror"
)

// Default modes used when HandlerOptions leaves a field zero.
const (
	DefaultRootMode            fs.FileMode = 0o700
	DefaultRestoreDirMode      fs.FileMode = 0o755
	DefaultQuarantinedFileMode fs.FileMode = 0o400
)

// CodeHashMismatch is the opserror code returned by VerifyFileIntegrity on a
// digest mismatch.
const CodeHashMismatch = string(model.FileOpHashMismatch)

type HandlerOptions struct {
	// RootMode is applied when the quarantine root has to be created.
	RootMode fs.FileMode
	// RestoreDirMode is applied to parent directories created during restore.
	RestoreDirMode fs.FileMode
	// QuarantinedFileMode is applied to files once they are inside the root.
	QuarantinedFileMode fs.FileMode
}

func (o HandlerOptions) withDefaults() HandlerOptions {
	if o.RootMode == 0 {
		o.RootMode = DefaultRootMode
	}
	if o.RestoreDirMode == 0 {
		o.RestoreDirMode = DefaultRestoreDirMode
	}
	if o.QuarantinedFileMode == 0 {
		o.QuarantinedFileMode = DefaultQuarantinedFileMode
	}
	return o
}

// SecureFileHandler performs single-file quarantine, restore and delete
// operations. Every public operation maps file system failures onto a
// FileOperationResult; none of them return a bare error.
type SecureFileHandler struct {
	validator *PathValidator
	opts      HandlerOptions
	fs        fileSystem
}

func NewSecureFileHandler(root string, opts HandlerOptions) (*SecureFileHandler, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("quarantine root cannot be empty")
	}

	opts = opts.withDefaults()

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve quarantine root: %w", err)
	}

	if err := os.MkdirAll(rootAbs, opts.RootMode); err != nil {
		return nil, fmt.Errorf("create quarantine root: %w", err)
	}

	validator, err := NewPathValidator(rootAbs)
	if err != nil {
		return nil, err
	}

	return &SecureFileHandler{validator: validator, opts: opts, fs: osFileSystem{}}, nil
}

func (h *SecureFileHandler) Root() string {
	return h.validator.RootAbs()
}

func (h *SecureFileHandler) Validator() *PathValidator {
	return h.validator
}

// CalculateHash streams the file through SHA-256 and returns the lowercase
// hex digest.
func (h *SecureFileHandler) CalculateHash(path string) (string, error) {
	file, err := h.fs.Open(path)
	if err != nil {
		return "", readError(path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", readError(path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// GetFileSize returns the size in bytes, or -1 with an error.
func (h *SecureFileHandler) GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return -1, readError(path, err)
	}

	return info.Size(), nil
}

// VerifyFileIntegrity recomputes the digest of path and compares it with
// expectedHash.
func (h *SecureFileHandler) VerifyFileIntegrity(path string, expectedHash string) error {
	actual, err := h.CalculateHash(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, strings.TrimSpace(expectedHash)) {
		return opserror.New(CodeHashMismatch,
			fmt.Sprintf("File hash mismatch: expected %s, got %s; file may be corrupted or tampered with", expectedHash, actual),
			path)
	}

	return nil
}

// MoveToQuarantine moves sourcePath into the quarantine root under
// quarantineName, which must be a bare file name. The digest, size and
// permission bits are captured before the move and returned on success.
func (h *SecureFileHandler) MoveToQuarantine(sourcePath string, quarantineName string) model.FileOperationResult {
	if strings.TrimSpace(sourcePath) == "" {
		return model.FileOperationFailed(model.FileOpError, "Source path cannot be empty")
	}
	if strings.ContainsRune(sourcePath, 0) {
		return model.FileOperationFailed(model.FileOpError, "Source path contains null bytes")
	}

	info, err := os.Lstat(sourcePath)
	if err != nil {
		return statFailure(sourcePath, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return model.FileOperationFailed(model.FileOpError, "Refusing to quarantine a symlink: %s", sourcePath)
	}
	if !info.Mode().IsRegular() {
		return model.FileOperationFailed(model.FileOpError, "Path is not a regular file: %s", sourcePath)
	}

	if quarantineName == "" || quarantineName != filepath.Base(quarantineName) || quarantineName == "." || quarantineName == ".." {
		return model.FileOperationFailed(model.FileOpInvalidQuarantinePath, "Invalid quarantine file name: %q", quarantineName)
	}

	destination, err := h.validator.ResolveQuarantinePath(filepath.Join(h.Root(), quarantineName))
	if err != nil {
		return model.FileOperationFailed(model.FileOpInvalidQuarantinePath, "%s", opserror.MessageOf(err))
	}

	fileHash, err := h.CalculateHash(sourcePath)
	if err != nil {
		return model.FileOperationFailed(model.FileOpPermissionDenied, "Cannot read file for hashing: %s", opserror.MessageOf(err))
	}
	permissions := info.Mode().Perm()

	if _, err := os.Lstat(destination); err == nil {
		return model.FileOperationFailed(model.FileOpAlreadyExists, "Quarantine destination already exists: %s", destination)
	}

	if err := movePath(h.fs, sourcePath, destination); err != nil {
		return moveFailure(err)
	}

	if err := h.fs.Chmod(destination, h.opts.QuarantinedFileMode); err != nil {
		slog.Warn("failed to restrict quarantined file permissions", "path", destination, "error", err)
	}

	return model.FileOperationResult{
		Status:              model.FileOpSuccess,
		Path:                destination,
		FileHash:            fileHash,
		FileSize:            info.Size(),
		OriginalPermissions: &permissions,
	}
}

// RestoreFromQuarantine moves a quarantined file to restorePath. Both paths
// are validated before anything on disk is touched. When originalPermissions
// is non-nil it is applied after the move; a failure there leaves the file at
// the destination and is reported as PERMISSION_DENIED.
func (h *SecureFileHandler) RestoreFromQuarantine(quarantinePath string, restorePath string, originalPermissions *fs.FileMode) model.FileOperationResult {
	return h.restore(quarantinePath, restorePath, originalPermissions, "")
}

// RestoreVerifiedFromQuarantine behaves like RestoreFromQuarantine but
// compares the digest it computes before the move with expectedHash and
// returns HASH_MISMATCH, leaving the file in quarantine, when they differ.
func (h *SecureFileHandler) RestoreVerifiedFromQuarantine(quarantinePath string, restorePath string, originalPermissions *fs.FileMode, expectedHash string) model.FileOperationResult {
	if strings.TrimSpace(expectedHash) == "" {
		return model.FileOperationFailed(model.FileOpHashMismatch, "No recorded hash to verify %s against", quarantinePath)
	}
	return h.restore(quarantinePath, restorePath, originalPermissions, expectedHash)
}

func (h *SecureFileHandler) restore(quarantinePath string, restorePath string, originalPermissions *fs.FileMode, expectedHash string) model.FileOperationResult {
	source, err := h.validator.ResolveQuarantinePath(quarantinePath)
	if err != nil {
		return model.FileOperationFailed(model.FileOpInvalidQuarantinePath, "%s", opserror.MessageOf(err))
	}

	destination, err := h.validator.ResolveRestorePath(restorePath)
	if err != nil {
		return model.FileOperationFailed(model.FileOpInvalidRestorePath, "%s", opserror.MessageOf(err))
	}

	info, err := os.Stat(source)
	if err != nil {
		if isNotExist(err) {
			return model.FileOperationFailed(model.FileOpFileNotFound, "Quarantined file not found: %s", quarantinePath)
		}
		return statFailure(quarantinePath, err)
	}
	if !info.Mode().IsRegular() {
		return model.FileOperationFailed(model.FileOpError, "Quarantine path is not a file: %s", quarantinePath)
	}

	fileHash, err := h.CalculateHash(source)
	if err != nil {
		return model.FileOperationFailed(model.FileOpPermissionDenied, "Cannot verify quarantined file: %s", opserror.MessageOf(err))
	}
	if expectedHash != "" && !strings.EqualFold(fileHash, strings.TrimSpace(expectedHash)) {
		return model.FileOperationFailed(model.FileOpHashMismatch,
			"File hash mismatch: expected %s, got %s; file may be corrupted or tampered with", expectedHash, fileHash)
	}

	fileSize, err := h.GetFileSize(source)
	if err != nil {
		return model.FileOperationFailed(model.FileOpPermissionDenied, "Cannot verify quarantined file: %s", opserror.MessageOf(err))
	}

	for _, candidate := range []string{restorePath, destination} {
		_, statErr := os.Lstat(candidate)
		switch {
		case statErr == nil:
			return model.FileOperationFailed(model.FileOpAlreadyExists, "Restore destination already exists: %s", restorePath)
		case isPermission(statErr):
			return model.FileOperationFailed(model.FileOpPermissionDenied, "Permission denied accessing restore destination: %v", statErr)
		case !isNotExist(statErr) && !isNotDir(statErr):
			return model.FileOperationFailed(model.FileOpError, "Cannot inspect restore destination: %v", statErr)
		}
	}

	parent := filepath.Dir(destination)
	if err := h.fs.MkdirAll(parent, h.opts.RestoreDirMode); err != nil {
		if isPermission(err) {
			return model.FileOperationFailed(model.FileOpPermissionDenied, "Permission denied creating directory %s: %v", parent, err)
		}
		return model.FileOperationFailed(model.FileOpError, "Error creating directory %s: %v", parent, err)
	}

	if err := movePath(h.fs, source, destination); err != nil {
		return moveFailure(err)
	}

	if originalPermissions != nil {
		if err := h.fs.Chmod(destination, *originalPermissions); err != nil {
			result := model.FileOperationFailed(model.FileOpPermissionDenied,
				"File restored to %s but permissions could not be applied: %v", destination, err)
			result.Path = destination
			return result
		}
	}

	return model.FileOperationResult{
		Status:              model.FileOpSuccess,
		Path:                destination,
		FileHash:            fileHash,
		FileSize:            fileSize,
		OriginalPermissions: originalPermissions,
	}
}

// DeleteFromQuarantine permanently removes a file inside the quarantine
// root. Paths failing validation are never touched.
func (h *SecureFileHandler) DeleteFromQuarantine(quarantinePath string) model.FileOperationResult {
	target, err := h.validator.ResolveQuarantinePath(quarantinePath)
	if err != nil {
		return model.FileOperationFailed(model.FileOpInvalidQuarantinePath, "%s", opserror.MessageOf(err))
	}

	info, err := os.Lstat(target)
	if err != nil {
		if isNotExist(err) {
			return model.FileOperationFailed(model.FileOpFileNotFound, "Quarantined file not found: %s", quarantinePath)
		}
		return statFailure(quarantinePath, err)
	}
	if !info.Mode().IsRegular() {
		return model.FileOperationFailed(model.FileOpError, "Quarantine path is not a file: %s", quarantinePath)
	}

	if err := h.fs.Remove(target); err != nil {
		if isPermission(err) {
			return model.FileOperationFailed(model.FileOpPermissionDenied, "Permission denied deleting file: %v", err)
		}
		return model.FileOperationFailed(model.FileOpError, "Error deleting file: %v", err)
	}

	return model.FileOperationResult{Status: model.FileOpSuccess, Path: target}
}

func readError(path string, err error) error {
	switch {
	case isNotExist(err):
		return opserror.New(string(model.FileOpFileNotFound), fmt.Sprintf("File not found: %s", path), "")
	case isPermission(err):
		return opserror.New(string(model.FileOpPermissionDenied), fmt.Sprintf("Permission denied reading file: %s", path), "")
	default:
		return opserror.New(string(model.FileOpError), fmt.Sprintf("Error reading file %s: %v", path, err), "")
	}
}

func statFailure(path string, err error) model.FileOperationResult {
	switch {
	case isNotExist(err):
		return model.FileOperationFailed(model.FileOpFileNotFound, "File not found: %s", path)
	case isPermission(err):
		return model.FileOperationFailed(model.FileOpPermissionDenied, "Permission denied accessing file: %s", path)
	default:
		return model.FileOperationFailed(model.FileOpError, "Cannot access file %s: %v", path, err)
	}
}

func moveFailure(err error) model.FileOperationResult {
	switch {
	case isAlreadyExists(err):
		return model.FileOperationFailed(model.FileOpAlreadyExists, "Destination already exists: %v", err)
	case isPermission(err):
		return model.FileOperationFailed(model.FileOpPermissionDenied, "Permission denied moving file: %v", err)
	case isDiskFull(err):
		return model.FileOperationFailed(model.FileOpError, "Disk full while moving file: %v", err)
	default:
		return model.FileOperationFailed(model.FileOpError, "File operation error: %v", err)
	}
}
