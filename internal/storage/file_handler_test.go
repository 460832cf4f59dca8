package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"go-quarantine/internal/model"
)

// faultyFS delegates to the real file system except for the calls given an
// injected error.
type faultyFS struct {
	osFileSystem
	openErr   error
	renameErr error
	chmodErr  error
	mkdirErr  error
	removeErr error
}

func (f faultyFS) Open(name string) (*os.File, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.osFileSystem.Open(name)
}

func (f faultyFS) Rename(oldpath string, newpath string) error {
	if f.renameErr != nil {
		return f.renameErr
	}
	return f.osFileSystem.Rename(oldpath, newpath)
}

func (f faultyFS) Chmod(name string, mode fs.FileMode) error {
	if f.chmodErr != nil {
		return f.chmodErr
	}
	return f.osFileSystem.Chmod(name, mode)
}

func (f faultyFS) MkdirAll(path string, perm fs.FileMode) error {
	if f.mkdirErr != nil {
		return f.mkdirErr
	}
	return f.osFileSystem.MkdirAll(path, perm)
}

func (f faultyFS) Remove(name string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.osFileSystem.Remove(name)
}

type handlerFixture struct {
	handler *SecureFileHandler
	root    string
	base    string
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()

	base := t.TempDir()
	handler, err := NewSecureFileHandler(filepath.Join(base, "quarantine"), HandlerOptions{})
	require.NoError(t, err)

	return handlerFixture{handler: handler, root: handler.Root(), base: base}
}

// quarantined writes a read-only file straight into the quarantine root.
func (f handlerFixture) quarantined(t *testing.T, name string, content string) string {
	t.Helper()

	path := filepath.Join(f.root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chmod(path, 0o400))
	return path
}

func skipIfRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func modeOf(t *testing.T, path string) fs.FileMode {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Mode().Perm()
}

func TestNewSecureFileHandler(t *testing.T) {
	t.Parallel()

	t.Run("creates the root with the configured mode", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "quarantine")
		handler, err := NewSecureFileHandler(root, HandlerOptions{RootMode: 0o750})
		require.NoError(t, err)

		info, err := os.Stat(handler.Root())
		require.NoError(t, err)
		require.True(t, info.IsDir())
		require.Zero(t, info.Mode().Perm()&^fs.FileMode(0o750))
	})

	t.Run("rejects an empty root", func(t *testing.T) {
		_, err := NewSecureFileHandler("  ", HandlerOptions{})
		require.Error(t, err)
	})
}

func TestCalculateHashAndSize(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	path := filepath.Join(f.base, "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hello, World!"), 0o644))

	digest, err := f.handler.CalculateHash(path)
	require.NoError(t, err)
	require.Equal(t, sha256Hex("Hello, World!"), digest)
	require.Len(t, digest, 64)

	size, err := f.handler.GetFileSize(path)
	require.NoError(t, err)
	require.Equal(t, int64(13), size)

	_, err = f.handler.CalculateHash(filepath.Join(f.base, "missing"))
	require.ErrorContains(t, err, "not found")

	size, err = f.handler.GetFileSize(filepath.Join(f.base, "missing"))
	require.Error(t, err)
	require.Equal(t, int64(-1), size)
}

func TestVerifyFileIntegrity(t *testing.T) {
	t.Parallel()

	t.Run("matching hash", func(t *testing.T) {
		f := newHandlerFixture(t)
		path := filepath.Join(f.base, "test.txt")
		require.NoError(t, os.WriteFile(path, []byte("test content"), 0o644))

		require.NoError(t, f.handler.VerifyFileIntegrity(path, sha256Hex("test content")))
		require.NoError(t, f.handler.VerifyFileIntegrity(path, strings.ToUpper(sha256Hex("test content"))))
	})

	t.Run("hash mismatch", func(t *testing.T) {
		f := newHandlerFixture(t)
		path := filepath.Join(f.base, "test.txt")
		require.NoError(t, os.WriteFile(path, []byte("test content"), 0o644))

		err := f.handler.VerifyFileIntegrity(path, strings.Repeat("a", 64))
		require.Error(t, err)
		require.Contains(t, strings.ToLower(err.Error()), "mismatch")
		require.Contains(t, strings.ToLower(err.Error()), "corrupted")
	})

	t.Run("missing file", func(t *testing.T) {
		f := newHandlerFixture(t)
		err := f.handler.VerifyFileIntegrity(filepath.Join(f.base, "nonexistent.txt"), "abc123")
		require.Error(t, err)
		require.Contains(t, strings.ToLower(err.Error()), "not found")
	})

	t.Run("unreadable file", func(t *testing.T) {
		f := newHandlerFixture(t)
		path := filepath.Join(f.base, "test.txt")
		require.NoError(t, os.WriteFile(path, []byte("test content"), 0o644))
		f.handler.fs = faultyFS{openErr: &os.PathError{Op: "open", Path: path, Err: unix.EACCES}}

		err := f.handler.VerifyFileIntegrity(path, "abc123")
		require.Error(t, err)
		require.Contains(t, strings.ToLower(err.Error()), "permission")
	})
}

func TestMoveToQuarantine(t *testing.T) {
	t.Parallel()

	t.Run("moves file, captures metadata and locks it down", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := filepath.Join(f.base, "home", "malware.exe")
		require.NoError(t, os.MkdirAll(filepath.Dir(source), 0o755))
		require.NoError(t, os.WriteFile(source, []byte("X"), 0o644))
		require.NoError(t, os.Chmod(source, 0o644))

		result := f.handler.MoveToQuarantine(source, "0f1e2d_malware.exe")
		require.Equal(t, model.FileOpSuccess, result.Status, result.ErrorMessage)
		require.Equal(t, filepath.Join(f.root, "0f1e2d_malware.exe"), result.Path)
		require.Equal(t, sha256Hex("X"), result.FileHash)
		require.Equal(t, int64(1), result.FileSize)
		require.NotNil(t, result.OriginalPermissions)
		require.Equal(t, fs.FileMode(0o644), *result.OriginalPermissions)
		require.Empty(t, result.ErrorMessage)

		require.NoFileExists(t, source)
		require.Equal(t, DefaultQuarantinedFileMode, modeOf(t, result.Path))
	})

	t.Run("missing source", func(t *testing.T) {
		f := newHandlerFixture(t)
		result := f.handler.MoveToQuarantine(filepath.Join(f.base, "nope"), "x_nope")
		require.Equal(t, model.FileOpFileNotFound, result.Status)
	})

	t.Run("refuses symlinks and directories", func(t *testing.T) {
		f := newHandlerFixture(t)
		target := filepath.Join(f.base, "target.txt")
		require.NoError(t, os.WriteFile(target, []byte("t"), 0o644))
		link := filepath.Join(f.base, "link")
		require.NoError(t, os.Symlink(target, link))

		result := f.handler.MoveToQuarantine(link, "x_link")
		require.Equal(t, model.FileOpError, result.Status)
		require.Contains(t, result.ErrorMessage, "symlink")
		require.FileExists(t, target)

		result = f.handler.MoveToQuarantine(f.base, "x_dir")
		require.Equal(t, model.FileOpError, result.Status)
		require.Contains(t, result.ErrorMessage, "not a regular file")
	})

	t.Run("rejects names that leave the root", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := filepath.Join(f.base, "file.txt")
		require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))

		for _, name := range []string{"", "..", "../escape.txt", "sub/file.txt"} {
			result := f.handler.MoveToQuarantine(source, name)
			require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status, name)
		}
		require.FileExists(t, source)
	})

	t.Run("does not replace an existing quarantine file", func(t *testing.T) {
		f := newHandlerFixture(t)
		existing := f.quarantined(t, "dup_file.txt", "first")
		source := filepath.Join(f.base, "file.txt")
		require.NoError(t, os.WriteFile(source, []byte("second"), 0o644))

		result := f.handler.MoveToQuarantine(source, "dup_file.txt")
		require.Equal(t, model.FileOpAlreadyExists, result.Status)

		content, err := os.ReadFile(existing)
		require.NoError(t, err)
		require.Equal(t, "first", string(content))
		require.FileExists(t, source)
	})

	t.Run("falls back to copy across devices", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := filepath.Join(f.base, "file.txt")
		require.NoError(t, os.WriteFile(source, []byte("payload"), 0o644))
		f.handler.fs = faultyFS{renameErr: &os.LinkError{Op: "rename", Old: source, New: "x", Err: unix.EXDEV}}

		result := f.handler.MoveToQuarantine(source, "abc_file.txt")
		require.Equal(t, model.FileOpSuccess, result.Status, result.ErrorMessage)
		require.NoFileExists(t, source)

		content, err := os.ReadFile(result.Path)
		require.NoError(t, err)
		require.Equal(t, "payload", string(content))
	})

	t.Run("cross device copy is discarded when the source cannot be removed", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := filepath.Join(f.base, "file.txt")
		require.NoError(t, os.WriteFile(source, []byte("payload"), 0o644))
		f.handler.fs = faultyFS{
			renameErr: &os.LinkError{Op: "rename", Old: source, New: "x", Err: unix.EXDEV},
			removeErr: &os.PathError{Op: "remove", Path: source, Err: unix.EBUSY},
		}

		result := f.handler.MoveToQuarantine(source, "abc_file.txt")
		require.Equal(t, model.FileOpError, result.Status)
		require.FileExists(t, source)
	})

	t.Run("disk full is reported", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := filepath.Join(f.base, "file.txt")
		require.NoError(t, os.WriteFile(source, []byte("payload"), 0o644))
		f.handler.fs = faultyFS{renameErr: &os.LinkError{Op: "rename", Old: source, New: "x", Err: unix.ENOSPC}}

		result := f.handler.MoveToQuarantine(source, "abc_file.txt")
		require.Equal(t, model.FileOpError, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "disk full")
	})
}

func TestRestoreFromQuarantineValidation(t *testing.T) {
	t.Parallel()

	t.Run("protected destination is rejected and source untouched", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "test_file.quar", "fake quarantined content")

		result := f.handler.RestoreFromQuarantine(source, "/etc/malicious.conf", nil)
		require.Equal(t, model.FileOpInvalidRestorePath, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "protected")
		require.FileExists(t, source)
	})

	t.Run("injection characters are rejected", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "test_file.quar", "fake")

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(f.base, "file\nmalicious.txt"), nil)
		require.Equal(t, model.FileOpInvalidRestorePath, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "newline")
	})

	t.Run("restore path validated before source existence", func(t *testing.T) {
		f := newHandlerFixture(t)

		result := f.handler.RestoreFromQuarantine(filepath.Join(f.root, "nonexistent.quar"), "/etc/malicious.conf", nil)
		require.Equal(t, model.FileOpInvalidRestorePath, result.Status)
	})

	t.Run("source outside quarantine is rejected before existence check", func(t *testing.T) {
		f := newHandlerFixture(t)

		missing := filepath.Join(f.base, "outside", "secret.txt")
		result := f.handler.RestoreFromQuarantine(missing, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status)
		require.Contains(t, result.ErrorMessage, "not inside quarantine directory")
	})

	t.Run("quarantine path is checked before restore path", func(t *testing.T) {
		f := newHandlerFixture(t)
		outside := filepath.Join(f.base, "outside.txt")
		require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

		result := f.handler.RestoreFromQuarantine(outside, "/etc/malicious.conf", nil)
		require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status)
		require.FileExists(t, outside)
	})

	t.Run("destination through a missing component and a symlink is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "test_file.quar", "fake")
		require.NoError(t, os.Symlink("/etc", filepath.Join(f.base, "link")))

		result := f.handler.RestoreFromQuarantine(source, f.base+"/missing/../link/app.conf", nil)
		require.Equal(t, model.FileOpInvalidRestorePath, result.Status)
		require.Contains(t, result.ErrorMessage, "/etc")
		require.FileExists(t, source)
		require.NoFileExists(t, "/etc/app.conf")
	})

	t.Run("source through a missing component and a symlink is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)
		outside := filepath.Join(f.base, "outside")
		require.NoError(t, os.MkdirAll(outside, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("secret"), 0o644))
		require.NoError(t, os.Symlink(outside, filepath.Join(f.root, "link")))

		result := f.handler.RestoreFromQuarantine(f.root+"/missing/../link/secret.txt", filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status)
		require.FileExists(t, filepath.Join(outside, "secret.txt"))
	})

	t.Run("symlink source is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)
		outside := filepath.Join(f.base, "secret.txt")
		require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
		link := filepath.Join(f.root, "symlink_to_secret")
		require.NoError(t, os.Symlink(outside, link))

		result := f.handler.RestoreFromQuarantine(link, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "symlink")
		require.FileExists(t, outside)
	})
}

func TestRestoreFromQuarantineSourceChecks(t *testing.T) {
	t.Parallel()

	t.Run("missing quarantine file", func(t *testing.T) {
		f := newHandlerFixture(t)

		result := f.handler.RestoreFromQuarantine(filepath.Join(f.root, "nonexistent.txt"), filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpFileNotFound, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "not found")
	})

	t.Run("directory instead of file", func(t *testing.T) {
		f := newHandlerFixture(t)
		dir := filepath.Join(f.root, "not_a_file")
		require.NoError(t, os.MkdirAll(dir, 0o700))

		result := f.handler.RestoreFromQuarantine(dir, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpError, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "not a file")
	})

	t.Run("hash failure is reported as permission denied", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		f.handler.fs = faultyFS{openErr: &os.PathError{Op: "open", Path: source, Err: unix.EACCES}}

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpPermissionDenied, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "permission")
		require.FileExists(t, source)
	})

	t.Run("unreadable file on disk", func(t *testing.T) {
		skipIfRoot(t)
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_secret.txt", "quarantined content")
		require.NoError(t, os.Chmod(source, 0o000))
		t.Cleanup(func() { _ = os.Chmod(source, 0o644) })

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpPermissionDenied, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "permission")
	})
}

func TestRestoreFromQuarantineConflicts(t *testing.T) {
	t.Parallel()

	t.Run("existing file is left unchanged", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		destination := filepath.Join(f.base, "existing_file.txt")
		require.NoError(t, os.WriteFile(destination, []byte("I already exist!"), 0o644))

		result := f.handler.RestoreFromQuarantine(source, destination, nil)
		require.Equal(t, model.FileOpAlreadyExists, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "already exists")

		content, err := os.ReadFile(destination)
		require.NoError(t, err)
		require.Equal(t, "I already exist!", string(content))
		require.FileExists(t, source)
	})

	t.Run("existing symlink", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		target := filepath.Join(f.base, "target.txt")
		require.NoError(t, os.WriteFile(target, []byte("symlink target"), 0o644))
		destination := filepath.Join(f.base, "symlink_at_dest")
		require.NoError(t, os.Symlink(target, destination))

		result := f.handler.RestoreFromQuarantine(source, destination, nil)
		require.Equal(t, model.FileOpAlreadyExists, result.Status)
	})

	t.Run("dangling symlink", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		destination := filepath.Join(f.base, "dangling")
		require.NoError(t, os.Symlink(filepath.Join(f.base, "does-not-exist"), destination))

		result := f.handler.RestoreFromQuarantine(source, destination, nil)
		require.Equal(t, model.FileOpAlreadyExists, result.Status)
		require.NoFileExists(t, filepath.Join(f.base, "does-not-exist"))
	})

	t.Run("existing directory", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		destination := filepath.Join(f.base, "existing_directory")
		require.NoError(t, os.MkdirAll(destination, 0o755))

		result := f.handler.RestoreFromQuarantine(source, destination, nil)
		require.Equal(t, model.FileOpAlreadyExists, result.Status)
	})

	t.Run("second restore to the same destination", func(t *testing.T) {
		f := newHandlerFixture(t)
		first := f.quarantined(t, "aaa_file.txt", "first payload")
		second := f.quarantined(t, "bbb_file.txt", "second payload")
		destination := filepath.Join(f.base, "restored", "file.txt")

		result := f.handler.RestoreFromQuarantine(first, destination, nil)
		require.Equal(t, model.FileOpSuccess, result.Status, result.ErrorMessage)

		result = f.handler.RestoreFromQuarantine(second, destination, nil)
		require.Equal(t, model.FileOpAlreadyExists, result.Status)

		content, err := os.ReadFile(destination)
		require.NoError(t, err)
		require.Equal(t, "first payload", string(content))
		require.FileExists(t, second)
	})

	t.Run("race lost to a concurrent writer maps to already exists", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		f.handler.fs = faultyFS{renameErr: &os.LinkError{Op: "rename", Old: source, New: "x", Err: unix.EEXIST}}

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpAlreadyExists, result.Status)
	})
}

func TestRestoreFromQuarantineFailures(t *testing.T) {
	t.Parallel()

	t.Run("destination directory not writable", func(t *testing.T) {
		skipIfRoot(t)
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		readonly := filepath.Join(f.base, "readonly_dest")
		require.NoError(t, os.Mkdir(readonly, 0o500))
		t.Cleanup(func() { _ = os.Chmod(readonly, 0o755) })

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(readonly, "file.txt"), nil)
		require.Equal(t, model.FileOpPermissionDenied, result.Status)
		require.NotEmpty(t, result.ErrorMessage)
		require.FileExists(t, source)
	})

	t.Run("parent directory cannot be created", func(t *testing.T) {
		skipIfRoot(t)
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		readonly := filepath.Join(f.base, "readonly")
		require.NoError(t, os.Mkdir(readonly, 0o500))
		t.Cleanup(func() { _ = os.Chmod(readonly, 0o755) })

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(readonly, "subdir", "file.txt"), nil)
		require.Equal(t, model.FileOpPermissionDenied, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "directory")
	})

	t.Run("mkdir failure other than permission", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		f.handler.fs = faultyFS{mkdirErr: &os.PathError{Op: "mkdir", Path: "x", Err: unix.EIO}}

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(f.base, "restored", "subdir", "file.txt"), nil)
		require.Equal(t, model.FileOpError, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "directory")
	})

	t.Run("move permission error", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		f.handler.fs = faultyFS{renameErr: &os.LinkError{Op: "rename", Old: source, New: "x", Err: unix.EACCES}}

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpPermissionDenied, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "permission denied")
	})

	t.Run("generic move error", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		f.handler.fs = faultyFS{renameErr: errors.New("Disk I/O error")}

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpError, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "file operation error")
		require.FileExists(t, source)
	})

	t.Run("chmod failure after move is a partial failure", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "quarantined content")
		destination := filepath.Join(f.base, "restored", "file.txt")
		f.handler.fs = faultyFS{chmodErr: &os.PathError{Op: "chmod", Path: destination, Err: unix.EPERM}}
		mode := fs.FileMode(0o755)

		result := f.handler.RestoreFromQuarantine(source, destination, &mode)
		require.Equal(t, model.FileOpPermissionDenied, result.Status)
		require.NotEmpty(t, result.ErrorMessage)
		require.True(t, result.Moved())
		require.FileExists(t, destination)
		require.NoFileExists(t, source)
	})
}

func TestRestoreFromQuarantineSuccess(t *testing.T) {
	t.Parallel()

	t.Run("applies custom permissions", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_script.sh", "#!/bin/bash\necho hello")
		destination := filepath.Join(f.base, "restored", "script.sh")
		mode := fs.FileMode(0o755)

		result := f.handler.RestoreFromQuarantine(source, destination, &mode)
		require.Equal(t, model.FileOpSuccess, result.Status, result.ErrorMessage)
		require.True(t, result.IsSuccess())
		require.Equal(t, fs.FileMode(0o755), modeOf(t, destination))
		require.NotNil(t, result.OriginalPermissions)
		require.Equal(t, mode, *result.OriginalPermissions)
	})

	t.Run("creates nested parent directories", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc123_file.txt", "content")
		destination := filepath.Join(f.base, "a", "b", "c", "d", "file.txt")

		result := f.handler.RestoreFromQuarantine(source, destination, nil)
		require.Equal(t, model.FileOpSuccess, result.Status, result.ErrorMessage)

		content, err := os.ReadFile(destination)
		require.NoError(t, err)
		require.Equal(t, "content", string(content))
		require.Nil(t, result.OriginalPermissions)
	})

	t.Run("returns hash and size of the restored file", func(t *testing.T) {
		f := newHandlerFixture(t)
		content := strings.Repeat("X", 1000)
		source := f.quarantined(t, "abc123_file.txt", content)

		result := f.handler.RestoreFromQuarantine(source, filepath.Join(f.base, "restored", "file.txt"), nil)
		require.Equal(t, model.FileOpSuccess, result.Status, result.ErrorMessage)
		require.Equal(t, sha256Hex(content), result.FileHash)
		require.Equal(t, int64(1000), result.FileSize)
	})

	t.Run("quarantine then restore round trip", func(t *testing.T) {
		f := newHandlerFixture(t)
		original := filepath.Join(f.base, "home", "u", "malware.exe")
		require.NoError(t, os.MkdirAll(filepath.Dir(original), 0o755))
		require.NoError(t, os.WriteFile(original, []byte("X"), 0o644))
		require.NoError(t, os.Chmod(original, 0o640))

		moved := f.handler.MoveToQuarantine(original, "7c9e_malware.exe")
		require.Equal(t, model.FileOpSuccess, moved.Status, moved.ErrorMessage)

		destination := filepath.Join(f.base, "home", "u", "restored", "malware.exe")
		restored := f.handler.RestoreFromQuarantine(moved.Path, destination, moved.OriginalPermissions)
		require.Equal(t, model.FileOpSuccess, restored.Status, restored.ErrorMessage)
		require.Equal(t, moved.FileHash, restored.FileHash)

		content, err := os.ReadFile(destination)
		require.NoError(t, err)
		require.Equal(t, "X", string(content))
		require.Equal(t, fs.FileMode(0o640), modeOf(t, destination))
		require.NoFileExists(t, moved.Path)
	})
}

func TestRestoreVerifiedFromQuarantine(t *testing.T) {
	t.Parallel()

	t.Run("matching digest restores the file", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc_sample.bin", "sample")
		destination := filepath.Join(f.base, "restored", "sample.bin")

		result := f.handler.RestoreVerifiedFromQuarantine(source, destination, nil, strings.ToUpper(sha256Hex("sample")))
		require.Equal(t, model.FileOpSuccess, result.Status, result.ErrorMessage)
		require.Equal(t, sha256Hex("sample"), result.FileHash)
		require.FileExists(t, destination)
	})

	t.Run("content swapped after quarantine stays in quarantine", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc_sample.bin", "replaced content")
		destination := filepath.Join(f.base, "restored", "sample.bin")

		result := f.handler.RestoreVerifiedFromQuarantine(source, destination, nil, sha256Hex("original content"))
		require.Equal(t, model.FileOpHashMismatch, result.Status)
		require.Contains(t, result.ErrorMessage, "hash mismatch")
		require.False(t, result.Moved())
		require.FileExists(t, source)
		require.NoFileExists(t, destination)
	})

	t.Run("empty expected digest is refused", func(t *testing.T) {
		f := newHandlerFixture(t)
		source := f.quarantined(t, "abc_sample.bin", "sample")

		result := f.handler.RestoreVerifiedFromQuarantine(source, filepath.Join(f.base, "out.bin"), nil, " ")
		require.Equal(t, model.FileOpHashMismatch, result.Status)
		require.FileExists(t, source)
	})
}

func TestDeleteFromQuarantine(t *testing.T) {
	t.Parallel()

	t.Run("deletes a file inside the root", func(t *testing.T) {
		f := newHandlerFixture(t)
		path := f.quarantined(t, "abc123_malware.exe", "fake")

		result := f.handler.DeleteFromQuarantine(path)
		require.Equal(t, model.FileOpSuccess, result.Status, result.ErrorMessage)
		require.NoFileExists(t, path)
	})

	t.Run("path outside the root is left untouched", func(t *testing.T) {
		f := newHandlerFixture(t)
		outside := filepath.Join(f.base, "outside", "important.txt")
		require.NoError(t, os.MkdirAll(filepath.Dir(outside), 0o755))
		require.NoError(t, os.WriteFile(outside, []byte("important content"), 0o644))

		result := f.handler.DeleteFromQuarantine(outside)
		require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status)
		require.Contains(t, result.ErrorMessage, "not inside quarantine directory")

		content, err := os.ReadFile(outside)
		require.NoError(t, err)
		require.Equal(t, "important content", string(content))
	})

	t.Run("traversal is rejected", func(t *testing.T) {
		f := newHandlerFixture(t)
		outside := filepath.Join(f.base, "important.txt")
		require.NoError(t, os.WriteFile(outside, []byte("important"), 0o644))

		result := f.handler.DeleteFromQuarantine(f.root + "/../important.txt")
		require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status)
		require.FileExists(t, outside)
	})

	t.Run("symlink is rejected and its target kept", func(t *testing.T) {
		f := newHandlerFixture(t)
		outside := filepath.Join(f.base, "important.txt")
		require.NoError(t, os.WriteFile(outside, []byte("important"), 0o644))
		link := filepath.Join(f.root, "symlink")
		require.NoError(t, os.Symlink(outside, link))

		result := f.handler.DeleteFromQuarantine(link)
		require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status)
		require.Contains(t, strings.ToLower(result.ErrorMessage), "symlink")
		require.FileExists(t, outside)
	})

	t.Run("missing component before a symlinked directory cannot reach outside", func(t *testing.T) {
		f := newHandlerFixture(t)
		outside := t.TempDir()
		victim := filepath.Join(outside, "victim.txt")
		require.NoError(t, os.WriteFile(victim, []byte("important"), 0o644))
		require.NoError(t, os.Symlink(outside, filepath.Join(f.root, "link")))

		for _, path := range []string{
			f.root + "/missing/../link/victim.txt",
			f.root + "/a/b/../../link/victim.txt",
		} {
			result := f.handler.DeleteFromQuarantine(path)
			require.Equal(t, model.FileOpInvalidQuarantinePath, result.Status, path)
			require.FileExists(t, victim)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		f := newHandlerFixture(t)
		result := f.handler.DeleteFromQuarantine(filepath.Join(f.root, "gone.bin"))
		require.Equal(t, model.FileOpFileNotFound, result.Status)
	})

	t.Run("remove permission error", func(t *testing.T) {
		f := newHandlerFixture(t)
		path := f.quarantined(t, "abc123_malware.exe", "fake")
		f.handler.fs = faultyFS{removeErr: &os.PathError{Op: "remove", Path: path, Err: unix.EACCES}}

		result := f.handler.DeleteFromQuarantine(path)
		require.Equal(t, model.FileOpPermissionDenied, result.Status)
		require.FileExists(t, path)
	})
}
