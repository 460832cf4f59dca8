package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go-quarantine/internal/model"
	"go-quarantine/pkg/opserror"
)

// ProtectedDirectories are the system prefixes a restore may never write
// into.
var ProtectedDirectories = []string{
	"/etc",
	"/var",
	"/usr",
	"/bin",
	"/sbin",
	"/lib",
	"/lib64",
	"/boot",
	"/root",
	"/sys",
	"/proc",
}

type protectedDir struct {
	name     string
	resolved string
}

// PathValidator checks caller supplied paths before any file system
// mutation. It holds no mutable state and is safe for concurrent use.
type PathValidator struct {
	rootAbs   string
	protected []protectedDir
}

func NewPathValidator(root string) (*PathValidator, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("quarantine root cannot be empty")
	}

	rootAbs, err := resolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("resolve quarantine root: %w", err)
	}

	protected := make([]protectedDir, 0, len(ProtectedDirectories))
	for _, dir := range ProtectedDirectories {
		resolved, resolveErr := resolvePath(dir)
		if resolveErr != nil {
			resolved = dir
		}
		protected = append(protected, protectedDir{name: dir, resolved: resolved})
	}

	return &PathValidator{rootAbs: rootAbs, protected: protected}, nil
}

// RootAbs is the canonical quarantine root.
func (v *PathValidator) RootAbs() string {
	return v.rootAbs
}

func (v *PathValidator) ValidateRestorePath(path string) error {
	_, err := v.ResolveRestorePath(path)
	return err
}

// ResolveRestorePath validates a restore destination and returns its
// canonical form. The destination does not need to exist.
func (v *PathValidator) ResolveRestorePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", invalidRestorePath("Restore path cannot be empty")
	}

	if strings.ContainsRune(path, 0) {
		return "", invalidRestorePath("Restore path contains null bytes")
	}

	if strings.ContainsAny(path, "\n\r") {
		return "", invalidRestorePath("Restore path contains newline characters")
	}

	canonical, err := resolvePath(path)
	if err != nil {
		return "", invalidRestorePath(fmt.Sprintf("Invalid path format: %v", err))
	}

	if dir, ok := v.protectedPrefix(path, canonical); ok {
		return "", invalidRestorePath(fmt.Sprintf("Cannot restore to protected system directory: %s", dir))
	}

	return canonical, nil
}

func (v *PathValidator) ValidateQuarantinePath(path string) error {
	_, err := v.ResolveQuarantinePath(path)
	return err
}

// ResolveQuarantinePath validates a path on the quarantine side and returns
// its canonical form. The path itself must not be a symlink and must resolve
// strictly inside the root; it does not need to exist.
func (v *PathValidator) ResolveQuarantinePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", invalidQuarantinePath("Quarantine path cannot be empty")
	}

	if strings.ContainsRune(path, 0) {
		return "", invalidQuarantinePath("Quarantine path contains null bytes")
	}

	last, err := lastComponent(path)
	if err != nil {
		return "", invalidQuarantinePath(fmt.Sprintf("Invalid path format: %v", err))
	}

	info, err := os.Lstat(last)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink != 0:
		return "", invalidQuarantinePath(fmt.Sprintf("Quarantine path is a symlink: %s", path))
	case err != nil && !errors.Is(err, fs.ErrNotExist) && !isNotDir(err):
		return "", invalidQuarantinePath(fmt.Sprintf("Cannot inspect quarantine path: %v", err))
	}

	canonical, err := resolvePath(path)
	if err != nil {
		return "", invalidQuarantinePath(fmt.Sprintf("Invalid path format: %v", err))
	}

	if !isStrictlyWithinRoot(v.rootAbs, canonical) {
		return "", invalidQuarantinePath(fmt.Sprintf("Path is not inside quarantine directory: %s", path))
	}

	return canonical, nil
}

// lastComponent returns the final name of path joined to its canonical
// parent, which is the entry the kernel would operate on. A path ending in
// "." or ".." is fully resolved instead.
func lastComponent(path string) (string, error) {
	trimmed := strings.TrimRight(path, string(filepath.Separator))
	idx := strings.LastIndex(trimmed, string(filepath.Separator))
	base := trimmed[idx+1:]
	if base == "" || base == "." || base == ".." {
		return resolvePath(path)
	}

	parent := trimmed[:idx+1]
	if idx < 0 {
		parent = "."
	}
	parentCanonical, err := resolvePath(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(parentCanonical, base), nil
}

// protectedPrefix reports the protected directory containing canonical.
// Membership is decided on the canonical path alone, matching either the
// declared or the resolved form of each directory. The name reported prefers
// what the caller wrote, so /bin/sh is reported as /bin even where /bin links
// to /usr/bin.
func (v *PathValidator) protectedPrefix(original string, canonical string) (string, bool) {
	resolvedMatch, ok := v.longestMatch(canonical, true)
	if !ok {
		return "", false
	}

	if lexical, err := filepath.Abs(original); err == nil {
		if name, found := v.longestMatch(lexical, false); found {
			return name, true
		}
	}

	if name, found := v.longestMatch(canonical, false); found {
		return name, true
	}

	return resolvedMatch, true
}

func (v *PathValidator) longestMatch(candidate string, includeResolved bool) (string, bool) {
	best := ""
	bestLen := -1
	for _, dir := range v.protected {
		prefixes := []string{dir.name}
		if includeResolved {
			prefixes = append(prefixes, dir.resolved)
		}
		for _, prefix := range prefixes {
			if isWithinRoot(prefix, candidate) && len(prefix) > bestLen {
				best = dir.name
				bestLen = len(prefix)
			}
		}
	}
	return best, bestLen >= 0
}

func invalidRestorePath(message string) error {
	return opserror.New(string(model.FileOpInvalidRestorePath), message, "")
}

func invalidQuarantinePath(message string) error {
	return opserror.New(string(model.FileOpInvalidQuarantinePath), message, "")
}
