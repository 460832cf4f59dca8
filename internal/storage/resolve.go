package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// maxSymlinkHops bounds link expansion so a symlink loop fails instead of
// spinning forever.
const maxSymlinkHops = 255

// resolvePath returns the canonical absolute form of p. Components are
// resolved left to right the way the kernel does it: a symlink is expanded
// before a following ".." is applied. A component that does not exist is
// joined as a plain name and resolution carries on, so destinations that are
// yet to be created still canonicalize and a later ".." cannot step around a
// symlink.
func resolvePath(p string) (string, error) {
	if !filepath.IsAbs(p) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		p = wd + string(filepath.Separator) + p
	}

	separator := string(filepath.Separator)
	resolved := separator
	pending := splitComponents(p)
	hops := 0

	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]

		switch name {
		case ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, name)
		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ENOTDIR) {
				resolved = next
				continue
			}
			return "", err
		}

		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("too many levels of symbolic links: %s", p)
		}

		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			resolved = separator
		}
		pending = append(splitComponents(target), pending...)
	}

	return resolved, nil
}

func splitComponents(p string) []string {
	parts := strings.Split(p, string(filepath.Separator))
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// isWithinRoot reports whether candidate is root itself or below it.
func isWithinRoot(rootAbs string, candidateAbs string) bool {
	if candidateAbs == rootAbs {
		return true
	}

	return isStrictlyWithinRoot(rootAbs, candidateAbs)
}

func isStrictlyWithinRoot(rootAbs string, candidateAbs string) bool {
	rootWithSeparator := rootAbs
	if !strings.HasSuffix(rootWithSeparator, string(filepath.Separator)) {
		rootWithSeparator += string(filepath.Separator)
	}
	return strings.HasPrefix(candidateAbs, rootWithSeparator)
}
