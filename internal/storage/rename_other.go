//go:build !linux

package storage

import "os"

func renameNoReplace(oldpath string, newpath string) error {
	return os.Rename(oldpath, newpath)
}
