package storage

import (
	"io"
	"io/fs"
	"os"
)

// fileSystem is the set of mutating calls the file handler makes. Tests swap
// it to inject failures at a single step.
type fileSystem interface {
	Open(name string) (*os.File, error)
	Rename(oldpath string, newpath string) error
	Chmod(name string, mode fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	Remove(name string) error
}

type osFileSystem struct{}

func (osFileSystem) Open(name string) (*os.File, error) {
	return os.Open(name)
}

func (osFileSystem) Rename(oldpath string, newpath string) error {
	return renameNoReplace(oldpath, newpath)
}

func (osFileSystem) Chmod(name string, mode fs.FileMode) error {
	return os.Chmod(name, mode)
}

func (osFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (osFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// movePath moves a regular file. A rename across file systems falls back to
// copy then remove; if the source cannot be removed the copy is discarded so
// the file never exists in both places.
func movePath(fsys fileSystem, source string, destination string) error {
	err := fsys.Rename(source, destination)
	if err == nil || !isCrossDevice(err) {
		return err
	}

	if err := copyFileExclusive(fsys, source, destination); err != nil {
		return err
	}

	if err := fsys.Remove(source); err != nil {
		_ = fsys.Remove(destination)
		return err
	}

	return nil
}

func copyFileExclusive(fsys fileSystem, source string, destination string) error {
	input, err := fsys.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	info, err := input.Stat()
	if err != nil {
		return err
	}

	output, err := os.OpenFile(destination, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(output, input)
	syncErr := output.Sync()
	closeErr := output.Close()
	for _, stepErr := range []error{copyErr, syncErr, closeErr} {
		if stepErr != nil {
			_ = os.Remove(destination)
			return stepErr
		}
	}

	return nil
}
