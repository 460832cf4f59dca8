package storage

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

func isNotDir(err error) bool {
	return errors.Is(err, unix.ENOTDIR)
}

func isDiskFull(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, fs.ErrExist)
}
