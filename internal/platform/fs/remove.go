package fs

import (
	"errors"
	"io/fs"
	"os"
)

// RemoveFile deletes a regular file. A missing file is not an error.
// removed reports whether something was actually deleted.
func RemoveFile(path string) (removed bool, err error) {
	if path == "" {
		return false, nil
	}
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, &fs.PathError{Op: "remove", Path: path, Err: errors.New("is a directory")}
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RemoveDir deletes a directory tree. A missing directory is not an error.
func RemoveDir(path string) (removed bool, err error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(path); err != nil {
		return false, err
	}
	return true, nil
}
