package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// RemoveFileNoError will remove the file at the given path if it exists. Any
// errors will be suppressed.
func RemoveFileNoError(path string) {
	utils.UncheckedErrorFunc(func() error {
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
		return nil
	})
}

// RemoveIfEmpty removes the file at path when it exists and has zero length. It reports
// whether a file was removed.
func RemoveIfEmpty(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() || info.Size() > 0 {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}

// SafeJoinDir performs a filepath.Join of 'parent' and 'subdir' but returns an error
// if the resulting path points outside of 'parent'.
// See also https://github.com/cyphar/filepath-securejoin.
func SafeJoinDir(parent, subdir string) (string, error) {
	res := filepath.Join(parent, subdir)
	if !strings.HasPrefix(filepath.Clean(res), filepath.Clean(parent)+string(os.PathSeparator)) {
		return res, errors.Errorf("unsafe path join: '%s' with '%s'", parent, subdir)
	}
	return res, nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames it into place, so
// readers observe either the previous contents or the complete new contents. Any existing file
// at path is replaced.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "cannot create temporary file for %q", path)
	}
	defer func() {
		if err != nil {
			RemoveFileNoError(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return multierr.Combine(errors.Wrapf(err, "cannot write %q", path), tmp.Close())
	}
	if err = tmp.Sync(); err != nil {
		return multierr.Combine(errors.Wrapf(err, "cannot sync %q", path), tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "cannot close %q", path)
	}
	if err = os.Chmod(tmp.Name(), perm); err != nil {
		return errors.Wrapf(err, "cannot set permissions on %q", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "cannot move %q into place", path)
	}
	return nil
}
