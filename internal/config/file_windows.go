//go:build windows

package config

import (
	"errors"
	"fmt"
	"os"
)

// openNoFollow checks for a symlink before opening. Windows has no
// O_NOFOLLOW, and creating symlinks requires privileges there.
func openNoFollow(path string) (*os.File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymlink, path)
	}
	f, err := os.Open(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	return f, err
}

// checkOwner is a no-op: ownership is governed by ACLs on Windows.
func checkOwner(os.FileInfo) error {
	return nil
}
