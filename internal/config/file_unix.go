//go:build !windows

package config

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func openNoFollow(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW, 0)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, err
	case errors.Is(err, unix.ELOOP):
		return nil, fmt.Errorf("%w: %s", ErrSymlink, path)
	default:
		return nil, fmt.Errorf("config: failed to open %s: %w", path, err)
	}
}

func checkOwner(info os.FileInfo) error {
	if st, ok := info.Sys().(*unix.Stat_t); ok && int(st.Uid) != os.Getuid() {
		return ErrNotOwned
	}
	return nil
}
