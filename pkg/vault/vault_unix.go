//go:build linux || darwin

package vault

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CheckDiskSpace returns disk space information for the vault directory.
func (v *Vault) CheckDiskSpace() (*DiskSpaceInfo, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(v.path, &stat); err != nil {
		// Directory may not exist yet.
		if err := unix.Statfs(filepath.Dir(v.path), &stat); err != nil {
			return nil, fmt.Errorf("vault: failed to get disk stats: %w", err)
		}
	}

	bsize := uint64(stat.Bsize) //nolint:gosec // block size is never negative
	return usage(
		uint64(stat.Blocks)*bsize,
		uint64(stat.Bfree)*bsize,
		uint64(stat.Bavail)*bsize, //nolint:gosec
	), nil
}
