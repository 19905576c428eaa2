//go:build linux || darwin

package audit

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// checkDiskSpace refuses a write when the log directory's filesystem is
// nearly full. A failed query only warns.
func (l *Logger) checkDiskSpace() error {
	var stat unix.Statfs_t
	if err := unix.Statfs(l.path, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(l.path), &stat); err != nil {
			l.logger.Warn("failed to check disk space for audit", slog.Any("error", err))
			return nil
		}
	}

	available := uint64(stat.Bavail) * uint64(stat.Bsize) //nolint:gosec // sizes are never negative
	if available < MinAuditDiskSpace {
		return fmt.Errorf("audit: insufficient disk space: only %d bytes available, need at least %d",
			available, MinAuditDiskSpace)
	}
	return nil
}
