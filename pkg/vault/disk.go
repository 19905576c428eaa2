package vault

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrDiskStatsUnsupported is returned by CheckDiskSpace on platforms without
// a free-space query.
var ErrDiskStatsUnsupported = errors.New("vault: disk statistics not supported on this platform")

// DiskSpaceInfo contains disk usage information.
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// HasSufficientDiskSpace reports whether writes are currently allowed.
func (v *Vault) HasSufficientDiskSpace() (bool, error) {
	info, err := v.CheckDiskSpace()
	if err != nil {
		return false, err
	}
	return info.Available >= MinDiskSpaceBytes, nil
}

// checkDiskSpaceForWrite refuses a write when free space is below
// MinDiskSpaceBytes or twice the data size, whichever is larger. A failed
// query only warns.
func (v *Vault) checkDiskSpaceForWrite(dataSize int) error {
	info, err := v.CheckDiskSpace()
	if err != nil {
		v.logger.Warn("failed to check disk space", slog.Any("error", err))
		return nil
	}

	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize*2) > required {
		required = uint64(dataSize * 2)
	}

	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk,
			info.Available/(1024*1024),
			required/(1024*1024))
	}

	if info.UsedPct >= DiskWarningPercent {
		v.logger.Warn("disk is nearly full", slog.Int("used_pct", info.UsedPct))
	}
	return nil
}

func usage(total, free, available uint64) *DiskSpaceInfo {
	usedPct := 0
	if total > 0 {
		usedPct = int(100 * (total - free) / total)
	}
	return &DiskSpaceInfo{
		Total:     total,
		Free:      free,
		Available: available,
		UsedPct:   usedPct,
	}
}
