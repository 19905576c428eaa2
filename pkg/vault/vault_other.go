//go:build !linux && !darwin && !windows

package vault

// CheckDiskSpace is not available on this platform; writes proceed with a
// warning.
func (v *Vault) CheckDiskSpace() (*DiskSpaceInfo, error) {
	return nil, ErrDiskStatsUnsupported
}
