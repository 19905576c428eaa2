//go:build !linux && !darwin

package audit

// checkDiskSpace is a no-op where free space cannot be queried.
func (l *Logger) checkDiskSpace() error {
	return nil
}
