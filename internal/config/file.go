package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

// maxFileSize bounds config and policy files.
const maxFileSize = 1 << 20

// ReadPrivateFile reads a file that must be a regular file of mode 0600
// owned by the current user. Symlinks are rejected when opening, and the
// checks run on the open descriptor.
func ReadPrivateFile(path string) ([]byte, error) {
	f, err := openNoFollow(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrInsecureFile, path)
	}
	if perm := info.Mode().Perm(); perm != 0o600 && runtime.GOOS != "windows" {
		return nil, fmt.Errorf("%w: %s is %o (expected 0600)", ErrInsecureFile, path, perm)
	}
	if err := checkOwner(info); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize))
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return data, nil
}

// WritePrivateFile writes data with mode 0600.
func WritePrivateFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
