package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Login attempt limits: 5 failures -> 30s, 10 -> 5min, 20 -> 30min.
const (
	CooldownThreshold1 = 5
	CooldownThreshold2 = 10
	CooldownThreshold3 = 20
	CooldownDuration1  = 30 * time.Second
	CooldownDuration2  = 5 * time.Minute
	CooldownDuration3  = 30 * time.Minute
)

var (
	ErrCooldownActive  = errors.New("vault: cooldown period active")
	ErrTooManyAttempts = errors.New("vault: too many failed login attempts")
)

// LockState tracks failed login attempts for cooldown enforcement.
type LockState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

func (v *Vault) lockPath() string {
	return filepath.Join(v.path, LockFileName)
}

func (v *Vault) loadLockState() (*LockState, error) {
	data, err := os.ReadFile(v.lockPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &LockState{}, nil
		}
		return nil, fmt.Errorf("vault: failed to read lock state: %w", err)
	}

	var state LockState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupted lock file: start over.
		return &LockState{}, nil
	}
	return &state, nil
}

func (v *Vault) saveLockState(state *LockState) error {
	if err := v.checkDiskSpaceForWrite(1024); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal lock state: %w", err)
	}
	if err := os.WriteFile(v.lockPath(), data, FileMode); err != nil {
		return fmt.Errorf("vault: failed to write lock state: %w", err)
	}
	return nil
}

// CheckCooldown returns an error wrapping ErrCooldownActive while a cooldown
// is running.
func (v *Vault) CheckCooldown() error {
	if remaining := v.RemainingCooldown(); remaining > 0 {
		return fmt.Errorf("%w: please wait %v", ErrCooldownActive, remaining.Round(time.Second))
	}
	return nil
}

// RecordFailedAttempt counts a failed login and returns the cooldown it
// triggered, if any.
func (v *Vault) RecordFailedAttempt() (time.Duration, error) {
	state, err := v.loadLockState()
	if err != nil {
		return 0, err
	}

	now := v.now()
	state.FailedAttempts++
	state.LastAttempt = now

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= CooldownThreshold3:
		cooldown = CooldownDuration3
	case state.FailedAttempts >= CooldownThreshold2:
		cooldown = CooldownDuration2
	case state.FailedAttempts >= CooldownThreshold1:
		cooldown = CooldownDuration1
	}
	if cooldown > 0 {
		state.CooldownUntil = now.Add(cooldown)
	}

	if err := v.saveLockState(state); err != nil {
		return cooldown, err
	}
	return cooldown, nil
}

// ClearLockState forgets past failures after a successful login.
func (v *Vault) ClearLockState() error {
	err := os.Remove(v.lockPath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("vault: failed to clear lock state: %w", err)
	}
	return nil
}

// GetLockState returns the current lock state for display purposes.
func (v *Vault) GetLockState() (*LockState, error) {
	return v.loadLockState()
}

// RemainingCooldown returns the remaining cooldown, or 0.
func (v *Vault) RemainingCooldown() time.Duration {
	state, err := v.loadLockState()
	if err != nil {
		return 0
	}
	now := v.now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now)
	}
	return 0
}
