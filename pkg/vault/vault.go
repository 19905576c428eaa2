// Package vault is the local offline mirror of an account's stored items.
//
// The mirror holds only what the server already holds: item ids, names,
// usernames and sealed secrets. It never sees a key or a plaintext password.
// It also tracks failed login attempts so that repeated failures are
// throttled before any network round trip.
package vault

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	DBFileName   = "vault.db"
	LockFileName = "login.lock"
	FileMode     = 0600 // Owner read/write only
	DirMode      = 0700 // Owner read/write/execute only

	// MinDiskSpaceBytes is the free space below which writes are refused.
	MinDiskSpaceBytes  = 10 * 1024 * 1024
	DiskWarningPercent = 90
)

var (
	ErrClosed           = errors.New("vault: vault is closed")
	ErrItemNotFound     = errors.New("vault: item not found")
	ErrInvalidItem      = errors.New("vault: item id and name are required")
	ErrInsufficientDisk = errors.New("vault: insufficient disk space")
)

// Item is one mirrored password item. Secret is the sealed ciphertext exactly
// as the server returned it.
type Item struct {
	ID        string
	Name      string
	Username  string
	Secret    string
	UpdatedAt time.Time
}

// Vault is an open mirror for one account.
type Vault struct {
	path   string
	db     *sql.DB
	mu     sync.RWMutex
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger used for permission and disk warnings.
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// WithClock overrides the time source used for cooldowns.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// AccountDir returns the per-account directory under dataDir. The email is
// hashed so the directory name does not reveal the account.
func AccountDir(dataDir, email string) string {
	sum := sha256.Sum256([]byte(email))
	return filepath.Join(dataDir, hex.EncodeToString(sum[:]))
}

// Open opens (creating if needed) the mirror in dir.
func Open(dir string, opts ...Option) (*Vault, error) {
	v := &Vault{
		path:   dir,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("vault: failed to create directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open database: %w", err)
	}

	// Single connection: the CLI and the MCP server never share a vault
	// concurrently, and it avoids "database is locked" errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: failed to create tables: %w", err)
	}
	if err := os.Chmod(dbPath, FileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: failed to set database permissions: %w", err)
	}

	v.db = db
	v.checkAndWarnPermissions()
	return v, nil
}

// Path returns the vault directory.
func (v *Vault) Path() string {
	return v.path
}

// Close releases the database. It is safe to call more than once.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.db == nil {
		return nil
	}
	err := v.db.Close()
	v.db = nil
	return err
}

// createTables creates the v1 baseline. migrateSchema upgrades it.
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			secret TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	return migrateSchema(db)
}

// checkAndWarnPermissions logs a warning when the directory or database is
// readable by anyone but the owner. It does not block.
func (v *Vault) checkAndWarnPermissions() {
	if info, err := os.Stat(v.path); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			v.logger.Warn("vault directory has insecure permissions",
				slog.String("path", v.path), slog.String("mode", fmt.Sprintf("%04o", perm)))
		}
	}
	dbPath := filepath.Join(v.path, DBFileName)
	if info, err := os.Stat(dbPath); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			v.logger.Warn("vault database has insecure permissions",
				slog.String("path", dbPath), slog.String("mode", fmt.Sprintf("%04o", perm)))
		}
	}
}

func validateItem(item Item) error {
	if item.ID == "" || item.Name == "" {
		return ErrInvalidItem
	}
	return nil
}

func itemSize(item Item) int {
	return len(item.ID) + len(item.Name) + len(item.Username) + len(item.Secret)
}

// ReplaceAll makes the mirror equal to items and records the sync time.
func (v *Vault) ReplaceAll(items []Item) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.db == nil {
		return ErrClosed
	}

	size := 0
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return fmt.Errorf("%w (id %q)", err, item.ID)
		}
		size += itemSize(item)
	}
	if err := v.checkDiskSpaceForWrite(size); err != nil {
		return err
	}

	tx, err := v.db.Begin()
	if err != nil {
		return fmt.Errorf("vault: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM items"); err != nil {
		return fmt.Errorf("vault: failed to clear items: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO items (id, name, username, secret, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("vault: failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := v.now().UnixMilli()
	for _, item := range items {
		if _, err := stmt.Exec(item.ID, item.Name, item.Username, item.Secret, now); err != nil {
			return fmt.Errorf("vault: failed to save item: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO sync_state (id, synced_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET synced_at = excluded.synced_at
	`, now); err != nil {
		return fmt.Errorf("vault: failed to record sync time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vault: failed to commit transaction: %w", err)
	}
	return nil
}

// Upsert inserts or replaces one item.
func (v *Vault) Upsert(item Item) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.db == nil {
		return ErrClosed
	}
	if err := validateItem(item); err != nil {
		return err
	}
	if err := v.checkDiskSpaceForWrite(itemSize(item)); err != nil {
		return err
	}

	_, err := v.db.Exec(`
		INSERT INTO items (id, name, username, secret, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			username = excluded.username,
			secret = excluded.secret,
			updated_at = excluded.updated_at
	`, item.ID, item.Name, item.Username, item.Secret, v.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("vault: failed to save item: %w", err)
	}
	return nil
}

// Delete removes an item by id.
func (v *Vault) Delete(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.db == nil {
		return ErrClosed
	}

	result, err := v.db.Exec("DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("vault: failed to delete item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("vault: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}

// List returns every mirrored item ordered by name.
func (v *Vault) List() ([]Item, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.db == nil {
		return nil, ErrClosed
	}

	rows, err := v.db.Query("SELECT id, name, username, secret, updated_at FROM items ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("vault: failed to query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var updated int64
		if err := rows.Scan(&item.ID, &item.Name, &item.Username, &item.Secret, &updated); err != nil {
			return nil, fmt.Errorf("vault: failed to scan row: %w", err)
		}
		item.UpdatedAt = time.UnixMilli(updated)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vault: error iterating rows: %w", err)
	}
	return items, nil
}

// LastSync returns when ReplaceAll last succeeded, or the zero time.
func (v *Vault) LastSync() (time.Time, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.db == nil {
		return time.Time{}, ErrClosed
	}

	var ms int64
	err := v.db.QueryRow("SELECT synced_at FROM sync_state WHERE id = 1").Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("vault: failed to read sync time: %w", err)
	}
	return time.UnixMilli(ms), nil
}
