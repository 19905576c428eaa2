// Package audit records client activity in an HMAC-chained JSONL log.
//
// Each record carries the HMAC of its predecessor, so deleting, inserting or
// editing a record breaks verification. The HMAC key is the account's audit
// sub-key: it is installed after login and wiped at logout, and entry names
// are stored only as HMACs under it.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forest6511/locksy/pkg/crypto"
)

const (
	// MinAuditDiskSpace is the free space below which writes are refused.
	MinAuditDiskSpace = 1024 * 1024

	metaFileName = "audit.meta"
	genesis      = "genesis"
)

// Operation types
const (
	OpRegister       = "auth.register"
	OpLogin          = "auth.login"
	OpLoginFailed    = "auth.login_failed"
	OpLogout         = "auth.logout"
	OpSessionRefresh = "session.refresh"
	OpSessionExpired = "session.expired"
	OpPasswordList   = "password.list"
	OpPasswordGet    = "password.get"
	OpPasswordCreate = "password.create"
	OpPasswordUpdate = "password.update"
	OpPasswordDelete = "password.delete"
	OpPasswordGen    = "password.generate"
	OpBreachCheck    = "breach.check"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// ErrKeyNotSet is returned when writing or verifying before SetHMACKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event is a single audit log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"` // UUIDv7
	Timestamp string `json:"ts"` // RFC 3339, nanosecond precision

	Operation string `json:"op"`
	Entry     string `json:"entry,omitempty"` // HMAC of the entry name

	Actor Actor `json:"actor"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]any `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Actor represents who performed the operation
type Actor struct {
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends events to monthly files in a directory.
type Logger struct {
	path      string
	hmacKey   []byte
	mu        sync.Mutex
	sequence  int64
	prevHash  string
	anchor    anchor
	sessionID string
	logger    *slog.Logger
	now       func() time.Time
}

// anchor is where verification starts after a prune.
type anchor struct {
	Sequence int64
	PrevHash string
}

// Option configures a Logger.
type Option func(*Logger)

// WithLogger sets the logger for disk warnings.
func WithLogger(l *slog.Logger) Option {
	return func(a *Logger) { a.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Logger) { a.now = now }
}

// NewLogger creates a logger writing under path.
func NewLogger(path string, opts ...Option) *Logger {
	l := &Logger{
		path:      path,
		prevHash:  genesis,
		sessionID: uuid.NewString(),
		logger:    slog.New(slog.DiscardHandler),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the audit log directory path
func (l *Logger) Path() string {
	return l.path
}

// SetHMACKey installs key (the audit sub-key) and resumes the chain. The
// logger keeps its own copy.
func (l *Logger) SetHMACKey(key []byte) error {
	if len(key) != crypto.KeyLength {
		return fmt.Errorf("audit: HMAC key must be %d bytes", crypto.KeyLength)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey != nil {
		crypto.SecureWipe(l.hmacKey)
	}
	l.hmacKey = append([]byte(nil), key...)

	if err := l.loadChainState(); err != nil {
		// First run.
		l.sequence = 0
		l.prevHash = genesis
		l.anchor = anchor{}
	}
	return nil
}

// ClearKey wipes the HMAC key. Later writes fail with ErrKeyNotSet.
func (l *Logger) ClearKey() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hmacKey != nil {
		crypto.SecureWipe(l.hmacKey)
		l.hmacKey = nil
	}
}

// HasKey reports whether an HMAC key is installed.
func (l *Logger) HasKey() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hmacKey != nil
}

// Log records an audit event.
func (l *Logger) Log(op, source, result, entryName string, errInfo *ErrorInfo, ctx map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("audit: failed to generate event id: %w", err)
	}

	now := l.now().UTC()
	event := Event{
		Version:   1,
		ID:        id.String(),
		Timestamp: now.Format(time.RFC3339Nano),
		Operation: op,
		Actor: Actor{
			Source:    source,
			SessionID: l.sessionID,
		},
		Result:  result,
		Error:   errInfo,
		Context: ctx,
	}

	if entryName != "" {
		event.Entry = l.mac([]byte(entryName))
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.mac(buildRecordData(&event))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event, now); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess is a convenience method for successful operations
func (l *Logger) LogSuccess(op, source, entryName string) error {
	return l.Log(op, source, ResultSuccess, entryName, nil, nil)
}

// LogError is a convenience method for failed operations
func (l *Logger) LogError(op, source, entryName string, errCode, errMsg string) error {
	return l.Log(op, source, ResultError, entryName, &ErrorInfo{Code: errCode, Message: errMsg}, nil)
}

// LogDenied is a convenience method for denied operations
func (l *Logger) LogDenied(op, source, entryName string, reason string) error {
	return l.Log(op, source, ResultDenied, entryName, nil, map[string]any{"reason": reason})
}

func (l *Logger) mac(data []byte) string {
	m := hmac.New(sha256.New, l.hmacKey)
	m.Write(data)
	return hex.EncodeToString(m.Sum(nil))
}

// buildRecordData renders every significant field for the chain HMAC.
func buildRecordData(event *Event) []byte {
	actorData := event.Actor.Source + "|" + event.Actor.SessionID

	errorData := ""
	if event.Error != nil {
		errorData = event.Error.Code + "|" + event.Error.Message
	}

	var contextData strings.Builder
	if event.Context != nil {
		keys := make([]string, 0, len(event.Context))
		for k := range event.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&contextData, "%s=%v|", k, event.Context[k])
		}
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.Entry,
		actorData,
		event.Result,
		errorData,
		contextData.String(),
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
	return []byte(data)
}

// writeEvent appends an event to its month's log file.
func (l *Logger) writeEvent(event *Event, at time.Time) error {
	name := filepath.Join(l.path, at.Format("2006-01")+".jsonl")

	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// ChainState is the persisted chain position.
type ChainState struct {
	Sequence   int64  `json:"seq"`
	PrevHash   string `json:"prev"`
	AnchorSeq  int64  `json:"anchor_seq,omitempty"`
	AnchorPrev string `json:"anchor_prev,omitempty"`
}

func (l *Logger) readChainState() (*ChainState, error) {
	data, err := os.ReadFile(filepath.Join(l.path, metaFileName))
	if err != nil {
		return nil, err
	}
	var state ChainState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (l *Logger) loadChainState() error {
	state, err := l.readChainState()
	if err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	l.anchor = anchor{Sequence: state.AnchorSeq, PrevHash: state.AnchorPrev}
	return nil
}

func (l *Logger) writeChainState(state *ChainState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, metaFileName), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

func (l *Logger) saveChainState() error {
	return l.writeChainState(&ChainState{
		Sequence:   l.sequence,
		PrevHash:   l.prevHash,
		AnchorSeq:  l.anchor.Sequence,
		AnchorPrev: l.anchor.PrevHash,
	})
}

// logFiles returns the monthly files in chronological order.
func (l *Logger) logFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM.jsonl sorts chronologically.
	sort.Strings(files)
	return files, nil
}

func (l *Logger) readAll() ([]Event, error) {
	files, err := l.logFiles()
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}
	return all, nil
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Pruned          int64    `json:"pruned,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify checks the whole chain. Records removed by Prune are skipped from
// the anchor it recorded.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}

	start := anchor{PrevHash: genesis}
	if state, err := l.readChainState(); err == nil && state.AnchorSeq > 0 {
		start = anchor{Sequence: state.AnchorSeq, PrevHash: state.AnchorPrev}
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true, Pruned: start.Sequence}
	expectedPrev := start.PrevHash
	expectedSeq := start.Sequence + 1

	for i := range events {
		event := &events[i]
		result.RecordsTotal++

		if event.Chain.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d",
				event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s: expected prev %s, got %s",
				event.ID, expectedPrev, event.Chain.PrevHash))
		}

		want := l.mac(buildRecordData(event))
		if !hmac.Equal([]byte(event.Chain.HMAC), []byte(want)) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		} else {
			result.RecordsVerified++
		}

		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}
	return result, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

func eventTime(e *Event) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// ListEvents returns the most recent limit events (0 = all) after since
// (zero = no filter).
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.readAll()
	if err != nil {
		return nil, err
	}

	filtered := all
	if !since.IsZero() {
		filtered = nil
		for i := range all {
			t, err := eventTime(&all[i])
			if err != nil {
				continue
			}
			if t.After(since) {
				filtered = append(filtered, all[i])
			}
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// Prune deletes events older than olderThan and returns how many were
// removed. Verification continues from the first remaining record.
func (l *Logger) Prune(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-olderThan)

	files, err := l.logFiles()
	if err != nil {
		return 0, err
	}

	deleted := 0
	var firstKept *Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return deleted, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}

		var remaining []Event
		for i := range events {
			t, err := eventTime(&events[i])
			if err == nil && !t.After(cutoff) && firstKept == nil {
				deleted++
				continue
			}
			remaining = append(remaining, events[i])
			if firstKept == nil {
				firstKept = &remaining[len(remaining)-1]
			}
		}

		switch {
		case len(remaining) == len(events):
		case len(remaining) == 0:
			if err := os.Remove(file); err != nil {
				return deleted, fmt.Errorf("audit: failed to delete %s: %w", file, err)
			}
		default:
			if err := rewriteLogFile(file, remaining); err != nil {
				return deleted, fmt.Errorf("audit: failed to rewrite %s: %w", file, err)
			}
		}
	}

	if deleted == 0 {
		return 0, nil
	}
	return deleted, l.recordAnchor(firstKept)
}

// recordAnchor persists the verification start point after a prune.
func (l *Logger) recordAnchor(firstKept *Event) error {
	state, err := l.readChainState()
	if err != nil {
		state = &ChainState{Sequence: l.sequence, PrevHash: l.prevHash}
	}
	if firstKept != nil {
		state.AnchorSeq = firstKept.Chain.Sequence - 1
		state.AnchorPrev = firstKept.Chain.PrevHash
	} else {
		state.AnchorSeq = state.Sequence
		state.AnchorPrev = state.PrevHash
	}
	l.anchor = anchor{Sequence: state.AnchorSeq, PrevHash: state.AnchorPrev}
	return l.writeChainState(state)
}

// PrunePreview returns how many events Prune would delete.
func (l *Logger) PrunePreview(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-olderThan)
	all, err := l.readAll()
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range all {
		t, err := eventTime(&all[i])
		if err != nil || t.After(cutoff) {
			break
		}
		count++
	}
	return count, nil
}

// rewriteLogFile replaces a log file atomically.
func rewriteLogFile(path string, events []Event) error {
	tempPath := path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	for i := range events {
		data, err := json.Marshal(&events[i])
		if err != nil {
			f.Close()
			os.Remove(tempPath)
			return err
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			f.Close()
			os.Remove(tempPath)
			return err
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
