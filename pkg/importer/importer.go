// Package importer reads login entries out of other password managers'
// export files. 1Password CSV, Bitwarden JSON and LastPass CSV are supported.
//
// Only login items are imported: every entry carries a name, a username and
// a password. Notes, cards and identities are reported as skipped.
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Source names an export format.
type Source string

const (
	Source1Password Source = "1password"
	SourceBitwarden Source = "bitwarden"
	SourceLastPass  Source = "lastpass"
)

// MaxNameLength is the longest entry name, in runes, an import produces.
const MaxNameLength = 128

// ErrMissingColumn is returned when a CSV header lacks a required column.
var ErrMissingColumn = errors.New("importer: missing required column")

// Item is one login read from an export file.
type Item struct {
	// Name is the normalized entry name, unique within one Result.
	Name string
	// OriginalName is the title as it appeared in the export.
	OriginalName string
	Username     string
	Password     string
	// URL is informational only. Entries do not store it.
	URL string
}

// Result holds everything a parser read from one export.
type Result struct {
	Items []*Item
	// Warnings are row-level problems that did not stop the parse.
	Warnings []string
	Skipped  []SkippedItem
}

// SkippedItem is an export record that was not turned into an Item.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// Parser reads one export format.
type Parser interface {
	Parse(data []byte) (*Result, error)
	Source() Source
}

// GetParser returns the parser for source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case Source1Password:
		return &OnePasswordParser{}, nil
	case SourceBitwarden:
		return &BitwardenParser{}, nil
	case SourceLastPass:
		return &LastPassParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources lists the accepted source names.
func ValidSources() []string {
	return []string{
		string(Source1Password),
		string(SourceBitwarden),
		string(SourceLastPass),
	}
}

// NormalizeName turns an export title into an entry name: NFC, trimmed,
// inner whitespace runs collapsed to one space, and cut to MaxNameLength
// runes. Control characters are dropped.
func NormalizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")

	if utf8.RuneCountInString(name) > MaxNameLength {
		runes := []rune(name)
		name = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return name
}

// FallbackName names an untitled item after its URL host, or
// "Imported item N" when there is no usable URL.
func FallbackName(rawURL string, counter int) string {
	if host := hostname(rawURL); host != "" {
		return host
	}
	return fmt.Sprintf("Imported item %d", counter)
}

func hostname(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// DeduplicateNames suffixes repeated names with " (2)", " (3)" and so on,
// skipping suffixes that another item already uses. Names compare
// case-insensitively.
func DeduplicateNames(items []*Item) {
	reserved := make(map[string]bool, len(items))
	for _, it := range items {
		reserved[strings.ToLower(it.Name)] = true
	}
	used := make(map[string]bool, len(items))
	for _, it := range items {
		key := strings.ToLower(it.Name)
		if !used[key] {
			used[key] = true
			continue
		}
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s (%d)", it.Name, n)
			lower := strings.ToLower(candidate)
			if !reserved[lower] && !used[lower] {
				it.Name = candidate
				used[lower] = true
				break
			}
		}
	}
}

// IsEmptyOrWhitespace reports whether s holds no visible characters.
func IsEmptyOrWhitespace(s string) bool {
	return strings.TrimSpace(s) == ""
}

// newItem builds an Item from a parsed record, or returns the reason it
// was skipped. counter feeds FallbackName and advances only when used.
func newItem(title, username, password, rawURL string, counter *int) (*Item, string) {
	if IsEmptyOrWhitespace(password) {
		return nil, "no password"
	}
	name := NormalizeName(title)
	if name == "" {
		name = FallbackName(rawURL, *counter)
		*counter++
	}
	return &Item{
		Name:         name,
		OriginalName: title,
		Username:     strings.TrimSpace(username),
		Password:     password,
		URL:          strings.TrimSpace(rawURL),
	}, ""
}

// csvTable is a header-indexed CSV export.
type csvTable struct {
	reader *csv.Reader
	header []string
	index  map[string]int
	row    []string
	line   int
}

// openCSV reads the header row. fold lowercases column names for
// exports whose header case varies.
func openCSV(data []byte, fold bool, required ...string) (*csvTable, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if fold {
			col = strings.ToLower(col)
		}
		index[col] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	return &csvTable{reader: reader, header: header, index: index, line: 1}, nil
}

// next advances to the following row. A malformed row is reported through
// warn and skipped.
func (t *csvTable) next(warn func(string)) bool {
	for {
		t.line++
		row, err := t.reader.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			warn(fmt.Sprintf("row %d: failed to parse: %v", t.line, err))
			continue
		}
		if len(row) != len(t.header) {
			warn(fmt.Sprintf("row %d: column count mismatch (expected %d, got %d)",
				t.line, len(t.header), len(row)))
			continue
		}
		t.row = row
		return true
	}
}

// get returns the cell of the current row under col.
func (t *csvTable) get(col string) string {
	if i, ok := t.index[col]; ok && i < len(t.row) {
		return t.row[i]
	}
	return ""
}
