package importer

import (
	"fmt"
	"html"
)

// LastPassParser reads LastPass CSV exports:
// url,username,password,totp,extra,name,grouping,fav
type LastPassParser struct{}

const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColName     = "name"

	// lpSecureNoteURL marks secure notes in LastPass exports.
	lpSecureNoteURL = "http://sn"
)

// Source returns SourceLastPass.
func (p *LastPassParser) Source() Source {
	return SourceLastPass
}

// Parse reads a LastPass CSV export. LastPass HTML-escapes some
// characters, so every cell is unescaped.
func (p *LastPassParser) Parse(data []byte) (*Result, error) {
	table, err := openCSV(data, true, lpColName, lpColPassword)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	warn := func(msg string) { result.Warnings = append(result.Warnings, msg) }
	counter := 1

	for table.next(warn) {
		get := func(col string) string { return html.UnescapeString(table.get(col)) }
		name := get(lpColName)
		rawURL := get(lpColURL)

		if rawURL == lpSecureNoteURL {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: name, Reason: "secure note"})
			continue
		}

		item, reason := newItem(name, get(lpColUsername), get(lpColPassword), rawURL, &counter)
		if item == nil {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: name,
				Reason:       fmt.Sprintf("row %d: %s", table.line, reason),
			})
			continue
		}
		result.Items = append(result.Items, item)
	}

	DeduplicateNames(result.Items)
	return result, nil
}
