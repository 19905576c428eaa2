package importer

import (
	"fmt"
	"strings"
)

// OnePasswordParser reads 1Password CSV exports:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

const (
	op1ColTitle    = "Title"
	op1ColWebsite  = "Website"
	op1ColUsername = "Username"
	op1ColPassword = "Password"
	op1ColArchived = "Archived"
)

// Source returns Source1Password.
func (p *OnePasswordParser) Source() Source {
	return Source1Password
}

// Parse reads a 1Password CSV export. Archived rows are skipped.
func (p *OnePasswordParser) Parse(data []byte) (*Result, error) {
	table, err := openCSV(data, false, op1ColTitle, op1ColPassword)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	warn := func(msg string) { result.Warnings = append(result.Warnings, msg) }
	counter := 1

	for table.next(warn) {
		title := table.get(op1ColTitle)
		if strings.EqualFold(strings.TrimSpace(table.get(op1ColArchived)), "true") {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: title, Reason: "archived"})
			continue
		}

		item, reason := newItem(title, table.get(op1ColUsername), table.get(op1ColPassword),
			table.get(op1ColWebsite), &counter)
		if item == nil {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: title,
				Reason:       fmt.Sprintf("row %d: %s", table.line, reason),
			})
			continue
		}
		result.Items = append(result.Items, item)
	}

	DeduplicateNames(result.Items)
	return result, nil
}
