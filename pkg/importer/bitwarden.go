package importer

import (
	"encoding/json"
	"fmt"
)

// BitwardenParser reads unencrypted Bitwarden JSON exports.
type BitwardenParser struct{}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

type bitwardenExport struct {
	Encrypted bool            `json:"encrypted"`
	Items     []bitwardenItem `json:"items"`
}

type bitwardenItem struct {
	Type  int             `json:"type"`
	Name  string          `json:"name"`
	Login *bitwardenLogin `json:"login"`
}

type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
}

type bitwardenURI struct {
	URI string `json:"uri"`
}

// Source returns SourceBitwarden.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse reads a Bitwarden JSON export. Encrypted exports are rejected.
func (p *BitwardenParser) Parse(data []byte) (*Result, error) {
	var export bitwardenExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse Bitwarden JSON: %w", err)
	}
	if export.Encrypted {
		return nil, fmt.Errorf("encrypted Bitwarden exports are not supported: export as unencrypted JSON")
	}

	result := &Result{}
	counter := 1

	for i := range export.Items {
		it := &export.Items[i]
		if it.Type != bitwardenTypeLogin {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: it.Name,
				Reason:       bitwardenTypeName(it.Type),
			})
			continue
		}
		if it.Login == nil {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: it.Name, Reason: "no login data"})
			continue
		}

		var rawURL string
		if len(it.Login.URIs) > 0 {
			rawURL = it.Login.URIs[0].URI
		}
		item, reason := newItem(it.Name, it.Login.Username, it.Login.Password, rawURL, &counter)
		if item == nil {
			result.Skipped = append(result.Skipped, SkippedItem{
				OriginalName: it.Name,
				Reason:       fmt.Sprintf("item %d: %s", i+1, reason),
			})
			continue
		}
		if len(it.Login.URIs) > 1 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("item %d (%s): only the first of %d URIs kept", i+1, it.Name, len(it.Login.URIs)))
		}
		result.Items = append(result.Items, item)
	}

	DeduplicateNames(result.Items)
	return result, nil
}

func bitwardenTypeName(t int) string {
	switch t {
	case bitwardenTypeSecureNote:
		return "secure note"
	case bitwardenTypeCard:
		return "card"
	case bitwardenTypeIdentity:
		return "identity"
	default:
		return fmt.Sprintf("unsupported item type: %d", t)
	}
}
