package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DuplicateGroup represents a group of entries sharing the same password.
type DuplicateGroup struct {
	// Names contains the entry names with duplicate values.
	Names []string `json:"names,omitempty"`
	// Count is the number of duplicates.
	Count int `json:"count"`
}

// FindDuplicates groups entries whose passwords are equal after
// normalization. Returns groups sorted by count (most duplicated first).
//
// Comparison uses HMAC-SHA256 under a session-local key, so the hashes held
// in memory are useless for offline guessing and are never persisted.
func (c *Calculator) FindDuplicates(entries []Entry, includeNames bool, limit int) ([]DuplicateGroup, error) {
	if err := c.ensureKey(); err != nil {
		return nil, err
	}

	hashGroups := make(map[string][]string)
	for _, e := range entries {
		if e.Unreadable {
			continue
		}
		value := normalizeValue(e.Password)
		if value == "" {
			continue
		}
		hash := computeValueHash(value, c.hmacKey)
		hashGroups[hash] = append(hashGroups[hash], e.Name)
	}

	var groups []DuplicateGroup
	for _, names := range hashGroups {
		if len(names) <= 1 {
			continue
		}
		group := DuplicateGroup{Count: len(names)}
		if includeNames {
			group.Names = append([]string(nil), names...)
			sort.Strings(group.Names)
		}
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})

	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

func (c *Calculator) ensureKey() error {
	if c.hmacKey != nil {
		return nil
	}
	c.hmacKey = make([]byte, 32)
	_, err := rand.Read(c.hmacKey)
	return err
}

// computeValueHash computes HMAC-SHA256 of a value with the session key.
func computeValueHash(value string, key []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeValue trims surrounding whitespace and applies Unicode NFC, so
// visually identical passwords compare equal.
func normalizeValue(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
