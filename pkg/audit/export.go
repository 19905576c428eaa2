package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Export renders events between since and until (zero values mean no bound)
// as "json" or "csv".
func (l *Logger) Export(format string, since, until time.Time) ([]byte, error) {
	l.mu.Lock()
	all, err := l.readAll()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var filtered []Event
	for i := range all {
		t, err := eventTime(&all[i])
		if err != nil {
			continue
		}
		if !since.IsZero() && t.Before(since) {
			continue
		}
		if !until.IsZero() && t.After(until) {
			continue
		}
		filtered = append(filtered, all[i])
	}

	switch format {
	case "csv":
		return formatCSV(filtered), nil
	case "json":
		return json.MarshalIndent(filtered, "", "  ")
	default:
		return nil, fmt.Errorf("audit: unsupported format: %s", format)
	}
}

func formatCSV(events []Event) []byte {
	var b strings.Builder
	b.WriteString("timestamp,operation,source,result,entry_hash\n")

	for i := range events {
		e := &events[i]
		entry := e.Entry
		if len(entry) > 16 {
			entry = entry[:16] + "..."
		}
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s\n",
			csvEscape(e.Timestamp),
			csvEscape(e.Operation),
			csvEscape(e.Actor.Source),
			csvEscape(e.Result),
			csvEscape(entry),
		)
	}
	return []byte(b.String())
}

// csvEscape quotes a field when it contains separators, or when it starts
// with a character a spreadsheet would evaluate as a formula.
func csvEscape(field string) string {
	if field == "" {
		return field
	}
	needsQuoting := strings.ContainsAny(field[:1], "=+-@") ||
		strings.ContainsAny(field, ",\"\n\r")
	if !needsQuoting {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}
