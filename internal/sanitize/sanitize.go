// Package sanitize turns untrusted ticket payloads into valid canonical tickets.
//
// Every function here is total: any input yields valid output and nothing panics
// or returns an error. A single bad element never drops the rest of the batch.
package sanitize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/ticketdesk/internal/models"
)

// UntitledTitle replaces missing or blank titles.
const UntitledTitle = "Untitled Ticket"

var fallbackSeq atomic.Int64

// Sanitizer repairs raw records. The zero value uses the wall clock.
type Sanitizer struct {
	Now func() time.Time
}

var std Sanitizer

// Tickets sanitizes raw with the wall clock. See Sanitizer.Tickets.
func Tickets(raw any) []models.Ticket { return std.Tickets(raw) }

// Date sanitizes one timestamp with the wall clock. See Sanitizer.Date.
func Date(v any) string { return std.Date(v) }

func (s Sanitizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Tickets repairs every object element of raw and deduplicates by id, keeping
// the variant with the greatest updatedAt. Non-sequence input yields an empty
// slice; non-object elements are skipped. Output keeps first-seen id order.
func (s Sanitizer) Tickets(raw any) []models.Ticket {
	items, ok := asSlice(raw)
	if !ok {
		return []models.Ticket{}
	}
	now := s.now()

	out := make([]models.Ticket, 0, len(items))
	pos := make(map[string]int, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		t := s.ticket(obj, now)
		if i, seen := pos[t.ID]; seen {
			if t.UpdatedAt > out[i].UpdatedAt {
				out[i] = t
			}
			continue
		}
		pos[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}

func (s Sanitizer) ticket(raw map[string]any, now time.Time) models.Ticket {
	id := trimmed(raw["id"])
	if id == "" {
		id = FallbackID(now)
	}
	title := trimmed(raw["title"])
	if title == "" {
		title = UntitledTitle
	}
	t := models.Ticket{
		ID:        id,
		Title:     title,
		Status:    status(raw["status"]),
		Priority:  priority(raw["priority"]),
		CreatedAt: date(raw["createdAt"], now),
		UpdatedAt: date(raw["updatedAt"], now),
		Tags:      Tags(raw["tags"]),
		Meta:      meta(raw["meta"]),
	}
	if a := trimmed(raw["assignee"]); a != "" {
		t.Assignee = &a
	}
	return t
}

// FallbackID generates an id that is unique within the process even when many
// are minted in the same millisecond.
func FallbackID(now time.Time) string {
	return fmt.Sprintf("TKT-fallback-%d-%d", now.UnixMilli(), fallbackSeq.Add(1))
}

func trimmed(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func status(v any) models.Status {
	if s, ok := v.(string); ok && models.Status(s).Valid() {
		return models.Status(s)
	}
	return models.StatusOpen
}

func priority(v any) models.Priority {
	n, ok := toNumber(v)
	if !ok || n != math.Trunc(n) {
		return models.PriorityDefault
	}
	p := models.Priority(n)
	if !p.Valid() {
		return models.PriorityDefault
	}
	return p
}

// toNumber coerces the scalar kinds a JSON or YAML decoder can produce.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Date accepts v only when it is a string holding a valid instant no more than
// one year ahead of now; anything else becomes now. The result is canonical.
func (s Sanitizer) Date(v any) string {
	return date(v, s.now())
}

func date(v any, now time.Time) string {
	str, ok := v.(string)
	if !ok || strings.TrimSpace(str) == "" {
		return models.FormatTime(now)
	}
	parsed, ok := ParseTime(str)
	if !ok || parsed.After(now.AddDate(1, 0, 0)) {
		return models.FormatTime(now)
	}
	return models.FormatTime(parsed)
}

// ParseTime parses the timestamp encodings accepted at ingest. Zone-less values
// are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Tags normalizes a tag list: strings only, trimmed, lowercased, non-empty,
// duplicates collapsed. Non-sequence input yields an empty set.
func Tags(v any) []string {
	items, ok := asSlice(v)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		clean := strings.ToLower(strings.TrimSpace(s))
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func meta(v any) *models.Meta {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	m := &models.Meta{}
	if src, ok := obj["source"].(string); ok {
		m.Source = &src
	}
	if tier, ok := obj["customerTier"].(string); ok && models.CustomerTier(tier).Valid() {
		ct := models.CustomerTier(tier)
		m.CustomerTier = &ct
	}
	return m
}

// asSlice views v as a sequence of untyped elements. Typed values (for
// example already-sanitized tickets) are lowered through JSON first.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case map[string]any, string, bool, float64, int, json.Number:
		return nil, false
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var lowered any
	if err := json.Unmarshal(data, &lowered); err != nil {
		return nil, false
	}
	s, ok := lowered.([]any)
	return s, ok
}
