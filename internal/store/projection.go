package store

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/starford/ticketdesk/internal/models"
	"github.com/starford/ticketdesk/internal/sanitize"
)

// Project filters and sorts tickets in the order the view applies them. The
// input is never modified.
func Project(tickets []models.Ticket, f models.Filters, spec []models.SortKey) []models.Ticket {
	out := make([]models.Ticket, 0, len(tickets))
	m := newMatcher(f)
	for _, t := range tickets {
		if m.match(t) {
			out = append(out, t)
		}
	}
	if len(spec) > 0 {
		slices.SortStableFunc(out, func(a, b models.Ticket) int {
			for _, k := range spec {
				c := compareValues(columnValue(a, k.Column), columnValue(b, k.Column), k.Direction)
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	return out
}

type matcher struct {
	search     string
	statuses   map[models.Status]bool
	priorities map[models.Priority]bool
	tags       map[string]bool
	from, to   time.Time
	hasFrom    bool
	hasTo      bool
}

func newMatcher(f models.Filters) matcher {
	m := matcher{search: strings.ToLower(f.SearchText)}
	if len(f.Statuses) > 0 {
		m.statuses = make(map[models.Status]bool, len(f.Statuses))
		for _, s := range f.Statuses {
			m.statuses[s] = true
		}
	}
	if len(f.Priorities) > 0 {
		m.priorities = make(map[models.Priority]bool, len(f.Priorities))
		for _, p := range f.Priorities {
			m.priorities[p] = true
		}
	}
	if len(f.Tags) > 0 {
		m.tags = make(map[string]bool, len(f.Tags))
		for _, t := range f.Tags {
			m.tags[t] = true
		}
	}
	if f.DateRange.From != "" {
		m.from, m.hasFrom = sanitize.ParseTime(f.DateRange.From)
	}
	if f.DateRange.To != "" {
		m.to, m.hasTo = sanitize.ParseTime(f.DateRange.To)
	}
	return m
}

func (m matcher) match(t models.Ticket) bool {
	if m.search != "" && !strings.Contains(strings.ToLower(t.Title), m.search) {
		return false
	}
	if m.statuses != nil && !m.statuses[t.Status] {
		return false
	}
	if m.priorities != nil && !m.priorities[t.Priority] {
		return false
	}
	if m.tags != nil && !slices.ContainsFunc(t.Tags, func(tag string) bool { return m.tags[tag] }) {
		return false
	}
	if m.hasFrom || m.hasTo {
		created, ok := sanitize.ParseTime(t.CreatedAt)
		if !ok {
			return false
		}
		if m.hasFrom && created.Before(m.from) {
			return false
		}
		if m.hasTo && created.After(m.to) {
			return false
		}
	}
	return true
}

// columnValue returns the sortable value of a column: a float64, a string,
// or nil when absent.
func columnValue(t models.Ticket, column string) any {
	switch column {
	case "id":
		return t.ID
	case "title":
		return t.Title
	case "status":
		return string(t.Status)
	case "priority":
		return float64(t.Priority)
	case "assignee":
		if t.Assignee == nil {
			return nil
		}
		return *t.Assignee
	case "createdAt":
		return t.CreatedAt
	case "updatedAt":
		return t.UpdatedAt
	case "tags":
		return strings.Join(t.Tags, ",")
	case "source":
		if t.Meta == nil || t.Meta.Source == nil {
			return nil
		}
		return *t.Meta.Source
	case "customerTier":
		if t.Meta == nil || t.Meta.CustomerTier == nil {
			return nil
		}
		return string(*t.Meta.CustomerTier)
	}
	return nil
}

// compareValues orders absent values first in either direction. Two numbers
// compare numerically; anything else compares as strings.
func compareValues(a, b any, dir models.Direction) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	var c int
	an, aNum := a.(float64)
	bn, bNum := b.(float64)
	if aNum && bNum {
		c = cmp.Compare(an, bn)
	} else {
		c = strings.Compare(toString(a), toString(b))
	}
	if dir == models.Desc {
		return -c
	}
	return c
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

// allTags returns the sorted distinct tags across tickets.
func allTags(tickets []models.Ticket) []string {
	seen := make(map[string]struct{})
	for _, t := range tickets {
		for _, tag := range t.Tags {
			seen[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}
