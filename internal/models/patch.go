package models

import "strings"

// Patch is a field-level partial diff. Nil fields are left untouched.
type Patch struct {
	Title         *string   `json:"title,omitempty"`
	Status        *Status   `json:"status,omitempty"`
	Priority      *Priority `json:"priority,omitempty"`
	Assignee      *string   `json:"assignee,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Meta          *Meta     `json:"meta,omitempty"`
	BlockedReason *string   `json:"_blockedReason,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Status == nil && p.Priority == nil && p.Assignee == nil &&
		p.Tags == nil && p.Meta == nil && p.BlockedReason == nil
}

// Apply returns a copy of t with the patch overlaid. An empty assignee clears it.
// Leaving the blocked status drops any blocked reason.
func (p Patch) Apply(t Ticket) Ticket {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Assignee != nil {
		if a := strings.TrimSpace(*p.Assignee); a != "" {
			out.Assignee = &a
		} else {
			out.Assignee = nil
		}
	}
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.Meta != nil {
		m := Ticket{Meta: p.Meta}.Clone().Meta
		out.Meta = m
	}
	if p.BlockedReason != nil {
		out.BlockedReason = *p.BlockedReason
	}
	if out.Status != StatusBlocked {
		out.BlockedReason = ""
	}
	return out
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
