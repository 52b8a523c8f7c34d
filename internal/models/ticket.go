// Package models defines the domain types for ticketdesk.
package models

import "time"

// Status is the lifecycle state of a ticket.
type Status string

// Ticket statuses.
const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusOpen, StatusInProgress, StatusBlocked, StatusClosed}

// StatusLabels maps statuses to human-readable labels.
var StatusLabels = map[Status]string{
	StatusOpen:       "Open",
	StatusInProgress: "In Progress",
	StatusBlocked:    "Blocked",
	StatusClosed:     "Closed",
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Priority is an urgency level; 1 is the most urgent.
type Priority int

// Priority bounds and the fallback used for unknown input.
const (
	PriorityCritical Priority = 1
	PriorityMinimal  Priority = 5
	PriorityDefault  Priority = 3
)

// PriorityLabels maps priorities to human-readable labels.
var PriorityLabels = map[Priority]string{
	1: "Critical",
	2: "High",
	3: "Medium",
	4: "Low",
	5: "Minimal",
}

// Valid reports whether p is within 1..5.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityMinimal
}

// CustomerTier classifies the customer that raised a ticket.
type CustomerTier string

// Customer tiers.
const (
	TierFree       CustomerTier = "free"
	TierPro        CustomerTier = "pro"
	TierEnterprise CustomerTier = "enterprise"
)

// Valid reports whether t is a known tier.
func (t CustomerTier) Valid() bool {
	return t == TierFree || t == TierPro || t == TierEnterprise
}

// Meta carries optional provenance details.
type Meta struct {
	Source       *string       `json:"source,omitempty"`
	CustomerTier *CustomerTier `json:"customerTier,omitempty"`
}

// SyncState is the explicit per-ticket synchronization state.
//
//	clean --edit--> optimistic --ack--> clean
//	optimistic --gateway failure--> pending (queued)
//	pending --replay attempted (any outcome)--> clean
type SyncState string

// Sync states.
const (
	SyncClean      SyncState = "clean"
	SyncOptimistic SyncState = "optimistic"
	SyncPending    SyncState = "pending"
)

// Ticket is the canonical record.
type Ticket struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Status    Status   `json:"status"`
	Priority  Priority `json:"priority"`
	Assignee  *string  `json:"assignee,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
	Tags      []string `json:"tags"`
	Meta      *Meta    `json:"meta,omitempty"`

	// Transient flags, never sent to the gateway.
	PendingSync   bool      `json:"_pendingSync,omitempty"`
	BlockedReason string    `json:"_blockedReason,omitempty"`
	SyncState     SyncState `json:"_syncState,omitempty"`
}

// Clone returns a deep copy of t.
func (t Ticket) Clone() Ticket {
	c := t
	if t.Assignee != nil {
		a := *t.Assignee
		c.Assignee = &a
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Meta != nil {
		m := Meta{}
		if t.Meta.Source != nil {
			s := *t.Meta.Source
			m.Source = &s
		}
		if t.Meta.CustomerTier != nil {
			ct := *t.Meta.CustomerTier
			m.CustomerTier = &ct
		}
		c.Meta = &m
	}
	return c
}

// TimeLayout is the canonical ISO-8601 encoding used for every timestamp.
// Lexical order of values in this layout matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime encodes t in the canonical layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// PendingChange is one unconfirmed edit awaiting replay.
// TicketID is a weak reference; the ticket may have changed or vanished since.
type PendingChange struct {
	Key               int64  `json:"id,omitempty"`
	TicketID          string `json:"ticketId"`
	Patch             Patch  `json:"patch"`
	OriginalUpdatedAt string `json:"originalUpdatedAt"`
	Timestamp         int64  `json:"timestamp"`
}
