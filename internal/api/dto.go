package api

import (
	"github.com/starford/ticketdesk/internal/models"
	"github.com/starford/ticketdesk/internal/store"
)

// Ticket is the canonical ticket (aliased from the domain layer).
type Ticket = models.Ticket

// TicketListResponse wraps the filtered and sorted projection.
type TicketListResponse struct {
	Tickets []Ticket `json:"tickets" validate:"required"`
	Total   int      `json:"total" example:"120" validate:"required"`
	Shown   int      `json:"shown" example:"42" validate:"required"`
}

// StatusResponse reports the synchronization state.
type StatusResponse struct {
	Loading       bool   `json:"loading" validate:"required"`
	Error         string `json:"error,omitempty" example:"offline and no cached tickets"`
	PendingCount  int    `json:"pendingCount" example:"2" validate:"required"`
	Online        bool   `json:"online" validate:"required"`
	ForcedOffline bool   `json:"forcedOffline" validate:"required"`
}

// SyncResponse reports one replay pass.
type SyncResponse = store.SyncResult

// TagsResponse lists every distinct tag.
type TagsResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// DateRangeRequest bounds createdAt. Each bound accepts an RFC 3339 instant, a
// calendar date or a natural-language expression such as "last monday".
type DateRangeRequest struct {
	From string `json:"from" example:"2024-03-01"`
	To   string `json:"to" example:"yesterday"`
}

// FiltersRequest is a partial filter update; omitted fields are kept.
type FiltersRequest struct {
	SearchText *string           `json:"searchText,omitempty" example:"login"`
	Statuses   []models.Status   `json:"statuses,omitempty"`
	Priorities []models.Priority `json:"priorities,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	DateRange  *DateRangeRequest `json:"dateRange,omitempty"`
}

// SortRequest replaces the sort specification.
type SortRequest struct {
	Sort []models.SortKey `json:"sort" validate:"required"`
}

// SortResponse is the current sort specification.
type SortResponse = SortRequest

// ColumnsResponse is the visible column list.
type ColumnsResponse struct {
	Columns []string `json:"columns" validate:"required"`
}

// SelectionRequest selects a ticket; an empty id clears the selection.
type SelectionRequest struct {
	ID string `json:"id" example:"TKT-1001"`
}

// SelectionResponse carries the selected ticket, or null.
type SelectionResponse struct {
	Ticket *Ticket `json:"ticket"`
}
