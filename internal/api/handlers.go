package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/checksum"
	"github.com/starford/ticketdesk/internal/connectivity"
	"github.com/starford/ticketdesk/internal/models"
	"github.com/starford/ticketdesk/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	store   *store.Store
	monitor *connectivity.Monitor
	now     func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(s *store.Store, monitor *connectivity.Monitor) *Handler {
	return &Handler{store: s, monitor: monitor, now: time.Now}
}

// ListTickets handles GET /api/tickets.
//
//	@Summary		List tickets through the current filters and sort
//	@Description	Responds 304 when If-None-Match carries the current ETag.
//	@Tags			tickets
//	@Produce		json
//	@Success		200	{object}	TicketListResponse
//	@Success		304
//	@Security		BearerAuth
//	@Router			/tickets [get]
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	shown := h.store.Filtered().Get()
	resp := TicketListResponse{
		Tickets: shown,
		Total:   len(h.store.Tickets().Get()),
		Shown:   len(shown),
	}
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("list tickets failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	etag := checksum.ETag(data)
	w.Header().Set("ETag", etag)
	if checksum.Match(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetTicket handles GET /api/tickets/{id}.
//
//	@Summary		Get a single ticket by id
//	@Tags			tickets
//	@Produce		json
//	@Param			id	path		string	true	"Ticket id"
//	@Success		200	{object}	Ticket
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tickets/{id} [get]
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	t, ok := h.store.Ticket(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateTicket handles PATCH /api/tickets/{id}.
//
// The edit is applied optimistically; the gateway write happens in the
// background and is queued for replay if it fails.
//
//	@Summary		Edit a ticket
//	@Tags			tickets
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Ticket id"
//	@Param			body	body		models.Patch	true	"Fields to change"
//	@Success		200		{object}	Ticket
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tickets/{id} [patch]
func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch models.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.store.CheckEdit(id, patch); err != nil {
		h.writeEditError(w, id, err)
		return
	}
	t, err := h.store.UpdateOne(r.Context(), id, patch)
	if err != nil {
		h.writeEditError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) writeEditError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalidPatch):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error("update ticket failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Tags handles GET /api/tags.
//
//	@Summary		List every distinct tag
//	@Tags			tickets
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TagsResponse{Tags: h.store.AllTags().Get()})
}

// Load handles POST /api/load.
//
//	@Summary		Reload tickets from the remote source
//	@Description	Falls back to the local cache when the source is unreachable.
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/load [post]
func (h *Handler) Load(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Load(r.Context()); err != nil {
		if errors.Is(err, apperr.ErrOfflineNoCache) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody(apperr.ErrOfflineNoCache.Error()))
			return
		}
		slog.Error("load failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Sync handles POST /api/sync.
//
//	@Summary		Replay queued edits against the remote source
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.SyncPendingChanges(r.Context())
	if err != nil {
		slog.Error("sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ClearQueue handles DELETE /api/sync/queue.
//
//	@Summary		Discard every queued edit
//	@Tags			sync
//	@Success		204
//	@Security		BearerAuth
//	@Router			/sync/queue [delete]
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearPendingChanges(r.Context()); err != nil {
		slog.Error("clear queue failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/status.
//
//	@Summary		Report loading, error, queue and connectivity state
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

func (h *Handler) status() StatusResponse {
	st := StatusResponse{
		Loading:      h.store.Loading().Get(),
		Error:        h.store.Error().Get(),
		PendingCount: h.store.PendingCount().Get(),
		Online:       true,
	}
	if h.monitor != nil {
		st.Online = h.monitor.Online()
		st.ForcedOffline = h.monitor.Forced()
	}
	return st
}
