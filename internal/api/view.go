package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ticketdesk/internal/models"
)

// GetFilters handles GET /api/view/filters.
//
//	@Summary		Get the current filters
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	models.Filters
//	@Security		BearerAuth
//	@Router			/view/filters [get]
func (h *Handler) GetFilters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Filters().Get())
}

// SetFilters handles PUT /api/view/filters.
//
//	@Summary		Merge a partial filter update
//	@Tags			view
//	@Accept			json
//	@Produce		json
//	@Param			body	body		FiltersRequest	true	"Filters to change"
//	@Success		200		{object}	models.Filters
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/view/filters [put]
func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var req FiltersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	patch, err := h.filterPatch(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.store.SetFilters(patch)
	writeJSON(w, http.StatusOK, h.store.Filters().Get())
}

func (h *Handler) filterPatch(req FiltersRequest) (models.FilterPatch, error) {
	for _, s := range req.Statuses {
		if !s.Valid() {
			return models.FilterPatch{}, fmt.Errorf("unknown status %q", s)
		}
	}
	for _, p := range req.Priorities {
		if !p.Valid() {
			return models.FilterPatch{}, fmt.Errorf("priority %d out of range", p)
		}
	}
	patch := models.FilterPatch{
		SearchText: req.SearchText,
		Statuses:   req.Statuses,
		Priorities: req.Priorities,
		Tags:       req.Tags,
	}
	if req.DateRange != nil {
		now := h.now()
		from, err := resolveDate(req.DateRange.From, now)
		if err != nil {
			return models.FilterPatch{}, fmt.Errorf("dateRange.from: %w", err)
		}
		to, err := resolveDate(req.DateRange.To, now)
		if err != nil {
			return models.FilterPatch{}, fmt.Errorf("dateRange.to: %w", err)
		}
		patch.DateRange = &models.DateRange{From: from, To: to}
	}
	return patch, nil
}

// ResetFilters handles DELETE /api/view/filters.
//
//	@Summary		Clear every filter
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	models.Filters
//	@Security		BearerAuth
//	@Router			/view/filters [delete]
func (h *Handler) ResetFilters(w http.ResponseWriter, _ *http.Request) {
	h.store.ResetFilters()
	writeJSON(w, http.StatusOK, h.store.Filters().Get())
}

// GetSort handles GET /api/view/sort.
//
//	@Summary		Get the sort specification
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	SortResponse
//	@Security		BearerAuth
//	@Router			/view/sort [get]
func (h *Handler) GetSort(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SortResponse{Sort: h.store.Sort().Get()})
}

// SetSort handles PUT /api/view/sort.
//
//	@Summary		Replace the sort specification
//	@Tags			view
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SortRequest	true	"Sort keys, highest priority first"
//	@Success		200		{object}	SortResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/view/sort [put]
func (h *Handler) SetSort(w http.ResponseWriter, r *http.Request) {
	var req SortRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	for _, k := range req.Sort {
		if !models.KnownColumn(k.Column) {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown column %q", k.Column)))
			return
		}
		if k.Direction != models.Asc && k.Direction != models.Desc {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("direction must be asc or desc, got %q", k.Direction)))
			return
		}
	}
	h.store.SetSort(req.Sort)
	writeJSON(w, http.StatusOK, SortResponse{Sort: h.store.Sort().Get()})
}

// ToggleSort handles POST /api/view/sort/{column}/toggle.
//
//	@Summary		Cycle a column through ascending, descending and unsorted
//	@Tags			view
//	@Produce		json
//	@Param			column	path		string	true	"Column name"
//	@Success		200		{object}	SortResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/view/sort/{column}/toggle [post]
func (h *Handler) ToggleSort(w http.ResponseWriter, r *http.Request) {
	column := chi.URLParam(r, "column")
	if !models.KnownColumn(column) {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown column %q", column)))
		return
	}
	h.store.ToggleSortColumn(column)
	writeJSON(w, http.StatusOK, SortResponse{Sort: h.store.Sort().Get()})
}

// GetColumns handles GET /api/view/columns.
//
//	@Summary		Get the visible columns
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	ColumnsResponse
//	@Security		BearerAuth
//	@Router			/view/columns [get]
func (h *Handler) GetColumns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ColumnsResponse{Columns: h.store.VisibleColumns().Get()})
}

// ToggleColumn handles POST /api/view/columns/{column}/toggle.
//
//	@Summary		Show or hide a column
//	@Tags			view
//	@Produce		json
//	@Param			column	path		string	true	"Column name"
//	@Success		200		{object}	ColumnsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/view/columns/{column}/toggle [post]
func (h *Handler) ToggleColumn(w http.ResponseWriter, r *http.Request) {
	column := chi.URLParam(r, "column")
	if !models.KnownColumn(column) {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unknown column %q", column)))
		return
	}
	h.store.ToggleColumn(column)
	writeJSON(w, http.StatusOK, ColumnsResponse{Columns: h.store.VisibleColumns().Get()})
}

// GetSelection handles GET /api/selection.
//
//	@Summary		Get the selected ticket
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	SelectionResponse
//	@Security		BearerAuth
//	@Router			/selection [get]
func (h *Handler) GetSelection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SelectionResponse{Ticket: h.store.Selected().Get()})
}

// SetSelection handles PUT /api/selection.
//
//	@Summary		Select a ticket, or clear the selection with an empty id
//	@Tags			view
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SelectionRequest	true	"Ticket to select"
//	@Success		200		{object}	SelectionResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/selection [put]
func (h *Handler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.store.SelectTicket(req.ID)
	writeJSON(w, http.StatusOK, SelectionResponse{Ticket: h.store.Selected().Get()})
}
