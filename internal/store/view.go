package store

import "github.com/starford/ticketdesk/internal/models"

// SetFilters merges a partial filter update into the current filters.
func (s *Store) SetFilters(p models.FilterPatch) {
	s.update(func(st state) state {
		st.filters = p.Merge(st.filters)
		return st
	})
}

// ResetFilters restores the empty filter set.
func (s *Store) ResetFilters() {
	s.update(func(st state) state {
		st.filters = emptyFilters()
		return st
	})
}

// SetSort replaces the sort specification.
func (s *Store) SetSort(spec []models.SortKey) {
	cp := append([]models.SortKey{}, spec...)
	s.update(func(st state) state {
		st.sort = cp
		return st
	})
}

// ToggleSortColumn cycles column through ascending, descending and removed.
// A column not yet sorted is appended as the lowest-priority key.
func (s *Store) ToggleSortColumn(column string) {
	s.update(func(st state) state {
		st.sort = toggleSort(st.sort, column)
		return st
	})
}

func toggleSort(spec []models.SortKey, column string) []models.SortKey {
	out := make([]models.SortKey, 0, len(spec)+1)
	found := false
	for _, k := range spec {
		if k.Column != column {
			out = append(out, k)
			continue
		}
		found = true
		if k.Direction == models.Asc {
			out = append(out, models.SortKey{Column: column, Direction: models.Desc})
		}
	}
	if !found {
		out = append(out, models.SortKey{Column: column, Direction: models.Asc})
	}
	return out
}

// ToggleColumn shows a hidden column (appending it) or hides a visible one.
func (s *Store) ToggleColumn(column string) {
	s.update(func(st state) state {
		out := make([]string, 0, len(st.columns)+1)
		found := false
		for _, c := range st.columns {
			if c == column {
				found = true
				continue
			}
			out = append(out, c)
		}
		if !found {
			out = append(out, column)
		}
		st.columns = out
		return st
	})
}

// SelectTicket selects the ticket with id; an empty id clears the selection.
func (s *Store) SelectTicket(id string) {
	s.update(func(st state) state {
		st.selectedID = id
		return st
	})
}
