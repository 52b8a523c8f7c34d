package models

// DateRange bounds createdAt. Empty strings mean unbounded.
type DateRange struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Filters is the ephemeral view filter configuration.
type Filters struct {
	SearchText string     `json:"searchText"`
	Statuses   []Status   `json:"statuses"`
	Priorities []Priority `json:"priorities"`
	Tags       []string   `json:"tags"`
	DateRange  DateRange  `json:"dateRange"`
}

// FilterPatch is a partial Filters update; nil fields keep their current value.
type FilterPatch struct {
	SearchText *string     `json:"searchText,omitempty"`
	Statuses   []Status    `json:"statuses,omitempty"`
	Priorities []Priority  `json:"priorities,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	DateRange  *DateRange  `json:"dateRange,omitempty"`
}

// Merge overlays fp onto f. A non-nil empty slice clears that filter.
func (fp FilterPatch) Merge(f Filters) Filters {
	out := f
	if fp.SearchText != nil {
		out.SearchText = *fp.SearchText
	}
	if fp.Statuses != nil {
		out.Statuses = append([]Status{}, fp.Statuses...)
	}
	if fp.Priorities != nil {
		out.Priorities = append([]Priority{}, fp.Priorities...)
	}
	if fp.Tags != nil {
		out.Tags = append([]string{}, fp.Tags...)
	}
	if fp.DateRange != nil {
		out.DateRange = *fp.DateRange
	}
	return out
}

// Direction is a sort direction.
type Direction string

// Sort directions.
const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortKey is one column of a multi-key sort.
type SortKey struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// DefaultSort orders newest tickets first.
func DefaultSort() []SortKey {
	return []SortKey{{Column: "createdAt", Direction: Desc}}
}

// DefaultColumns is the initial visible column list.
func DefaultColumns() []string {
	return []string{"id", "title", "status", "priority", "assignee", "createdAt", "tags"}
}

// Columns lists every column a view can show or sort by.
var Columns = []string{
	"id", "title", "status", "priority", "assignee",
	"createdAt", "updatedAt", "tags", "source", "customerTier",
}

// KnownColumn reports whether name is one of Columns.
func KnownColumn(name string) bool {
	for _, c := range Columns {
		if c == name {
			return true
		}
	}
	return false
}
