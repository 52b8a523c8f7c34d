package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/starford/ticketdesk/internal/models"
	"github.com/starford/ticketdesk/internal/sanitize"
)

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// resolveDate turns a filter bound into a canonical timestamp. Empty input
// stays empty (unbounded). Absolute timestamps are tried first, then
// expressions like "2 weeks ago" relative to now.
func resolveDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, ok := sanitize.ParseTime(s); ok {
		return models.FormatTime(t), nil
	}
	r, err := dateParser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date %q", s)
	}
	return models.FormatTime(r.Time), nil
}
