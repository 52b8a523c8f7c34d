// Package seed generates ticket datasets with deliberately damaged records
// for exercising the sanitizer and the file gateway.
package seed

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/starford/ticketdesk/internal/ingest"
	"github.com/starford/ticketdesk/internal/models"
)

// Options sizes a dataset. Total counts distinct ids; Duplicates are extra
// records reusing existing ids, so the output holds Total+Duplicates records.
type Options struct {
	Total            int
	BadDates         int
	MissingFields    int
	InconsistentTags int
	Duplicates       int
	Seed             uint64
}

// DefaultOptions matches the reference dataset: 10,500 tickets of which 600
// are damaged, plus 100 duplicates.
func DefaultOptions() Options {
	return Options{
		Total:            10500,
		BadDates:         200,
		MissingFields:    200,
		InconsistentTags: 200,
		Duplicates:       100,
	}
}

// Stats reports what Generate produced.
type Stats struct {
	Records          int `json:"records"`
	Clean            int `json:"clean"`
	BadDates         int `json:"badDates"`
	MissingFields    int `json:"missingFields"`
	InconsistentTags int `json:"inconsistentTags"`
	Duplicates       int `json:"duplicates"`
}

var (
	statuses = []string{"open", "in_progress", "blocked", "closed"}
	tiers    = []string{"free", "pro", "enterprise"}
	sources  = []string{"email", "web", "api", "phone", "chat", "slack"}

	tags = []string{
		"bug", "feature", "urgent", "backend", "frontend",
		"security", "performance", "documentation", "ux", "api",
		"database", "auth", "deployment", "monitoring", "refactor",
		"mobile", "infrastructure", "testing", "accessibility", "design",
		"billing", "onboarding", "integration", "analytics", "compliance",
	}

	assignees = []string{
		"Alice Johnson", "Bob Smith", "Carlos Garcia", "Diana Chen",
		"Erik Müller", "Fatima Al-Hassan", "George Kim", "Hannah Patel",
		"Ivan Petrov", "Julia Santos", "Kevin O'Brien", "Laura Svensson",
		"Marco Rossi", "Nina Takahashi", "Oscar Fernandez", "Patricia Wood",
	}

	verbs = []string{
		"Fix", "Update", "Investigate", "Implement", "Resolve",
		"Optimize", "Add", "Remove", "Refactor", "Debug",
		"Review", "Configure", "Deploy", "Migrate", "Test",
	}

	subjects = []string{
		"login page authentication flow",
		"database connection pooling timeout",
		"payment processing error handling",
		"user dashboard loading performance",
		"email notification delivery system",
		"API rate limiting configuration",
		"file upload size validation",
		"search index rebuild process",
		"session management timeout policy",
		"cache invalidation strategy",
		"password reset token expiration",
		"data export CSV formatting",
		"webhook retry mechanism",
		"user role permissions matrix",
		"memory leak in background workers",
		"load balancer health checks",
	}

	badDates = []string{
		"not-a-date", "2024-13-45", "2024/01/01", "", "yesterday",
		"1234567890", "null", "2024-02-30T00:00:00.000Z", "Invalid Date", "00-00-0000",
	}

	messyTags = [][]any{
		{"Bug", "bug", "BUG"},
		{" frontend ", "Frontend", "FRONTEND"},
		{"urgent", "URGENT", "  urgent  "},
		{"api", "API", "Api", " api"},
		{"", "  ", "bug", "bug"},
	}

	removable = []string{"title", "status", "priority", "tags"}

	rangeStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
)

type generator struct {
	r   *rand.Rand
	src *rand.ChaCha8
}

func newGenerator(seed uint64) *generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	return &generator{r: rand.New(src), src: src}
}

// Generate builds a shuffled dataset. The same Options always yield the
// same records.
func Generate(opts Options) ([]map[string]any, Stats) {
	g := newGenerator(opts.Seed)
	total := max(opts.Total, 0)

	out := make([]map[string]any, 0, total+max(opts.Duplicates, 0))
	var st Stats
	for i := 0; i < total; i++ {
		id := g.id()
		switch {
		case i < opts.BadDates:
			out = append(out, g.badDate(id))
			st.BadDates++
		case i < opts.BadDates+opts.MissingFields:
			out = append(out, g.missingFields(id))
			st.MissingFields++
		case i < opts.BadDates+opts.MissingFields+opts.InconsistentTags:
			out = append(out, g.inconsistentTags(id))
			st.InconsistentTags++
		default:
			out = append(out, g.clean(id))
			st.Clean++
		}
	}

	if len(out) > 0 {
		for i := 0; i < opts.Duplicates; i++ {
			dupe := copyRecord(out[g.r.IntN(len(out))])
			dupe["title"] = g.title()
			dupe["updatedAt"] = g.date(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rangeEnd)
			out = append(out, dupe)
			st.Duplicates++
		}
	}

	g.r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	st.Records = len(out)
	return out, st
}

// id derives a short ticket id from a v4 uuid drawn from the seeded stream.
func (g *generator) id() string {
	u, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		u = uuid.New()
	}
	return "TKT-" + strings.ReplaceAll(u.String(), "-", "")[:8]
}

func (g *generator) pick(items []string) string {
	return items[g.r.IntN(len(items))]
}

func (g *generator) subset(items []string, lo, hi int) []any {
	n := lo + g.r.IntN(hi-lo+1)
	perm := g.r.Perm(len(items))
	out := make([]any, n)
	for i := range out {
		out[i] = items[perm[i]]
	}
	return out
}

func (g *generator) title() string {
	return g.pick(verbs) + " " + g.pick(subjects)
}

func (g *generator) date(from, to time.Time) string {
	span := to.Sub(from)
	return models.FormatTime(from.Add(time.Duration(g.r.Int64N(int64(span)))))
}

func (g *generator) clean(id string) map[string]any {
	created := g.date(rangeStart, rangeEnd)
	createdAt, _ := time.Parse(models.TimeLayout, created)
	updated := models.FormatTime(createdAt.Add(time.Duration(g.r.Int64N(int64(30 * 24 * time.Hour)))))

	rec := map[string]any{
		"id":        id,
		"title":     g.title(),
		"status":    g.pick(statuses),
		"priority":  1 + g.r.IntN(5),
		"createdAt": created,
		"updatedAt": updated,
		"tags":      g.subset(tags, 1, 4),
	}
	if g.r.Float64() < 0.7 {
		rec["assignee"] = g.pick(assignees)
	}
	if g.r.Float64() < 0.6 {
		rec["meta"] = map[string]any{
			"source":       g.pick(sources),
			"customerTier": g.pick(tiers),
		}
	}
	return rec
}

func (g *generator) badDate(id string) map[string]any {
	rec := g.clean(id)
	rec["createdAt"] = g.pick(badDates)
	if g.r.Float64() > 0.5 {
		rec["updatedAt"] = g.pick(badDates)
	}
	return rec
}

func (g *generator) missingFields(id string) map[string]any {
	rec := g.clean(id)
	for _, f := range g.subset(removable, 1, 2) {
		delete(rec, f.(string))
	}
	return rec
}

func (g *generator) inconsistentTags(id string) map[string]any {
	rec := g.clean(id)
	set := messyTags[g.r.IntN(len(messyTags))]
	rec["tags"] = append([]any(nil), set...)
	return rec
}

func copyRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// Write stores records at path atomically, as YAML when the extension says
// so and as indented JSON otherwise. Parent directories are created.
func Write(path string, records []map[string]any) error {
	var (
		data []byte
		err  error
	)
	if ingest.FormatForPath(path) == ingest.FormatYAML {
		data, err = yaml.Marshal(records)
	} else {
		data, err = json.MarshalIndent(records, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("seed: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("seed: create dir: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("seed: write %s: %w", path, err)
	}
	return nil
}
