// Package store owns the canonical ticket state: it loads from the gateway,
// mirrors to the durable cache, applies optimistic edits, queues failed writes
// and replays them when connectivity returns. Derived views (filtered and
// sorted projection, selection, tag set) are recomputed on every change.
package store

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/ticketdesk/internal/cache"
	"github.com/starford/ticketdesk/internal/connectivity"
	"github.com/starford/ticketdesk/internal/gateway"
	"github.com/starford/ticketdesk/internal/live"
	"github.com/starford/ticketdesk/internal/models"
	"github.com/starford/ticketdesk/internal/sanitize"
)

// Ticket event kinds passed to a Notifier.
const (
	EventLoaded    = "loaded"
	EventUpdated   = "updated"
	EventConfirmed = "confirmed"
	EventPending   = "pending"
	EventSynced    = "synced"
)

// Notifier receives a ticket event after each state change it describes.
// id is empty for whole-set events.
type Notifier interface {
	PublishTicketEvent(kind, id string)
}

// state is replaced as a whole on every mutation and never modified in place.
type state struct {
	tickets    []models.Ticket
	filters    models.Filters
	sort       []models.SortKey
	columns    []string
	selectedID string
	loads      int
	err        string
}

func initialState() state {
	return state{
		tickets: []models.Ticket{},
		filters: emptyFilters(),
		sort:    models.DefaultSort(),
		columns: models.DefaultColumns(),
	}
}

func emptyFilters() models.Filters {
	return models.Filters{
		Statuses:   []models.Status{},
		Priorities: []models.Priority{},
		Tags:       []string{},
	}
}

// Store is the synchronization core. Construct it with New and release it
// with Close.
type Store struct {
	gw       gateway.Gateway
	cache    cache.Cache
	monitor  *connectivity.Monitor
	notifier Notifier
	logger   *slog.Logger
	san      sanitize.Sanitizer
	now      func() time.Time

	mu sync.Mutex
	st state

	tickets  *live.Value[[]models.Ticket]
	loading  *live.Value[bool]
	errSig   *live.Value[string]
	filtered *live.Value[[]models.Ticket]
	pending  *live.Value[int]
	selected *live.Value[*models.Ticket]
	tags     *live.Value[[]string]
	sortSig  *live.Value[[]models.SortKey]
	columns  *live.Value[[]string]
	filters  *live.Value[models.Filters]

	chainMu sync.Mutex
	chains  map[string]chan struct{}

	replay  singleflight.Group
	countMu sync.Mutex

	// queueMu orders queue appends against replay clearing pending flags.
	queueMu  sync.Mutex
	appended map[string]uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // connectivity watcher
	bg     sync.WaitGroup // gateway calls and cache writes
}

// Option configures a Store.
type Option func(*Store)

// WithMonitor enables replay on every offline to online transition.
func WithMonitor(m *connectivity.Monitor) Option {
	return func(s *Store) { s.monitor = m }
}

// WithNotifier sets the ticket event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used for timestamps and sanitization.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
		s.san = sanitize.Sanitizer{Now: now}
	}
}

// New creates a store over the given gateway and cache.
func New(gw gateway.Gateway, c cache.Cache, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		gw:       gw,
		cache:    c,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		st:       initialState(),
		chains:   make(map[string]chan struct{}),
		appended: make(map[string]uint64),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range opts {
		o(s)
	}

	st := s.st
	s.tickets = live.New(st.tickets, nil)
	s.loading = live.New(false, func(a, b bool) bool { return a == b })
	s.errSig = live.New("", func(a, b string) bool { return a == b })
	s.filtered = live.New(Project(st.tickets, st.filters, st.sort), nil)
	s.pending = live.New(0, func(a, b int) bool { return a == b })
	s.selected = live.New[*models.Ticket](nil, nil)
	s.tags = live.New(allTags(st.tickets), nil)
	s.sortSig = live.New(st.sort, nil)
	s.columns = live.New(st.columns, nil)
	s.filters = live.New(st.filters, nil)

	if s.monitor != nil {
		ch, unsubscribe := s.monitor.Subscribe()
		s.wg.Add(1)
		go s.watchConnectivity(ch, unsubscribe)
	}
	s.refreshPendingCount(ctx)
	return s
}

// Close stops background work and ends every subscription. It waits for
// in-flight gateway calls and cache writes to finish. The cache is not closed.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
	s.bg.Wait()
	for _, c := range []interface{ Close() }{
		s.tickets, s.loading, s.errSig, s.filtered, s.pending,
		s.selected, s.tags, s.sortSig, s.columns, s.filters,
	} {
		c.Close()
	}
}

// Wait blocks until background gateway calls and cache writes started so far
// have finished.
func (s *Store) Wait() { s.bg.Wait() }

// update applies fn to the current state and publishes the result. Derived
// views are recomputed before update returns.
func (s *Store) update(fn func(st state) state) state {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = fn(s.st)
	s.publish(s.st)
	return s.st
}

// snapshot returns the current state. Callers must not modify it.
func (s *Store) snapshot() state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

func (s *Store) publish(st state) {
	s.tickets.Set(st.tickets)
	s.loading.Set(st.loads > 0)
	s.errSig.Set(st.err)
	s.filtered.Set(Project(st.tickets, st.filters, st.sort))
	s.selected.Set(findTicket(st.tickets, st.selectedID))
	s.tags.Set(allTags(st.tickets))
	s.sortSig.Set(st.sort)
	s.columns.Set(st.columns)
	s.filters.Set(st.filters)
}

func (s *Store) notify(kind, id string) {
	if s.notifier != nil {
		s.notifier.PublishTicketEvent(kind, id)
	}
}

// background runs fn on a tracked goroutine bound to the store's lifetime.
func (s *Store) background(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(s.ctx)
	}()
}

func (s *Store) refreshPendingCount(ctx context.Context) {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	n, err := s.cache.Count(ctx)
	if err != nil {
		s.logger.Warn("store: count pending changes", slog.String("error", err.Error()))
		return
	}
	s.pending.Set(n)
}

// Read side.

// Tickets streams the canonical record set.
func (s *Store) Tickets() live.Signal[[]models.Ticket] { return s.tickets }

// Loading streams whether a load is in flight.
func (s *Store) Loading() live.Signal[bool] { return s.loading }

// Error streams the current error classification; empty means none.
func (s *Store) Error() live.Signal[string] { return s.errSig }

// Filtered streams the filtered and sorted projection.
func (s *Store) Filtered() live.Signal[[]models.Ticket] { return s.filtered }

// PendingCount streams the length of the pending change queue.
func (s *Store) PendingCount() live.Signal[int] { return s.pending }

// Selected streams the selected ticket, or nil.
func (s *Store) Selected() live.Signal[*models.Ticket] { return s.selected }

// AllTags streams the sorted set of distinct tags across all tickets.
func (s *Store) AllTags() live.Signal[[]string] { return s.tags }

// Sort streams the sort specification.
func (s *Store) Sort() live.Signal[[]models.SortKey] { return s.sortSig }

// VisibleColumns streams the visible column list.
func (s *Store) VisibleColumns() live.Signal[[]string] { return s.columns }

// Filters streams the filter configuration.
func (s *Store) Filters() live.Signal[models.Filters] { return s.filters }

// Ticket returns the canonical ticket with id.
func (s *Store) Ticket(id string) (models.Ticket, bool) {
	t := findTicket(s.snapshot().tickets, id)
	if t == nil {
		return models.Ticket{}, false
	}
	return *t, true
}

func findTicket(tickets []models.Ticket, id string) *models.Ticket {
	if id == "" {
		return nil
	}
	for i := range tickets {
		if tickets[i].ID == id {
			t := tickets[i].Clone()
			return &t
		}
	}
	return nil
}
