// Package connectivity tracks whether the remote ticket source is reachable.
package connectivity

import (
	"sync"

	"github.com/starford/ticketdesk/internal/live"
)

// Monitor publishes the online/offline status as a latest-value stream.
//
// Two inputs feed it: reachability (host events or probes) and a manual
// offline override. The published status is online only when the source is
// reachable and no override is active.
type Monitor struct {
	mu        sync.Mutex
	reachable bool
	forced    bool

	status *live.Value[bool]
}

// NewMonitor returns a monitor whose source starts as reachable or not.
func NewMonitor(reachable bool) *Monitor {
	return &Monitor{
		reachable: reachable,
		status:    live.New(reachable, func(a, b bool) bool { return a == b }),
	}
}

// Online reports the current status.
func (m *Monitor) Online() bool { return m.status.Get() }

// Subscribe streams status changes. The channel is primed with the current
// status and only ever holds the latest value.
func (m *Monitor) Subscribe() (<-chan bool, func()) { return m.status.Subscribe() }

// Set records a host-level transition event.
func (m *Monitor) Set(reachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reachable = reachable
	m.publish()
}

// ForceOffline turns the manual offline override on or off.
func (m *Monitor) ForceOffline(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = on
	m.publish()
}

// Forced reports whether the manual override is active.
func (m *Monitor) Forced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced
}

func (m *Monitor) publish() {
	m.status.Set(m.reachable && !m.forced)
}

// Close ends every subscription.
func (m *Monitor) Close() { m.status.Close() }
