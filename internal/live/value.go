// Package live provides observable values with replay-latest and
// distinct-until-changed semantics.
package live

import (
	"reflect"
	"sync"
)

// Signal is the read side of a Value.
type Signal[T any] interface {
	Get() T
	Subscribe() (<-chan T, func())
}

var _ Signal[int] = (*Value[int])(nil)

// Value holds the latest value of a signal and fans it out to subscribers.
//
// New subscribers immediately receive the current value. Set suppresses values
// equal to the current one. Each subscriber channel buffers only the latest
// value: a slow reader skips intermediate values but never blocks the writer.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	equal  func(a, b T) bool
	subs   map[chan T]struct{}
	closed bool
}

// New returns a Value seeded with initial. A nil equal uses reflect.DeepEqual.
func New[T any](initial T, equal func(a, b T) bool) *Value[T] {
	if equal == nil {
		equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	return &Value[T]{
		cur:   initial,
		equal: equal,
		subs:  make(map[chan T]struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set publishes x unless it equals the current value. It reports whether
// subscribers were notified.
func (v *Value[T]) Set(x T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.equal(v.cur, x) {
		return false
	}
	v.cur = x
	for ch := range v.subs {
		offer(ch, x)
	}
	return true
}

// offer replaces whatever is buffered in ch with x.
func offer[T any](ch chan T, x T) {
	select {
	case ch <- x:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- x:
	default:
	}
}

// Subscribe returns a channel primed with the current value and a cancel func
// that removes and closes it. The channel is also closed by Close.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- v.cur
	v.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, ok := v.subs[ch]; ok {
				delete(v.subs, ch)
				close(ch)
			}
		})
	}
}

// SubscriberCount returns the number of active subscribers.
func (v *Value[T]) SubscriberCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Close closes every subscriber channel. Later Sets are ignored.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for ch := range v.subs {
		delete(v.subs, ch)
		close(ch)
	}
}
