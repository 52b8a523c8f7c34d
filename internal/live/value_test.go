package live

import (
	"testing"
	"time"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for value")
	}
	var zero T
	return zero
}

func TestSubscribeReplaysLatest(t *testing.T) {
	v := New(1, nil)
	v.Set(2)
	ch, cancel := v.Subscribe()
	defer cancel()
	if got := recv(t, ch); got != 2 {
		t.Errorf("replayed = %d, want 2", got)
	}
}

func TestSetSuppressesEqual(t *testing.T) {
	v := New([]string{"a"}, nil)
	ch, cancel := v.Subscribe()
	defer cancel()
	recv(t, ch)

	if v.Set([]string{"a"}) {
		t.Error("equal value should be suppressed")
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected delivery %v", got)
	default:
	}

	if !v.Set([]string{"a", "b"}) {
		t.Error("changed value should publish")
	}
	if got := recv(t, ch); len(got) != 2 {
		t.Errorf("got %v", got)
	}
}

func TestSlowSubscriberSeesLatestOnly(t *testing.T) {
	v := New(0, nil)
	ch, cancel := v.Subscribe()
	defer cancel()
	for i := 1; i <= 10; i++ {
		v.Set(i)
	}
	if got := recv(t, ch); got != 10 {
		t.Errorf("got %d, want latest 10", got)
	}
}

func TestCancelAndClose(t *testing.T) {
	v := New("x", nil)
	ch, cancel := v.Subscribe()
	if v.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	cancel()
	cancel()
	if v.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after cancel")
	}
	<-ch
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	ch2, _ := v.Subscribe()
	v.Close()
	<-ch2
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after Close")
	}
	if v.Set("y") {
		t.Error("Set after Close should be a no-op")
	}
	ch3, _ := v.Subscribe()
	if _, ok := <-ch3; ok {
		t.Error("subscribe after Close should yield a closed channel")
	}
}

func TestCustomEqual(t *testing.T) {
	v := New(1, func(a, b int) bool { return a%2 == b%2 })
	if v.Set(3) {
		t.Error("3 has the same parity as 1")
	}
	if !v.Set(4) {
		t.Error("4 differs in parity")
	}
}
