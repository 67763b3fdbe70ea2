package sessionhub

import (
	"errors"
	"sync"
	"testing"
)

type recorder struct {
	mu   sync.Mutex
	seen []bool
}

func (r *recorder) fn(present bool) {
	r.mu.Lock()
	r.seen = append(r.seen, present)
	r.mu.Unlock()
}

func (r *recorder) values() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.seen...)
}

func TestSubscribeDeliversCurrentPresence(t *testing.T) {
	h := New(true, nil, nil)
	var r recorder
	unsub, err := h.Subscribe(r.fn)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if got := r.values(); len(got) != 1 || got[0] != true {
		t.Fatalf("expected initial [true], got %v", got)
	}
}

func TestSetDeduplicates(t *testing.T) {
	h := New(false, nil, nil)
	var r recorder
	unsub, _ := h.Subscribe(r.fn)
	defer unsub()

	h.Set(false)
	h.Set(true)
	h.Set(true)
	h.Set(false)

	got := r.values()
	want := []bool{false, true, false}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFirstAndLastHooks(t *testing.T) {
	var first, last int
	h := New(true, func() error { first++; return nil }, func() { last++ })

	u1, _ := h.Subscribe(func(bool) {})
	u2, _ := h.Subscribe(func(bool) {})
	if first != 1 {
		t.Fatalf("expected onFirst once, got %d", first)
	}

	u1()
	u1()
	if last != 0 {
		t.Fatalf("onLast ran with a listener left")
	}
	u2()
	if last != 1 || h.Listeners() != 0 {
		t.Fatalf("expected onLast once and no listeners, got last=%d listeners=%d", last, h.Listeners())
	}
}

func TestSubscribeFailsWhenOnFirstFails(t *testing.T) {
	boom := errors.New("boom")
	h := New(true, func() error { return boom }, nil)
	called := false
	if _, err := h.Subscribe(func(bool) { called = true }); !errors.Is(err, boom) {
		t.Fatalf("expected onFirst error, got %v", err)
	}
	if called || h.Listeners() != 0 {
		t.Fatal("failed subscribe must not register the listener")
	}
}

func TestUnsubscribedListenerStopsReceiving(t *testing.T) {
	h := New(true, nil, nil)
	var r recorder
	unsub, _ := h.Subscribe(r.fn)
	unsub()
	h.Set(false)
	if got := r.values(); len(got) != 1 {
		t.Fatalf("expected only the initial delivery, got %v", got)
	}
}
