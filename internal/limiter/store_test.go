package limiter

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.Get("k1"); ok {
		t.Fatal("empty store returned an entry")
	}

	s.Set("k1", Entry{Count: 2, ExpiresAt: 5000})
	e, ok := s.Get("k1")
	if !ok || e.Count != 2 || e.ExpiresAt != 5000 {
		t.Fatalf("unexpected entry: %#v", e)
	}

	s.Delete("k1")
	if _, ok := s.Get("k1"); ok {
		t.Fatal("entry survived delete")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	s := NewMemoryStore()
	s.Set("stale", Entry{Count: 3, ExpiresAt: 1000})
	s.Set("edge", Entry{Count: 1, ExpiresAt: 2000})
	s.Set("live", Entry{Count: 1, ExpiresAt: 3000})

	s.Sweep(time.UnixMilli(2000))

	if _, ok := s.Get("stale"); ok {
		t.Fatal("expired entry survived sweep")
	}
	if _, ok := s.Get("edge"); ok {
		t.Fatal("entry expiring exactly now survived sweep")
	}
	if _, ok := s.Get("live"); !ok {
		t.Fatal("live entry swept")
	}
	if s.Len() != 1 {
		t.Fatalf("unexpected entry count: %d", s.Len())
	}
}

func TestMemoryStoreJanitor(t *testing.T) {
	s := NewMemoryStore()
	s.Set("stale", Entry{Count: 1, ExpiresAt: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx, 5*time.Millisecond)

	deadline := time.After(2 * time.Second)
	for s.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("janitor never swept the stale entry")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMemoryStoreJanitorDisabled(t *testing.T) {
	s := NewMemoryStore()
	// Non-positive interval is a no-op, not a panic.
	s.StartJanitor(context.Background(), 0)
}
