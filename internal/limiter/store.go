package limiter

import (
	"context"
	"sync"
	"time"
)

// Entry is the per-key counter state of a fixed window.
type Entry struct {
	Count     int64 // admitted requests in the current window, >= 1 once created
	ExpiresAt int64 // epoch ms; the entry is logically absent once now >= ExpiresAt
}

// Store is the backing for fixed-window entries. Implementations only need
// cheap point operations; atomicity of the read-modify-write lives in the
// limiter, so Get/Set must never block on I/O.
type Store interface {
	Get(key string) (Entry, bool)
	Set(key string, e Entry)
	Delete(key string)
}

// MemoryStore is the default in-process backing: a mutex-guarded map. Entries
// are overwritten in place when a new window starts; the optional janitor
// sweeps entries whose window has lapsed so adversarial identifier churn does
// not grow the map without bound.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

func (s *MemoryStore) Set(key string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
}

func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len reports the number of live entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops entries whose window lapsed at or before now. Sweeping never
// changes any identifier's admit/reject outcome: an expired entry is already
// treated as absent by the decision path.
func (s *MemoryStore) Sweep(now time.Time) {
	nowMs := now.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if e.ExpiresAt <= nowMs {
			delete(s.entries, k)
		}
	}
}

// StartJanitor sweeps expired entries every interval until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.Sweep(now)
			}
		}
	}()
}

var _ Store = (*MemoryStore)(nil)
