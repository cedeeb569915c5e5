package limiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

import (
	"github.com/nanjiek/souk-gate/internal/config"
	"github.com/nanjiek/souk-gate/internal/types"
)

// FixedWindow enforces a fixed-window quota over a swappable Store. The
// counter resets at hard window boundaries, which admits up to 2x max across
// a boundary; accepted for a lightweight abuse guard.
//
// A single mutex serializes the read-modify-write so two concurrent requests
// can never both take the last slot. The guarded section is O(1) with no I/O,
// so one lock for the whole store is enough.
type FixedWindow struct {
	mu    sync.Mutex
	store Store
}

func NewFixedWindow(store Store) *FixedWindow {
	if store == nil {
		store = NewMemoryStore()
	}
	return &FixedWindow{store: store}
}

// Allow applies the fixed-window check for one request.
//
// A policy with WindowMs <= 0 or Max <= 0 is a caller contract violation and
// always rejects with ReasonInvalidPolicy, never divides or loops. Rejection
// mutates nothing: the entry keeps its count and expiry.
func (f *FixedWindow) Allow(ctx context.Context, policy config.Policy, identifier string, now time.Time) (types.Decision, error) {
	if policy.WindowMs <= 0 || policy.Max <= 0 {
		err := errors.New("invalid policy")
		return types.Decision{Allowed: false, Reason: ReasonInvalidPolicy, Err: err}, err
	}
	if identifier == "" {
		err := errors.New("empty identifier")
		return types.Decision{Allowed: false, Reason: ReasonInvalidPolicy, Err: err}, err
	}

	key := Key(policy.Name, identifier)
	nowMs := now.UnixMilli()

	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.store.Get(key)
	if !ok || e.ExpiresAt <= nowMs {
		f.store.Set(key, Entry{Count: 1, ExpiresAt: nowMs + policy.WindowMs})
		return types.Decision{
			Allowed:   true,
			Remaining: policy.Max - 1,
			Reason:    ReasonAllowed,
		}, nil
	}

	if e.Count >= policy.Max {
		return types.Decision{
			Allowed:       false,
			RetryAfterSec: ceilSeconds(e.ExpiresAt - nowMs),
			Reason:        ReasonRateLimited,
		}, nil
	}

	e.Count++
	f.store.Set(key, e)
	return types.Decision{
		Allowed:   true,
		Remaining: policy.Max - e.Count,
		Reason:    ReasonAllowed,
	}, nil
}

var _ Limiter = (*FixedWindow)(nil)
