package limiter

import (
	"context"
	"time"
)

import (
	"github.com/nanjiek/souk-gate/internal/config"
	"github.com/nanjiek/souk-gate/internal/types"
	"github.com/nanjiek/souk-gate/internal/util"
)

// Decision reasons shared by all limiter backends.
const (
	ReasonAllowed       = "allowed"
	ReasonRateLimited   = "rate_limited"
	ReasonInvalidPolicy = "invalid_policy"
)

// Limiter decides whether one request from identifier is admitted under a
// policy. Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, policy config.Policy, identifier string, now time.Time) (types.Decision, error)
}

// Key composes the store key for a policy/identifier pair. Counters are
// namespaced per policy so two policies guarding the same client never share
// a window, and oversized identifiers are hashed to bound key size.
func Key(policyName, identifier string) string {
	return policyName + ":" + util.BucketKey(identifier)
}

// ceilSeconds converts a millisecond remainder to whole seconds, rounding up.
func ceilSeconds(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms + 999) / 1000
}
