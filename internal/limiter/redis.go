package limiter

import (
	"context"
	_ "embed"
	"errors"
	"time"
)

import (
	"github.com/nanjiek/souk-gate/internal/config"
	"github.com/nanjiek/souk-gate/internal/types"
	"github.com/nanjiek/souk-gate/internal/util"
)

//go:embed fixedwindow.lua
var fixedWindowScript string

// ScriptExecutor executes a Lua script and returns raw results.
type ScriptExecutor interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) ([]interface{}, error)
}

// KeyBuilder namespaces counter keys for a shared backend.
type KeyBuilder interface {
	KeyFixedWindow(policyName, identifier string) string
}

// RedisFixedWindow applies the same fixed-window semantics as FixedWindow but
// keeps counters in Redis, so several gate instances can share quotas. The
// check-then-act is atomic inside the script; entries self-expire via PX.
type RedisFixedWindow struct {
	exec   ScriptExecutor
	keys   KeyBuilder
	script string
}

func NewRedisFixedWindow(exec ScriptExecutor, keys KeyBuilder) *RedisFixedWindow {
	if exec == nil {
		panic("limiter: nil ScriptExecutor")
	}
	if keys == nil {
		panic("limiter: nil KeyBuilder")
	}
	return &RedisFixedWindow{
		exec:   exec,
		keys:   keys,
		script: fixedWindowScript,
	}
}

func (r *RedisFixedWindow) Allow(ctx context.Context, policy config.Policy, identifier string, now time.Time) (types.Decision, error) {
	if policy.WindowMs <= 0 || policy.Max <= 0 {
		err := errors.New("invalid policy")
		return types.Decision{Allowed: false, Reason: ReasonInvalidPolicy, Err: err}, err
	}
	if identifier == "" {
		err := errors.New("empty identifier")
		return types.Decision{Allowed: false, Reason: ReasonInvalidPolicy, Err: err}, err
	}

	key := r.keys.KeyFixedWindow(policy.Name, util.BucketKey(identifier))

	res, err := r.exec.Eval(ctx, r.script, []string{key}, policy.WindowMs, policy.Max)
	if err != nil {
		return types.Decision{Allowed: false, Reason: "limiter_eval_failed", Err: err}, err
	}
	if len(res) < 3 {
		err = errors.New("invalid script response")
		return types.Decision{Allowed: false, Reason: "invalid_script_response", Err: err}, err
	}

	allowed := util.ToInt64(res[0]) == 1
	remaining := util.ToInt64(res[1])
	retryMs := util.ToInt64(res[2])

	decision := types.Decision{
		Allowed:   allowed,
		Remaining: remaining,
		Reason:    ReasonAllowed,
	}
	if !allowed {
		decision.Reason = ReasonRateLimited
		decision.RetryAfterSec = ceilSeconds(retryMs)
	}
	return decision, nil
}

var _ Limiter = (*RedisFixedWindow)(nil)
