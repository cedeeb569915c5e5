package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

import (
	"github.com/nanjiek/souk-gate/internal/limiter"
	"github.com/nanjiek/souk-gate/internal/policy"
	"github.com/nanjiek/souk-gate/internal/types"
)

// Engine evaluates the policies guarding a request and applies the limiter
// with a fail policy: fail-open degrades to admit when the counter backend
// errors, fail-closed rejects.
type Engine struct {
	registry   *policy.Registry
	limiter    limiter.Limiter
	failPolicy string
	logger     *slog.Logger
}

func NewEngine(registry *policy.Registry, lim limiter.Limiter, failPolicy string) *Engine {
	if registry == nil {
		panic("core: nil registry")
	}
	if lim == nil {
		panic("core: nil limiter")
	}
	return &Engine{
		registry:   registry,
		limiter:    lim,
		failPolicy: normalizeFailPolicy(failPolicy),
		logger:     slog.Default(),
	}
}

// Check evaluates every policy matching path+method against identifier, in
// priority order. The first denial wins; when all admit, the reported
// remaining is the tightest of the evaluated windows.
func (e *Engine) Check(ctx context.Context, path, method, identifier string, now time.Time) (types.Decision, error) {
	matched := e.registry.Match(path, method)
	if len(matched) == 0 {
		return types.Decision{Allowed: true, Reason: "no_policies"}, nil
	}

	anyError := false
	minRemainingSet := false
	var minRemaining int64

	for _, p := range matched {
		dec, err := e.limiter.Allow(ctx, p, identifier, now)
		if err != nil {
			anyError = true
			if e.failPolicy == "fail-open" {
				e.logger.Warn("fail-open due to limiter error", "policy", p.Name, "err", err)
				continue
			}
			return types.Decision{
				Allowed: false,
				Reason:  "fail_closed",
				Err:     err,
			}, nil
		}

		if !dec.Allowed {
			return dec, nil
		}
		if dec.Remaining >= 0 {
			if !minRemainingSet || dec.Remaining < minRemaining {
				minRemaining = dec.Remaining
				minRemainingSet = true
			}
		}
	}

	out := types.Decision{
		Allowed: true,
		Reason:  "allowed",
	}
	if minRemainingSet {
		out.Remaining = minRemaining
	}
	if anyError && e.failPolicy == "fail-open" {
		out.Reason = "fail_open"
	}
	return out, nil
}

// CheckNamed evaluates a single policy by name, for call sites that guard an
// endpoint with an explicit policy instead of route matching.
func (e *Engine) CheckNamed(ctx context.Context, name, identifier string, now time.Time) (types.Decision, error) {
	p, ok := e.registry.Get(name)
	if !ok {
		err := fmt.Errorf("unknown policy: %s", name)
		return types.Decision{Allowed: false, Reason: "unknown_policy", Err: err}, err
	}
	if !p.Enabled {
		err := errors.New("policy is disabled")
		return types.Decision{Allowed: false, Reason: "policy_disabled", Err: err}, err
	}

	dec, err := e.limiter.Allow(ctx, p, identifier, now)
	if err != nil {
		if e.failPolicy == "fail-open" {
			e.logger.Warn("fail-open due to limiter error", "policy", p.Name, "err", err)
			return types.Decision{Allowed: true, Reason: "fail_open"}, nil
		}
		return types.Decision{Allowed: false, Reason: "fail_closed", Err: err}, nil
	}
	return dec, nil
}

func normalizeFailPolicy(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p != "fail-open" && p != "fail-closed" {
		return "fail-closed"
	}
	return p
}
