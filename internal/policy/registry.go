package policy

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

import (
	"github.com/nanjiek/souk-gate/internal/config"
	"github.com/nanjiek/souk-gate/internal/rcu"
)

// Set 不可变策略集，用于 RCU 快照
type Set struct {
	Policies map[string]config.Policy
}

// Registry holds the live policy set. Reads (Get, Match) are lock-free over
// RCU snapshots; writers are serialized and republish both the policy set and
// the derived route index wholesale.
type Registry struct {
	mu     sync.Mutex // serializes writers
	snap   *rcu.Snapshot[Set]
	routes *rcu.Snapshot[RouteSnapshot]
}

// NewRegistry builds a registry seeded with bootstrap policies. Entries
// without a name are skipped: the name is the counter namespace and cannot be
// empty.
func NewRegistry(bootstrap []config.Policy) *Registry {
	m := make(map[string]config.Policy, len(bootstrap))
	for _, p := range bootstrap {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		m[p.Name] = p
	}
	return &Registry{
		snap:   rcu.NewSnapshot(&Set{Policies: m}),
		routes: rcu.NewSnapshot(BuildRouteSnapshot(m)),
	}
}

func (r *Registry) Get(name string) (config.Policy, bool) {
	p, ok := r.snap.Load().Policies[name]
	return p, ok
}

// All returns the current policies sorted by name.
func (r *Registry) All() []config.Policy {
	cur := r.snap.Load().Policies
	out := make([]config.Policy, 0, len(cur))
	for _, p := range cur {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Match returns the enabled policies guarding path+method, priority desc.
func (r *Registry) Match(path, method string) []config.Policy {
	return r.routes.Load().Match(path, method)
}

// Upsert inserts or replaces a policy by name.
func (r *Registry) Upsert(p config.Policy) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("policy name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.copyPolicies(1)
	next[p.Name] = p
	r.publish(next)
	return nil
}

// Delete removes a policy by name, reporting whether it existed.
func (r *Registry) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load().Policies
	if _, ok := cur[name]; !ok {
		return false
	}
	next := r.copyPolicies(0)
	delete(next, name)
	r.publish(next)
	return true
}

// copyPolicies snapshots the current map for copy-on-write. Callers hold mu.
func (r *Registry) copyPolicies(extra int) map[string]config.Policy {
	cur := r.snap.Load().Policies
	next := make(map[string]config.Policy, len(cur)+extra)
	for k, v := range cur {
		next[k] = v
	}
	return next
}

func (r *Registry) publish(next map[string]config.Policy) {
	r.snap.Replace(&Set{Policies: next})
	r.routes.Replace(BuildRouteSnapshot(next))
}
