package policy

import (
	"sort"
	"strings"
)

import (
	"github.com/nanjiek/souk-gate/internal/config"
)

// RouteSnapshot is an immutable route index built from a policy set.
type RouteSnapshot struct {
	Exact    map[string][]config.Policy
	Prefix   *trieNode
	Wildcard []config.Policy
}

type trieNode struct {
	children map[rune]*trieNode
	policies []config.Policy
}

func newTrie() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

func (t *trieNode) insert(prefix string, p config.Policy) {
	node := t
	for _, ch := range prefix {
		if node.children == nil {
			node.children = make(map[rune]*trieNode)
		}
		next := node.children[ch]
		if next == nil {
			next = &trieNode{children: make(map[rune]*trieNode)}
			node.children[ch] = next
		}
		node = next
	}
	node.policies = append(node.policies, p)
}

func (t *trieNode) match(path string) []config.Policy {
	if t == nil {
		return nil
	}
	node := t
	var out []config.Policy
	for _, ch := range path {
		if node == nil {
			break
		}
		if len(node.policies) > 0 {
			out = append(out, node.policies...)
		}
		node = node.children[ch]
	}
	if node != nil && len(node.policies) > 0 {
		out = append(out, node.policies...)
	}
	return out
}

// BuildRouteSnapshot builds a route index from a policy map. Disabled
// policies are excluded up front so matching never sees them.
func BuildRouteSnapshot(policies map[string]config.Policy) *RouteSnapshot {
	snap := &RouteSnapshot{
		Exact:    make(map[string][]config.Policy),
		Prefix:   newTrie(),
		Wildcard: make([]config.Policy, 0),
	}
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		match := strings.TrimSpace(p.Match)
		if match == "" || match == "*" {
			snap.Wildcard = append(snap.Wildcard, p)
			continue
		}
		if strings.HasSuffix(match, "*") && len(match) > 1 {
			prefix := strings.TrimSuffix(match, "*")
			snap.Prefix.insert(prefix, p)
			continue
		}
		snap.Exact[match] = append(snap.Exact[match], p)
	}
	return snap
}

// Match returns all policies guarding path+method, ordered by priority (desc).
func (s *RouteSnapshot) Match(path, method string) []config.Policy {
	if s == nil {
		return nil
	}
	var res []config.Policy

	if path != "" {
		if policies, ok := s.Exact[path]; ok {
			res = append(res, filterPolicies(policies, method)...)
		}
		res = append(res, filterPolicies(s.Prefix.match(path), method)...)
	}
	res = append(res, filterPolicies(s.Wildcard, method)...)

	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Priority == res[j].Priority {
			return res[i].Name < res[j].Name
		}
		return res[i].Priority > res[j].Priority
	})

	return res
}

func filterPolicies(policies []config.Policy, method string) []config.Policy {
	if len(policies) == 0 {
		return nil
	}
	out := make([]config.Policy, 0, len(policies))
	for _, p := range policies {
		if !matchMethod(p.Methods, method) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchMethod(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "*" || m == method {
			return true
		}
	}
	return false
}
