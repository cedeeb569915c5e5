package origin

import (
	"net/url"
	"strings"
)

// AllowList is an immutable set of canonicalized trusted origins, built once
// from configuration. Membership is the admission criterion: absence means
// reject.
type AllowList struct {
	members map[string]struct{}
}

// Build constructs an allow-list from configured values. Each value may be a
// full URL or a bare hostname. URLs register both the scheme://host form and
// the bare host form, lowercased, with default ports stripped. Values that do
// not parse as URLs are kept verbatim (lowercased) so a malformed config entry
// degrades to literal comparison instead of failing startup.
func Build(values []string) *AllowList {
	members := make(map[string]struct{}, len(values)*2)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil || u.Host == "" {
			members[strings.ToLower(v)] = struct{}{}
			continue
		}
		host := canonicalHost(u)
		members[strings.ToLower(u.Scheme+"://"+host)] = struct{}{}
		members[strings.ToLower(host)] = struct{}{}
	}
	return &AllowList{members: members}
}

// Allows reports whether the given Origin header value is trusted. Empty or
// absent origins are rejected: a security allow check fails closed. Origins
// that do not parse as URLs are compared literally, lowercased.
func (a *AllowList) Allows(origin string) bool {
	if a == nil || origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		_, ok := a.members[strings.ToLower(origin)]
		return ok
	}
	host := canonicalHost(u)
	if _, ok := a.members[strings.ToLower(u.Scheme+"://"+host)]; ok {
		return true
	}
	_, ok := a.members[strings.ToLower(host)]
	return ok
}

// Size returns the number of canonical members, mostly for logging.
func (a *AllowList) Size() int {
	if a == nil {
		return 0
	}
	return len(a.members)
}

// canonicalHost strips the default port for the scheme so that
// "https://example.com:443" and "https://example.com" compare equal.
func canonicalHost(u *url.URL) string {
	host := u.Host
	switch strings.ToLower(u.Scheme) {
	case "https":
		host = strings.TrimSuffix(host, ":443")
	case "http":
		host = strings.TrimSuffix(host, ":80")
	}
	return host
}
