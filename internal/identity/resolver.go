package identity

import (
	"net/http"
	"strings"
)

// Unknown is the shared bucket for requests carrying no identifying headers.
const Unknown = "unknown"

// Resolver derives a best-effort client identifier from proxy headers.
// Every input is attacker-controlled; the result is a rate-limit bucket key,
// not a trust assertion, so no IP syntax validation is performed.
type Resolver struct {
	ForwardedHeader string
	FallbackHeaders []string
}

func NewResolver() *Resolver {
	return &Resolver{
		ForwardedHeader: "X-Forwarded-For",
		FallbackHeaders: []string{"X-Real-Ip", "Cf-Connecting-Ip", "Fastly-Client-Ip"},
	}
}

// Resolve returns the client identifier for the given headers. Total: it
// never fails, falling back to Unknown when nothing identifying is present.
//
// Precedence: X-Forwarded-For (first hop) -> X-Real-Ip -> Cf-Connecting-Ip
// -> Fastly-Client-Ip -> Unknown.
func (r *Resolver) Resolve(h http.Header) string {
	if h == nil {
		return Unknown
	}

	if raw := h.Get(r.ForwardedHeader); raw != "" {
		if ip := firstForwardedHop(raw); ip != "" {
			return ip
		}
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			return trimmed
		}
	}

	for _, name := range r.FallbackHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}

	return Unknown
}

// firstForwardedHop takes the first comma-separated entry of an
// X-Forwarded-For value, which is the hop closest to the original client.
func firstForwardedHop(value string) string {
	parts := strings.Split(value, ",")
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parts[0])
}
