package api

type CheckRequest struct {
	Path       string `json:"path"`
	Method     string `json:"method"`
	Identifier string `json:"identifier"` // optional; resolved from forwarded headers when empty
	Origin     string `json:"origin"`     // optional; only cross-origin-sensitive routes pass it
}

type CheckResponse struct {
	Allowed       bool   `json:"allowed"`
	Remaining     int64  `json:"remaining"`
	RetryAfterSec int64  `json:"retryAfterSec"`
	Reason        string `json:"reason"`
	Identifier    string `json:"identifier"`
}

type PolicyRequest struct {
	Name     string   `json:"name"`
	Match    string   `json:"match"`
	Methods  []string `json:"methods"`
	Priority int      `json:"priority"`
	WindowMs int64    `json:"windowMs"`
	Max      int64    `json:"max"`
	Enabled  bool     `json:"enabled"`
}
