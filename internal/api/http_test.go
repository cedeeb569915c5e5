package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/souk-gate/internal/config"
	"github.com/nanjiek/souk-gate/internal/core"
	"github.com/nanjiek/souk-gate/internal/identity"
	"github.com/nanjiek/souk-gate/internal/limiter"
	"github.com/nanjiek/souk-gate/internal/origin"
	"github.com/nanjiek/souk-gate/internal/policy"
)

func newTestServer(policies ...config.Policy) (*Server, *mux.Router) {
	registry := policy.NewRegistry(policies)
	engine := core.NewEngine(registry, limiter.NewFixedWindow(nil), "fail-closed")
	origins := origin.Build([]string{"https://souk.example"})
	s := NewServer(config.ServerCfg{}, registry, engine, identity.NewResolver(), origins)

	r := mux.NewRouter()
	s.RegisterRoutes(r)
	return s, r
}

func loginPolicy(max int64) config.Policy {
	return config.Policy{
		Name:     "login",
		Match:    "/api/login",
		Methods:  []string{"POST"},
		Priority: 10,
		WindowMs: 60_000,
		Max:      max,
		Enabled:  true,
	}
}

func doCheck(t *testing.T, r *mux.Router, body CheckRequest, hdr http.Header) (*httptest.ResponseRecorder, CheckResponse) {
	t.Helper()

	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/v1/check", bytes.NewReader(b))
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp CheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func TestCheckAdmitThenLimit(t *testing.T) {
	_, r := newTestServer(loginPolicy(2))

	for i, want := range []int64{1, 0} {
		w, resp := doCheck(t, r, CheckRequest{Path: "/api/login", Method: "POST", Identifier: "1.2.3.4"}, nil)
		if w.Code != http.StatusOK || !resp.Allowed || resp.Remaining != want {
			t.Fatalf("call %d: code=%d resp=%#v", i+1, w.Code, resp)
		}
	}

	w, resp := doCheck(t, r, CheckRequest{Path: "/api/login", Method: "POST", Identifier: "1.2.3.4"}, nil)
	if w.Code != http.StatusTooManyRequests || resp.Allowed {
		t.Fatalf("over-quota call: code=%d resp=%#v", w.Code, resp)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestCheckResolvesForwardedIdentity(t *testing.T) {
	_, r := newTestServer(loginPolicy(5))

	hdr := http.Header{}
	hdr.Set("X-Forwarded-For", "9.9.9.9, 8.8.8.8")
	_, resp := doCheck(t, r, CheckRequest{Path: "/api/login", Method: "POST"}, hdr)
	if resp.Identifier != "9.9.9.9" {
		t.Fatalf("unexpected identifier: %q", resp.Identifier)
	}

	_, resp = doCheck(t, r, CheckRequest{Path: "/api/login", Method: "POST"}, nil)
	if resp.Identifier != identity.Unknown {
		t.Fatalf("unexpected fallback identifier: %q", resp.Identifier)
	}
}

func TestCheckOrigin(t *testing.T) {
	_, r := newTestServer(loginPolicy(5))

	w, resp := doCheck(t, r, CheckRequest{Path: "/api/login", Method: "POST", Origin: "https://evil.example"}, nil)
	if w.Code != http.StatusForbidden || resp.Allowed || resp.Reason != "origin_forbidden" {
		t.Fatalf("evil origin: code=%d resp=%#v", w.Code, resp)
	}

	w, resp = doCheck(t, r, CheckRequest{Path: "/api/login", Method: "POST", Origin: "https://souk.example"}, nil)
	if w.Code != http.StatusOK || !resp.Allowed {
		t.Fatalf("trusted origin: code=%d resp=%#v", w.Code, resp)
	}
}

func TestCheckBadRequest(t *testing.T) {
	_, r := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/check", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: code=%d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/check", bytes.NewBufferString("{}"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing path: code=%d", w.Code)
	}
}

func TestPolicyCRUD(t *testing.T) {
	_, r := newTestServer()

	body, _ := json.Marshal(PolicyRequest{
		Name: "search", Match: "/api/search", WindowMs: 1000, Max: 50, Enabled: true,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/policies", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: code=%d body=%s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/policies/search", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get: code=%d", w.Code)
	}
	var got config.Policy
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode policy: %v", err)
	}
	if got.Name != "search" || got.Max != 50 {
		t.Fatalf("unexpected policy: %#v", got)
	}

	body, _ = json.Marshal(PolicyRequest{Match: "/api/search", WindowMs: 1000, Max: 10, Enabled: true})
	req = httptest.NewRequest(http.MethodPut, "/v1/policies/search", bytes.NewReader(body))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update: code=%d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var all []config.Policy
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(all) != 1 || all[0].Max != 10 {
		t.Fatalf("unexpected list: %#v", all)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/policies/search", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: code=%d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/policies/search", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: code=%d", w.Code)
	}
}

func TestCreatePolicyRequiresName(t *testing.T) {
	_, r := newTestServer()

	body, _ := json.Marshal(PolicyRequest{Match: "*", WindowMs: 1000, Max: 5, Enabled: true})
	req := httptest.NewRequest(http.MethodPost, "/v1/policies", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("nameless create: code=%d", w.Code)
	}
}

func TestGuardMiddleware(t *testing.T) {
	s, _ := newTestServer(config.Policy{
		Name: "default", Match: "*", WindowMs: 60_000, Max: 1, Enabled: true,
	})

	inner := 0
	guarded := s.Guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner++
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("X-Real-Ip", "2.2.2.2")
	w := httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || inner != 1 {
		t.Fatalf("first request: code=%d inner=%d", w.Code, inner)
	}

	w = httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests || inner != 1 {
		t.Fatalf("second request: code=%d inner=%d", w.Code, inner)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("X-Real-Ip", "3.3.3.3")
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	guarded.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden || inner != 1 {
		t.Fatalf("forbidden origin: code=%d inner=%d", w.Code, inner)
	}
}

func TestHealth(t *testing.T) {
	_, r := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health: code=%d", w.Code)
	}
}
