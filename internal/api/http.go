package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

import (
	"github.com/gorilla/mux"
)

import (
	"github.com/nanjiek/souk-gate/internal/config"
	"github.com/nanjiek/souk-gate/internal/core"
	"github.com/nanjiek/souk-gate/internal/identity"
	"github.com/nanjiek/souk-gate/internal/origin"
	"github.com/nanjiek/souk-gate/internal/policy"
)

type Server struct {
	cfg      config.ServerCfg
	registry *policy.Registry
	engine   *core.Engine
	resolver *identity.Resolver
	origins  *origin.AllowList
	srv      *http.Server // ← 内部封装 http.Server
}

func NewServer(cfg config.ServerCfg, registry *policy.Registry, engine *core.Engine, resolver *identity.Resolver, origins *origin.AllowList) *Server {
	if resolver == nil {
		resolver = identity.NewResolver()
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		resolver: resolver,
		origins:  origins,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/v1/check", s.checkHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/policies", s.listPoliciesHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/policies", s.createPolicyHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/policies/{name}", s.getPolicyHandler).Methods(http.MethodGet)
	r.HandleFunc("/v1/policies/{name}", s.updatePolicyHandler).Methods(http.MethodPut)
	r.HandleFunc("/v1/policies/{name}", s.deletePolicyHandler).Methods(http.MethodDelete)
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
}

func (s *Server) ListenAndServe() error {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	s.srv = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Guard wraps a self-hosted handler with the full admission check: identity
// resolution, origin allow-list when the request carries an Origin header,
// and the rate limit policies matching the route.
func (s *Server) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if o := r.Header.Get("Origin"); o != "" && !s.origins.Allows(o) {
			errResp(w, http.StatusForbidden, "origin not allowed: "+o)
			return
		}

		id := s.resolver.Resolve(r.Header)
		dec, err := s.engine.Check(r.Context(), r.URL.Path, r.Method, id, time.Now())
		if err != nil {
			errResp(w, http.StatusInternalServerError, "admission check failed: "+err.Error())
			return
		}
		if !dec.Allowed {
			if dec.RetryAfterSec > 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(dec.RetryAfterSec, 10))
			}
			errResp(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ---------------- Handlers ----------------

func (s *Server) checkHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Path == "" {
		errResp(w, http.StatusBadRequest, "path is required")
		return
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	// Caller forwards the original request's headers, so the identifier can
	// be resolved here when the edge did not resolve it itself.
	id := req.Identifier
	if id == "" {
		id = s.resolver.Resolve(r.Header)
	}

	if req.Origin != "" && !s.origins.Allows(req.Origin) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(CheckResponse{
			Allowed:    false,
			Reason:     "origin_forbidden",
			Identifier: id,
		})
		return
	}

	dec, err := s.engine.Check(r.Context(), req.Path, req.Method, id, time.Now())
	if err != nil {
		errResp(w, http.StatusInternalServerError, "admission check failed: "+err.Error())
		return
	}

	if !dec.Allowed {
		if dec.RetryAfterSec > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(dec.RetryAfterSec, 10))
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}

	_ = json.NewEncoder(w).Encode(CheckResponse{
		Allowed:       dec.Allowed,
		Remaining:     dec.Remaining,
		RetryAfterSec: dec.RetryAfterSec,
		Reason:        dec.Reason,
		Identifier:    id,
	})
}

func (s *Server) listPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.registry.All())
}

func (s *Server) createPolicyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		errResp(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.registry.Upsert(toPolicy(req)); err != nil {
		errResp(w, http.StatusInternalServerError, "failed to create policy: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "name": req.Name})
}

func (s *Server) getPolicyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	name := mux.Vars(r)["name"]
	p, ok := s.registry.Get(name)
	if !ok {
		errResp(w, http.StatusNotFound, "policy not found: "+name)
		return
	}
	_ = json.NewEncoder(w).Encode(p)
}

func (s *Server) updatePolicyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	name := mux.Vars(r)["name"]
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Name = name
	if err := s.registry.Upsert(toPolicy(req)); err != nil {
		errResp(w, http.StatusInternalServerError, "failed to update policy: "+err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "name": name})
}

func (s *Server) deletePolicyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	name := mux.Vars(r)["name"]
	if !s.registry.Delete(name) {
		errResp(w, http.StatusNotFound, "policy not found: "+name)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "name": name})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func toPolicy(req PolicyRequest) config.Policy {
	return config.Policy{
		Name: req.Name, Match: req.Match, Methods: req.Methods,
		Priority: req.Priority, WindowMs: req.WindowMs, Max: req.Max,
		Enabled: req.Enabled,
	}
}

func errResp(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
