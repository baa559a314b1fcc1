package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/permguard/internal/audit"
	"github.com/kazz187/permguard/internal/engine"
	configrepo "github.com/kazz187/permguard/internal/engine/repositoryimpl"
	"github.com/kazz187/permguard/internal/permission"
	"github.com/kazz187/permguard/internal/policy"
	"github.com/kazz187/permguard/pkg/cerr"
	"github.com/kazz187/permguard/pkg/clog"
)

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", fmt.Errorf("failed to decode request body: %w", err))
	}
	return nil
}

func (s *Server) check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req engine.Request
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Permission == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "permission is required", nil)
		return
	}
	res := s.engine.Check(ctx, req)
	clog.AddAttributes(ctx, map[string]any{
		"permission": req.Permission,
		"granted":    res.Granted,
	})
	cerr.SetJSONResponse(ctx, res)
}

func (s *Server) checkBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var reqs []engine.Request
	if err := decodeJSON(r, &reqs); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	for i, req := range reqs {
		if req.Permission == "" {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, fmt.Sprintf("permission is required (index %d)", i), nil)
			return
		}
	}
	cerr.SetJSONResponse(ctx, s.engine.CheckAll(ctx, reqs))
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	perms := s.engine.Permissions()
	if v := q.Get("risk"); v != "" {
		risk, err := permission.ParseRisk(v)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		perms = filterPermissions(perms, func(p permission.Permission) bool { return p.Risk == risk })
	}
	if v := q.Get("scope"); v != "" {
		scope, err := permission.ParseScope(v)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		perms = filterPermissions(perms, func(p permission.Permission) bool { return p.Scope == scope })
	}
	cerr.SetJSONResponse(ctx, perms)
}

func filterPermissions(perms []permission.Permission, keep func(permission.Permission) bool) []permission.Permission {
	out := make([]permission.Permission, 0, len(perms))
	for _, p := range perms {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := s.engine.Permission(chi.URLParam(r, "name"))
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "permission not found", nil)
		return
	}
	cerr.SetJSONResponse(ctx, p)
}

func (s *Server) putPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var p permission.Permission
	if err := decodeJSON(r, &p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	p.Name = chi.URLParam(r, "name")
	if p.Scope == "" || p.Risk == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "scope and risk are required", nil)
		return
	}
	s.engine.Register(p)
	cerr.SetJSONResponse(ctx, p)
}

func (s *Server) deletePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.engine.Unregister(chi.URLParam(r, "name")) {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "permission not found", nil)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), s.engine.Policy())
}

func (s *Server) putPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var p policy.Policy
	if err := decodeJSON(r, &p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.engine.SetPolicy(p)
	cerr.SetJSONResponse(ctx, s.engine.Policy())
}

func (s *Server) listGrants(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), s.engine.Grants())
}

type grantRequest struct {
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	TTL       string     `json:"ttl,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxUses   int        `json:"max_uses,omitempty"`
}

type grantResponse struct {
	Granted   []string   `json:"granted"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) createGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Name == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "name is required", nil)
		return
	}

	resp := grantResponse{Granted: []string{req.Name}}
	switch req.Kind {
	case "", "permanent":
		s.engine.Grant(req.Name)
	case "temporary":
		switch {
		case req.ExpiresAt != nil:
			s.engine.GrantTemporary(req.Name, *req.ExpiresAt)
			resp.ExpiresAt = req.ExpiresAt
		case req.TTL != "":
			ttl, err := time.ParseDuration(req.TTL)
			if err != nil || ttl <= 0 {
				cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "ttl must be a positive duration", err)
				return
			}
			exp := s.engine.GrantFor(req.Name, ttl)
			resp.ExpiresAt = &exp
		default:
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "temporary grants need ttl or expires_at", nil)
			return
		}
	case "limited":
		if req.MaxUses <= 0 {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "max_uses must be positive", nil)
			return
		}
		s.engine.GrantWithLimit(req.Name, req.MaxUses)
	case "scope":
		scope, err := permission.ParseScope(req.Name)
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
			return
		}
		resp.Granted = s.engine.GrantScope(scope)
	default:
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, fmt.Sprintf("unknown grant kind %q", req.Kind), nil)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, resp)
}

func (s *Server) revokeGrant(w http.ResponseWriter, r *http.Request) {
	s.engine.Revoke(chi.URLParam(r, "name"))
	cerr.SetJSONResponse(r.Context(), struct{}{})
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := audit.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, err.Error(), nil)
		return
	}
	cerr.SetJSONResponse(ctx, s.engine.AuditLog(f))
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), s.engine.ExportConfig())
}

// putConfig accepts JSON, or YAML when the request says so, imports it and
// persists the resulting config.
func (s *Server) putConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cfg engine.Config
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
			return
		}
		decoded, err := configrepo.Decode(data)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		cfg = *decoded
	default:
		if err := decodeJSON(r, &cfg); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}

	s.engine.ImportConfig(cfg)
	if s.configRepo != nil {
		if err := s.engine.SaveConfig(ctx, s.configRepo); err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
	}
	cerr.SetJSONResponse(ctx, s.engine.ExportConfig())
}

func (s *Server) listConfirmations(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), s.broker.Pending())
}

type confirmationResponse struct {
	Allow bool `json:"allow"`
}

func (s *Server) respondConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req confirmationResponse
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.broker.Respond(chi.URLParam(r, "id"), req.Allow); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, req)
}

func (s *Server) vapidPublicKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key, err := s.registrar.PublicKey()
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"publicKey": key})
}

// pushSubscriptionRequest mirrors the browser's PushSubscription.toJSON().
type pushSubscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (s *Server) registerPushSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pushSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	sub, err := s.registrar.Register(ctx, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, sub)
}
