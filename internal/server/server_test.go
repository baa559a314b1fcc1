package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/permguard/internal/audit"
	"github.com/kazz187/permguard/internal/config"
	"github.com/kazz187/permguard/internal/confirmation"
	"github.com/kazz187/permguard/internal/engine"
	configrepo "github.com/kazz187/permguard/internal/engine/repositoryimpl"
	"github.com/kazz187/permguard/internal/permission"
	"github.com/kazz187/permguard/internal/pushnotification"
	pushsubrepo "github.com/kazz187/permguard/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/permguard/pkg/clock"
	"github.com/kazz187/permguard/pkg/storage"
)

const testAPIKey = "secret"

type fixture struct {
	handler    http.Handler
	engine     *engine.Engine
	broker     *confirmation.Broker
	configRepo *configrepo.YAMLRepository
	clock      *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	clk := clock.Fake(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	broker := confirmation.NewBroker(confirmation.WithClock(clk))
	eng := engine.New(
		engine.WithClock(clk),
		engine.WithConfirmationHandler(broker.Confirm),
	)
	env := &config.Env{BaseEnv: config.BaseEnv{APIKey: testAPIKey}}
	cfgRepo := configrepo.NewYAMLRepository(store)
	registrar := pushnotification.NewRegistrar(&env.VAPIDEnv, pushsubrepo.NewYAMLRepository(store), clk)

	return &fixture{
		handler:    NewServer(env, eng, cfgRepo, broker, registrar).Handler(),
		engine:     eng,
		broker:     broker,
		configRepo: cfgRepo,
		clock:      clk,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/policy", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/policy", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckAndAudit(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/check", map[string]any{"permission": "file.read"})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[engine.Result](t, rec)
	assert.False(t, res.Granted)
	assert.Equal(t, "denied by default policy", res.Reason)

	rec = f.do(t, http.MethodPost, "/api/grants", map[string]any{"name": "file.*"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/check/batch", []map[string]any{
		{"permission": "file.read", "context": map[string]string{"path": "/tmp/a"}},
		{"permission": "nope.unknown"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]engine.Result](t, rec)
	require.Len(t, results, 2)
	assert.True(t, results[0].Granted)
	assert.Equal(t, audit.SourceGrant, results[0].Source)
	assert.Equal(t, "Unknown permission: nope.unknown", results[1].Reason)

	rec = f.do(t, http.MethodGet, "/api/audit?filter=granted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]audit.Entry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "/tmp/a", entries[0].Context["path"])

	rec = f.do(t, http.MethodGet, "/api/audit?filter=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/check", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/permissions?risk=high", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, p := range decode[[]permission.Permission](t, rec) {
		assert.Equal(t, permission.RiskHigh, p.Risk)
	}

	rec = f.do(t, http.MethodPut, "/api/permissions/db.query", map[string]any{"scope": "custom", "risk": "medium"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/permissions/db.query", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, permission.ScopeCustom, decode[permission.Permission](t, rec).Scope)

	rec = f.do(t, http.MethodPut, "/api/permissions/db.query", map[string]any{"scope": "galaxy", "risk": "medium"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/permissions/db.query", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/permissions/db.query", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/permissions/db.query", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPolicyAndConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.do(t, http.MethodPut, "/api/policy", map[string]any{
		"defaultAllow": false,
		"rules": []map[string]any{{
			"permission": "network.*",
			"allow":      true,
			"conditions": []map[string]any{{"type": "host", "operator": "endsWith", "value": []string{".example.com"}}},
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/check", map[string]any{
		"permission": "network.request",
		"context":    map[string]string{"host": "api.example.com"},
	})
	assert.True(t, decode[engine.Result](t, rec).Granted)

	rec = f.do(t, http.MethodPut, "/api/policy", map[string]any{
		"rules": []map[string]any{{"permission": "*", "allow": true, "conditions": []map[string]any{{"type": "path", "operator": "like", "value": "x"}}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	yamlDoc := "policy:\n  default_allow: true\n  rules: []\n"
	req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(yamlDoc))
	req.Header.Set("Content-Type", "application/yaml")
	req.Header.Set("X-API-Key", testAPIKey)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, f.engine.Policy().DefaultAllow)

	saved, err := f.configRepo.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, saved.Policy)
	assert.True(t, saved.Policy.DefaultAllow)
	assert.NotEmpty(t, saved.Permissions)
}

func TestGrants(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/grants", map[string]any{"name": "network.request", "kind": "temporary", "ttl": "1h"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/grants", map[string]any{"name": "file.delete", "kind": "limited", "max_uses": 2})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/grants", map[string]any{"name": "file", "kind": "scope"})
	require.Equal(t, http.StatusCreated, rec.Code)
	granted := decode[map[string]any](t, rec)["granted"]
	assert.ElementsMatch(t, []any{"file.read", "file.write", "file.delete"}, granted)

	rec = f.do(t, http.MethodPost, "/api/grants", map[string]any{"name": "x", "kind": "limited"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/grants", map[string]any{"name": "x", "kind": "forever"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/grants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[struct {
		Permanent []string             `json:"permanent"`
		Temporary map[string]time.Time `json:"temporary"`
		Limited   map[string]int       `json:"limited"`
	}](t, rec)
	assert.Equal(t, f.clock.Now().Add(time.Hour), snap.Temporary["network.request"].UTC())
	assert.Equal(t, 2, snap.Limited["file.delete"])

	rec = f.do(t, http.MethodDelete, "/api/grants/file.read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, f.engine.ListGranted(), "file.read")
}

func TestConfirmationRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.engine.Grant("bash.execute")

	done := make(chan engine.Result, 1)
	go func() {
		rec := f.do(t, http.MethodPost, "/api/check", map[string]any{
			"permission": "bash.execute",
			"context":    map[string]string{"command": "make test"},
		})
		var res engine.Result
		_ = json.Unmarshal(rec.Body.Bytes(), &res)
		done <- res
	}()

	var id string
	require.Eventually(t, func() bool {
		pending := f.broker.Pending()
		if len(pending) != 1 {
			return false
		}
		id = pending[0].ID
		return true
	}, 5*time.Second, 10*time.Millisecond)

	rec := f.do(t, http.MethodGet, "/api/confirmations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "make test")

	rec = f.do(t, http.MethodPost, "/api/confirmations/"+id, map[string]any{"allow": true})
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case res := <-done:
		assert.True(t, res.Granted)
		assert.Equal(t, audit.SourceConfirmation, res.Source)
	case <-time.After(5 * time.Second):
		t.Fatal("check did not return after confirmation")
	}

	rec = f.do(t, http.MethodPost, "/api/confirmations/"+id, map[string]any{"allow": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPushSubscriptions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/push-subscriptions/vapid-public-key", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	body := map[string]any{
		"endpoint": "https://push.example/abc",
		"keys":     map[string]string{"p256dh": "k", "auth": "a"},
	}
	rec = f.do(t, http.MethodPost, "/api/push-subscriptions", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "https://push.example/abc", decode[map[string]any](t, rec)["endpoint"])

	rec = f.do(t, http.MethodPost, "/api/push-subscriptions", map[string]any{"endpoint": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"code":"not_found","message":"not found"}`, rec.Body.String())
}
