package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceline/serviceline/internal/auth"
	"github.com/serviceline/serviceline/internal/ingest"
	"github.com/serviceline/serviceline/internal/observability"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/records"
	"github.com/serviceline/serviceline/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 3*time.Minute, cfg.CacheStaleAfter)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsStaleWindowBeyondTTL(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CACHE_STALE_AFTER", "10m")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf).Info("hello", slog.String("k", "v"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "production", line["env"])

	buf.Reset()
	newLogger(&Config{AppEnv: "development"}, &buf).Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

type memUsers map[string]*auth.User

func (m memUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, ok := m[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

type memRecords []records.Record

func (m memRecords) List(ctx context.Context, f records.Filter) ([]records.Record, error) {
	return m, nil
}

func (m memRecords) Cities(ctx context.Context, showroomID int64, kind ingest.UploadType) ([]string, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, checks ...HealthCheck) (http.Handler, *auth.Tokens) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	repo := memUsers{"gm@example.com": {
		ID: 1, Email: "gm@example.com", Name: "GM", PasswordHash: hash,
		ShowroomID: 1, City: "Pune", Roles: rbac.NewSet(rbac.RoleGeneralManager), IsActive: true,
	}}
	tokens := auth.NewTokens("test-secret", time.Hour)
	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimitPerMin: 1000, AppRequestTimeout: time.Second},
		Tokens:         tokens,
		RBACMiddleware: rbac.Middleware{Logger: logger},
		Metrics:        observability.NewMetrics(),
		Health:         checks,
		AuthHandler:    auth.NewHandler(logger, auth.NewService(repo, tokens)),
		RecordsHandler: records.NewHandler(logger, memRecords{{RONumber: "RO-1", City: "Pune"}}),
	})
	return router, tokens
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	router, _ = newTestRouter(t, HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestLoginThenReadRecords(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records?type=ro_billing", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body := strings.NewReader(`{"email":"gm@example.com","password":"correct horse"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Data.Token)

	req = httptest.NewRequest(http.MethodGet, "/api/records?type=ro_billing", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"RO-1"`)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"general_manager"`)
}

func TestMetricsEndpointAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `serviceline_http_requests_total{code="200",route="/healthz"}`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(TestModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := requestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/records", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "/api/records", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, float64(5), entry["bytes"])
}

func TestRouterLogsEachRequestOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimitPerMin: 1000, AppRequestTimeout: time.Second},
		Tokens:         auth.NewTokens("test-secret", time.Hour),
		RBACMiddleware: rbac.Middleware{Logger: logger},
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "/healthz", entry["path"])
	assert.NotEmpty(t, entry["request_id"])
}
