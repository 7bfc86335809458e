package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-review/internal/middleware"
)

func echoClient() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.ClientFromContext(r.Context())))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	h := middleware.APIKeyAuth(map[string]string{"alice": "key-a", "bob": "key-b"})(echoClient())

	tests := []struct {
		name   string
		target string
		header string
		code   int
		client string
	}{
		{"bearer header", "/v1/runs/x", "Bearer key-b", http.StatusOK, "bob"},
		{"raw header", "/v1/runs/x", "key-a", http.StatusOK, "alice"},
		{"query token", "/v1/ws?token=key-a", "", http.StatusOK, "alice"},
		{"missing", "/v1/runs/x", "", http.StatusUnauthorized, ""},
		{"wrong key", "/v1/runs/x", "Bearer nope", http.StatusUnauthorized, ""},
		{"public health", "/health", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, tt.client, rec.Body.String())
			}
		})
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	t.Parallel()

	rl := middleware.NewRateLimiter(2, 0)
	h := rl.Middleware(echoClient())

	do := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/runs/x", nil)
		req = req.WithContext(middleware.WithClient(req.Context(), client))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice"))
	assert.Equal(t, http.StatusOK, do("bob"), "buckets are per client")

	assert.Equal(t, 0, rl.Prune(1<<40))
}

func TestValidateChangeSetID(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"42", "acme/api#42", "my.org/some-repo_2#7", "A"} {
		assert.NoError(t, middleware.ValidateChangeSetID(ok), ok)
	}
	for _, bad := range []string{"", "acme/api", "acme/api#x", "a b", "../etc#1"} {
		assert.Error(t, middleware.ValidateChangeSetID(bad), bad)
	}
}

func TestValidateLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 20, middleware.ValidateLimit(0))
	assert.Equal(t, 5, middleware.ValidateLimit(5))
	assert.Equal(t, 100, middleware.ValidateLimit(1000))
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := middleware.NewMetrics()
	m.RunStarted()
	m.RunFinished(true, 3)
	m.RunStarted()
	m.RunFinished(false, 0)
	m.EventDropped()

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap["runs_total"])
	assert.EqualValues(t, 0, snap["runs_running"])
	assert.EqualValues(t, 1, snap["runs_completed"])
	assert.EqualValues(t, 1, snap["runs_failed"])
	assert.EqualValues(t, 3, snap["suggestions_total"])
	assert.EqualValues(t, 1, snap["events_dropped"])

	rec := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(m.Handler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"runs_total":2`)
}

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "line one\nline\ttwo", middleware.SanitizeString("  line one\n\x00line\ttwo\x07\x1b  "))
	assert.Empty(t, middleware.SanitizeString("\x00\x01 \r"))
}

func TestHealthHandler_CheckFunc(t *testing.T) {
	t.Parallel()

	ok := middleware.CheckFunc(func(context.Context) error { return nil })
	down := middleware.CheckFunc(func(context.Context) error { return errors.New("draining") })

	rec := httptest.NewRecorder()
	middleware.HealthHandler(map[string]middleware.HealthChecker{"a": ok})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	middleware.HealthHandler(map[string]middleware.HealthChecker{"a": ok, "b": down})(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body middleware.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "draining", body.Checks["b"].Message)
	assert.Equal(t, "healthy", body.Checks["a"].Status)
}
