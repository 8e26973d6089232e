// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"avatar-transformer/internal/common/config"
	"avatar-transformer/internal/common/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests drive a running transformer. Set E2E_BASE_URL (for example
// http://localhost:8080) to enable them.
var (
	baseURL    string
	httpClient = &http.Client{Timeout: 30 * time.Second}
)

func TestMain(m *testing.M) {
	baseURL = strings.TrimRight(os.Getenv("E2E_BASE_URL"), "/")
	os.Exit(m.Run())
}

func requireService(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	if baseURL == "" {
		t.Skip("E2E_BASE_URL not set")
	}
}

func getJSON(t *testing.T, path string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := httpClient.Get(baseURL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func postJSON(t *testing.T, path string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := httpClient.Post(baseURL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestServiceConnectivity(t *testing.T) {
	requireService(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "❌ Redis client creation failed")
	defer rdb.Close()
	assert.NoError(t, rdb.Ping(context.Background()), "❌ Redis ping failed")
	t.Log("✅ Redis connected")

	if cfg.Database.Postgres.Enabled() {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		require.NoError(t, err, "❌ PostgreSQL connection failed")
		defer pg.Close()
		assert.NoError(t, pg.Ping(context.Background()), "❌ PostgreSQL ping failed")
		t.Log("✅ PostgreSQL connected")
	}
}

func TestHealthAndReady(t *testing.T) {
	requireService(t)

	status, body := getJSON(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = getJSON(t, "/ready")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestRejectedRequests(t *testing.T) {
	requireService(t)

	tests := []struct {
		name       string
		do         func(t *testing.T) (int, map[string]interface{})
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{
			name:       "profile image without username",
			do:         func(t *testing.T) (int, map[string]interface{}) { return getJSON(t, "/api/profile-image") },
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
			wantValue:  "Username is required",
		},
		{
			name:       "status without id",
			do:         func(t *testing.T) (int, map[string]interface{}) { return getJSON(t, "/api/status") },
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
			wantValue:  "ID is required",
		},
		{
			name: "transform without model",
			do: func(t *testing.T) (int, map[string]interface{}) {
				return postJSON(t, "/api/transform", map[string]string{"image_url": "https://unavatar.io/x/alice"})
			},
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
			wantValue:  "image_url and model_name are required",
		},
		{
			name: "flow with empty handle",
			do: func(t *testing.T) (int, map[string]interface{}) {
				return postJSON(t, "/api/transformations", map[string]string{"handle": "", "turnstile_token": "tok"})
			},
			wantStatus: http.StatusBadRequest,
			wantKey:    "error",
			wantValue:  "Please enter a X/Twitter handle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := tt.do(t)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantValue, body[tt.wantKey])
		})
	}
}
