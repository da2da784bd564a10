package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credguard/internal/config"
	"credguard/internal/license"
	"credguard/internal/shared/testutil"
)

const adminToken = "admin-test-token"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Token.Secret = testutil.TestTokenSecret
	cfg.Security.AdminToken = adminToken
	cfg.Security.RateLimit.Enabled = false
	cfg.Server.Port = 0
	return cfg
}

// noon keeps the off-hours behavior rule quiet regardless of when the tests run
func noon() time.Time {
	return time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
}

func newTestApplication(t *testing.T, cfg *config.Config, opts ...license.Option) *Application {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)

	app, err := New(context.Background(), cfg, logger, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		app.Fleet.Stop()
		if app.detachBridge != nil {
			app.detachBridge()
		}
		app.closeResources()
	})
	return app
}

func postJSON(t *testing.T, url string, body any, header http.Header) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestNewRequiresTokenSecret(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	cfg := testConfig()
	cfg.Token.Secret = ""

	app, err := New(context.Background(), cfg, logger, nil)
	assert.Error(t, err)
	assert.Nil(t, app)
}

func TestNewRejectsMissingGeoIPDatabase(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	cfg := testConfig()
	cfg.GeoIP.DBPath = "/nonexistent/GeoLite2-City.mmdb"

	_, err := New(context.Background(), cfg, logger, nil)
	assert.Error(t, err)
}

func TestApplicationServiceContainer(t *testing.T) {
	app := newTestApplication(t, testConfig())

	require.NotNil(t, app.Services)
	assert.NotNil(t, app.Services.Validation)
	assert.NotNil(t, app.Services.Health)
	assert.NotNil(t, app.Services.Engine)
	assert.NotNil(t, app.Manager)
	assert.NotNil(t, app.Fleet)
	assert.NotNil(t, app.WebSocketHub)
	assert.Nil(t, app.PeerClient)
	assert.NotNil(t, app.Router)
	assert.Equal(t, ":0", app.Server.Addr)
}

func TestApplicationPeerClient(t *testing.T) {
	cfg := testConfig()
	cfg.Validation.PeerNodes = []string{"http://node-b:8080", "http://node-c:8080"}
	app := newTestApplication(t, cfg)

	require.NotNil(t, app.PeerClient)
	assert.Equal(t, cfg.Validation.PeerNodes, app.Manager.PeerNodes())
}

func TestApplicationWebSocketDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.WebSocket.Enabled = false
	app := newTestApplication(t, cfg)
	assert.Nil(t, app.WebSocketHub)

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + config.WebSocketEndpoint)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApplicationRoutes(t *testing.T) {
	app := newTestApplication(t, testConfig(), license.WithClock(noon))
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	t.Run("liveness", func(t *testing.T) {
		resp, err := http.Get(srv.URL + config.HealthEndpoint + "/live")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("validate without device uses host attributes", func(t *testing.T) {
		credential := testutil.MintCredential(t, "user-1", "pro", time.Hour)
		validate := func() license.ValidationOutcome {
			resp := postJSON(t, srv.URL+config.APIBasePath+"/validate", map[string]any{
				"credential":  credential,
				"identity_id": "user-1",
			}, nil)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var outcome license.ValidationOutcome
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&outcome))
			return outcome
		}

		first := validate()
		assert.True(t, first.Valid, "failed checks: %v", first.FailedChecks())
		assert.Equal(t, 100, first.SecurityScore)
		assert.Equal(t, license.RiskLow, first.RiskLevel)
		fingerprint := first.Checks[license.MethodFingerprint]
		assert.True(t, fingerprint.Passed)
		assert.Equal(t, true, fingerprint.Details["firstTime"])

		second := validate()
		assert.True(t, second.Valid, "failed checks: %v", second.FailedChecks())
		assert.True(t, second.Checks[license.MethodFingerprint].Passed)
		assert.Equal(t, true, second.Checks[license.MethodFingerprint].Details["matches"])
		assert.Equal(t, 2, app.Manager.Audit().Len())

		profile, err := app.Manager.GetProfile(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"127.0.0.1"}, profile.Addresses())
	})

	t.Run("validate requires content type", func(t *testing.T) {
		resp, err := http.Post(srv.URL+config.APIBasePath+"/validate", "text/plain", strings.NewReader("x"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("missing credential", func(t *testing.T) {
		resp := postJSON(t, srv.URL+config.APIBasePath+"/validate", map[string]any{"identity_id": "user-1"}, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := http.Get(srv.URL + config.APIBasePath + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var stats map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		assert.Contains(t, stats, "cache")
		assert.Contains(t, stats, "stream")
	})

	t.Run("peer verify", func(t *testing.T) {
		resp := postJSON(t, srv.URL+config.PeerVerifyPath, map[string]any{
			"credential": testutil.MintCredential(t, "user-2", "pro", time.Hour),
		}, nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var vote license.PeerVote
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&vote))
		assert.True(t, vote.Valid)
		assert.Equal(t, app.nodeID, vote.NodeID)
	})

	t.Run("metrics not served without exporter", func(t *testing.T) {
		resp, err := http.Get(srv.URL + config.MetricsEndpoint)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestApplicationAdminRoutes(t *testing.T) {
	app := newTestApplication(t, testConfig())
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	body := map[string]any{"reason": "regional outage", "duration": "1h"}

	t.Run("missing token", func(t *testing.T) {
		resp := postJSON(t, srv.URL+config.APIBasePath+"/admin/override", body, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, app.Manager.ListOverrides())
	})

	t.Run("override accepted", func(t *testing.T) {
		resp := postJSON(t, srv.URL+config.APIBasePath+"/admin/override", body, http.Header{
			"Authorization": []string{"Bearer " + adminToken},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Len(t, app.Manager.ListOverrides(), 1)
	})
}

func TestApplicationAdminDisabledWithoutToken(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AdminToken = ""
	app := newTestApplication(t, cfg)
	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	resp := postJSON(t, srv.URL+config.APIBasePath+"/admin/revoke", map[string]any{
		"credential_hash": license.HashCredential("anything"),
		"reason":          "leaked",
	}, http.Header{"Authorization": []string{"Bearer whatever"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestApplicationWebSocketStream(t *testing.T) {
	app := newTestApplication(t, testConfig())
	app.WebSocketHub.Start()
	defer app.WebSocketHub.Stop()

	srv := httptest.NewServer(app.Router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + config.WebSocketEndpoint
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return app.WebSocketHub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp := postJSON(t, srv.URL+config.APIBasePath+"/validate", map[string]any{
		"credential": testutil.MintCredential(t, "user-ws", "pro", time.Hour),
	}, nil)
	resp.Body.Close()

	// The first frame is the connection greeting
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frames []string
	for i := 0; i < 2; i++ {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		frames = append(frames, string(msg))
	}
	assert.Contains(t, frames[0], "connected")
	assert.Contains(t, frames[1], license.EventValidationCompleted)
}

func TestApplicationCheckOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AllowedOrigins = []string{"https://console.example.com"}
	app := newTestApplication(t, cfg)

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin", "", true},
		{"allowed origin", "https://console.example.com", true},
		{"foreign origin", "https://evil.example.net", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, config.WebSocketEndpoint, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, app.checkOrigin(req))
		})
	}
}

func TestApplicationGetCORSConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Security.AllowedOrigins = []string{"https://console.example.com"}
	app := newTestApplication(t, cfg)

	cors := app.getCORSConfig()
	assert.Equal(t, cfg.Security.AllowedOrigins, cors.AllowedOrigins)
	assert.Contains(t, cors.AllowedMethods, "POST")
	assert.Contains(t, cors.AllowedHeaders, "Authorization")
	assert.True(t, cors.AllowCredentials)
}

func TestApplicationStartupHealthCheck(t *testing.T) {
	app := newTestApplication(t, testConfig())
	assert.NoError(t, app.performStartupHealthCheck(context.Background()))
}

func TestApplicationStartStop(t *testing.T) {
	app := newTestApplication(t, testConfig())
	app.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.Start(ctx, cancel))
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, app.Stop(context.Background()))
}
