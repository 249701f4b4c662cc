package solar

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeepAliveBot(t testing.TB) *Bot {
	t.Helper()
	cfg := newTestConfig(t)
	cfg.KeepAlive.Enabled = true
	cfg.KeepAlive.CORS = DefaultCORSConfig()
	b, _, _, _ := newTestBot(t, cfg)
	require.NotNil(t, b.keepAliveServer)
	return b
}

func TestKeepAlive_Root(t *testing.T) {
	b := newTestKeepAliveBot(t)
	engine := b.keepAliveServer.engine

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
		assert.NotEmpty(t, rec.Header().Get(xRequestIDHeader), method)
		if method == http.MethodGet {
			assert.Equal(t, keepAliveMessage, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestKeepAlive_Healthz(t *testing.T) {
	b := newTestKeepAliveBot(t)
	engine := b.keepAliveServer.engine

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, keepAliveHealthz, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, healthStatus{Status: "ok", Version: Version}, status)

	b.startedAt = time.Now().Add(-90 * time.Second)
	b.discord.handlerConnect()(nil, nil)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, keepAliveHealthz, nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.DiscordConnected)
	assert.Equal(t, "1m30s", status.Uptime)
}

func TestKeepAlive_CORS(t *testing.T) {
	b := newTestKeepAliveBot(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://uptime.example.com")
	rec := httptest.NewRecorder()
	b.keepAliveServer.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
