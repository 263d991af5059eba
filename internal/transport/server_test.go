package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"odin-marketfeed/internal/broadcast"
	"odin-marketfeed/internal/config"
)

func newTestServer(t *testing.T, bus *broadcast.Bus, cacheHealthy HealthChecker) *httptest.Server {
	t.Helper()
	cfg := config.ServerConfig{Host: "127.0.0.1", WSPath: "/ws"}
	s := NewServer(cfg, zap.NewNop(), bus, nil, cacheHealthy, nil)
	srv := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthReportsHealthy(t *testing.T) {
	srv := newTestServer(t, broadcast.New(nil), func() bool { return true })

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "odin-marketfeed", body.Service)
	assert.Equal(t, 0, body.ActiveConnections)
	assert.Equal(t, "healthy", body.Details["cache"])
	assert.Equal(t, "healthy", body.Details["external_apis"])
	assert.Equal(t, "healthy", body.Details["websocket"])
}

func TestHealthReportsUnhealthyCache(t *testing.T) {
	srv := newTestServer(t, broadcast.New(nil), func() bool { return false })

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "unhealthy", body.Details["cache"])
	assert.Equal(t, "healthy", body.Details["websocket"])
}

func TestWSForwardsBroadcastMessages(t *testing.T) {
	bus := broadcast.New(nil)
	srv := newTestServer(t, bus, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, _, err := ws.Dial(ctx, wsURL)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return bus.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond, "upgrade must register a bus subscriber")

	payload := []byte(`{"type":"dashboard_update"}`)
	bus.Broadcast(payload)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msg, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(msg))
}

func TestWSDisconnectUnsubscribes(t *testing.T) {
	bus := broadcast.New(nil)
	srv := newTestServer(t, bus, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, _, err := ws.Dial(ctx, wsURL)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bus.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return bus.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "a dropped connection must release its subscriber")
}
