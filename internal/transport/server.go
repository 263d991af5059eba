// Package transport exposes the service's external interfaces: the GET /ws
// WebSocket upgrade that fans out broadcast.Bus messages, and GET /health
// composing the health of the cache, upstream API, and websocket
// subsystems. ws.UpgradeHTTP keeps gobwas/ws's low-level framing while
// letting /ws and /health share one net/http.ServeMux and listener.
//
// The external-apis health component reports healthy even while recent
// fetches are being rate limited: rate-limited fetches still complete via
// retry, so reporting them unhealthy would flap the endpoint on transient
// 429s. Liveness is preferred over strictness here.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"odin-marketfeed/internal/broadcast"
	"odin-marketfeed/internal/config"
	"odin-marketfeed/internal/metrics"
)

// HealthChecker reports whether a subsystem is currently healthy.
type HealthChecker func() bool

// Server hosts the /ws and /health HTTP endpoints.
type Server struct {
	cfg     config.ServerConfig
	logger  *zap.Logger
	bus     *broadcast.Bus
	metrics *metrics.Registry

	cacheHealthy    HealthChecker
	upstreamHealthy HealthChecker

	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer builds a Server wired to the broadcast bus and the health
// checkers for the cache and upstream-API subsystems. The websocket
// subsystem's health is derived from whether the HTTP listener is up.
func NewServer(cfg config.ServerConfig, logger *zap.Logger, bus *broadcast.Bus, metricsRegistry *metrics.Registry, cacheHealthy, upstreamHealthy HealthChecker) *Server {
	s := &Server{
		cfg:             cfg,
		logger:          logger,
		bus:             bus,
		metrics:         metricsRegistry,
		cacheHealthy:    cacheHealthy,
		upstreamHealthy: upstreamHealthy,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.WSPath, s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start binds the listener, returning any bind error to the caller, and
// then serves in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("transport listening", zap.String("addr", s.httpServer.Addr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	return nil
}

// Stop gracefully shuts down the HTTP listener and waits for it to exit.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	s.wg.Wait()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		if s.metrics != nil {
			s.metrics.AcceptErrors.Inc()
		}
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	sub := s.bus.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, sub, conn)
	}()

	s.readLoop(ctx, conn)
	cancel()
	<-done
	conn.Close()
}

func (s *Server) readLoop(ctx context.Context, conn net.Conn) {
	reader := wsutil.NewReader(conn, ws.StateServerSide)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		head, err := reader.NextFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("read frame error", zap.Error(err))
			}
			return
		}

		switch head.OpCode {
		case ws.OpClose:
			_ = wsutil.WriteServerMessage(conn, ws.OpClose, nil)
			return
		case ws.OpPing:
			if err := wsutil.WriteServerMessage(conn, ws.OpPong, nil); err != nil {
				s.logger.Debug("write pong error", zap.Error(err))
				return
			}
		default:
			// Inbound client frames (including text/binary) are ignored;
			// drain the payload so the connection stays framed correctly.
			if _, err := io.CopyN(io.Discard, reader, int64(head.Length)); err != nil {
				s.logger.Debug("drain frame data error", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, sub *broadcast.Subscriber, conn net.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Recv():
			if !ok {
				return
			}
			if err := wsutil.WriteServerMessage(conn, ws.OpText, payload); err != nil {
				s.logger.Debug("write message error", zap.Error(err))
				return
			}
		}
	}
}

type healthResponse struct {
	Status            string            `json:"status"`
	Service           string            `json:"service"`
	ActiveConnections int               `json:"active_connections"`
	Details           map[string]string `json:"details"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cacheOK := s.cacheHealthy == nil || s.cacheHealthy()
	upstreamOK := s.upstreamHealthy == nil || s.upstreamHealthy()
	wsOK := true

	details := map[string]string{
		"cache":         statusString(cacheOK),
		"external_apis": statusString(upstreamOK),
		"websocket":     statusString(wsOK),
	}

	resp := healthResponse{
		Service:           "odin-marketfeed",
		ActiveConnections: s.bus.SubscriberCount(),
		Details:           details,
	}

	w.Header().Set("Content-Type", "application/json")
	if cacheOK && upstreamOK && wsOK {
		resp.Status = "healthy"
		w.WriteHeader(http.StatusOK)
	} else {
		resp.Status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func statusString(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}
