package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/middleware"
	"relay-ai/internal/usecase"
)

// SessionSubscriber delivers one session's events inline, in publish order.
type SessionSubscriber interface {
	SubscribeSession(sessionID string, handler domain.EventHandler) func()
}

// ServerDeps holds the collaborators the gateway drives.
type ServerDeps struct {
	Dispatcher *usecase.Dispatcher
	Sessions   *usecase.SessionManager
	Bus        SessionSubscriber
	// DefaultAgent starts every new conversation.
	DefaultAgent *domain.Agent
	// Agents lists the catalog's agents for the status endpoint.
	Agents    []string
	Profile   string
	Welcome   string
	RunConfig usecase.RunConfig
	Logger    *slog.Logger
}

// Server is the WebSocket chat gateway. Each connection is one conversation
// with its own session.
type Server struct {
	deps      ServerDeps
	cfg       config.GatewayConfig
	metrics   *Metrics
	startTime time.Time

	httpSrv   *http.Server
	boundAddr atomic.Value // string
	clients   sync.Map     // connID (uint64) -> *clientConn
	nextID    atomic.Uint64
}

// NewServer creates a gateway server.
func NewServer(deps ServerDeps, cfg config.GatewayConfig) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		deps:      deps,
		cfg:       cfg,
		metrics:   &Metrics{},
		startTime: time.Now(),
	}
}

// Handler returns the gateway's HTTP handler: /ws for chat,
// /api/v1/status and /metrics for monitoring.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/api/v1/status", s.statusHandler())
	mux.HandleFunc("/metrics", s.metricsHandler())

	var h http.Handler = mux
	if s.cfg.RequestsPerMin > 0 {
		h = middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: s.cfg.RequestsPerMin,
			BurstSize:      s.cfg.BurstSize,
			TrustedProxies: s.cfg.TrustedProxies,
		}, s.deps.Logger)(h)
	}
	return middleware.SecurityHeaders(h)
}

// Start accepts connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr.Store(listener.Addr().String())

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.deps.Logger.Info("gateway started", "addr", listener.Addr().String(), "profile", s.deps.Profile)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop closes every conversation and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.close()
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the address the server bound to, or "" before Start.
func (s *Server) BoundAddr() string {
	addr, _ := s.boundAddr.Load().(string)
	return addr
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.deps.Logger.Warn("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connID := s.nextID.Add(1)
	session := s.deps.Sessions.Create(ctx, s.deps.DefaultAgent, s.deps.RunConfig)
	cc := newClientConn(ws, session, cancel, s.deps.Logger)
	s.clients.Store(connID, cc)
	s.metrics.SessionsTotal.Add(1)

	unsub := s.deps.Bus.SubscribeSession(session.ID, cc.onEvent)

	s.deps.Logger.Info("gateway client connected", "conn_id", connID, "session_id", session.ID)

	go cc.writeLoop(ctx)
	go s.serve(ctx, cc)

	cc.send(Frame{
		Type:      FrameTypeWelcome,
		SessionID: session.ID,
		Agent:     s.deps.DefaultAgent.Name(),
		Content:   s.deps.Welcome,
	})

	s.readLoop(ctx, cc)

	// Let an in-flight turn finish abandoning before the session goes away.
	cancel()
	cc.close()
	<-cc.idle
	unsub()
	s.clients.Delete(connID)
	if err := s.deps.Sessions.Close(context.WithoutCancel(ctx), session.ID); err != nil {
		s.deps.Logger.Warn("close session failed", "session_id", session.ID, "error", err)
	}
	ws.Close(websocket.StatusNormalClosure, "")
	s.deps.Logger.Info("gateway client disconnected", "conn_id", connID, "session_id", session.ID)
}
