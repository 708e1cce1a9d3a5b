// Package wschat provides a browser chat front end for the roll bot.
// Clients connect to the configured path with a ?name= query parameter,
// send chat lines as text messages and receive replies as JSON messages.
package wschat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/rollbot/internal/bot"
	"github.com/cory-johannsen/rollbot/internal/config"
	"github.com/cory-johannsen/rollbot/internal/frontend/handlers"
)

// MaxMessageSize bounds a single inbound message.
const MaxMessageSize = 4096

const writeTimeout = 10 * time.Second

// Message is the JSON shape of every reply.
type Message struct {
	// Kind is "result", "error" or "info".
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Server upgrades HTTP requests to WebSocket chat sessions.
type Server struct {
	cfg        config.WebSocketConfig
	dispatcher handlers.Dispatcher
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	conns    map[*websocket.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer creates a WebSocket front end.
//
// Precondition: dispatcher and logger must be non-nil.
func NewServer(cfg config.WebSocketConfig, dispatcher handlers.Dispatcher, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP handler serving the upgrade path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path(), s.handleUpgrade)
	return mux
}

// ListenAndServe serves until Stop is called.
//
// Postcondition: Returns nil after Stop, or the listen error.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		lis.Close()
		return nil
	}
	s.listener = lis
	s.httpSrv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srv := s.httpSrv
	s.mu.Unlock()

	s.logger.Info("websocket server listening",
		zap.String("addr", lis.Addr().String()),
		zap.String("path", s.path()),
	)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts down the HTTP server, closes every session and waits for
// their handlers to return. It is safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	srv := s.httpSrv
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("websocket shutdown", zap.Error(err))
		}
	}
	s.wg.Wait()
	s.logger.Info("websocket server stopped")
}

// Addr returns the listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) path() string {
	if s.cfg.Path == "" {
		return "/ws"
	}
	return s.cfg.Path
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	s.logger.Warn("websocket origin rejected",
		zap.String("origin", origin),
		zap.String("host", r.Host),
	)
	return false
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	name := handlers.CleanName(r.URL.Query().Get("name"))
	if name == "" {
		http.Error(w, "name query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	go s.serve(conn, name)
}

// track registers conn and counts its session in wg under the same lock
// Stop takes, so Stop either sees the session or refuses it.
func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) serve(conn *websocket.Conn, name string) {
	defer s.wg.Done()
	defer func() {
		s.untrack(conn)
		_ = conn.Close()
	}()

	start := time.Now()
	logger := s.logger.With(
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("author", name),
	)
	logger.Info("websocket author joined")
	conn.SetReadLimit(MaxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.ctx.Err() == nil {
				logger.Debug("websocket read failed", zap.Error(err))
			}
			logger.Info("websocket session ended", zap.Duration("duration", time.Since(start)))
			return
		}

		// A message may carry several lines; each is a separate chat line.
		for _, line := range strings.Split(string(data), "\n") {
			reply, ok := s.dispatcher.Dispatch(s.ctx, name, line)
			if !ok {
				continue
			}
			if err := writeReply(conn, reply); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
			if reply.Quit {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
					time.Now().Add(writeTimeout))
				logger.Info("websocket author quit", zap.Duration("duration", time.Since(start)))
				return
			}
		}
	}
}

func writeReply(conn *websocket.Conn, reply bot.Reply) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(Message{Kind: kindName(reply.Kind), Text: reply.Text})
}

func kindName(k bot.ReplyKind) string {
	switch k {
	case bot.KindResult:
		return "result"
	case bot.KindError:
		return "error"
	default:
		return "info"
	}
}
