// Package ws provides an optional WebSocket listener for browser clients.
// Each WebSocket text message carries one protocol frame; the newline
// framing used on raw TCP is redundant here and stripped on write.
package ws

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/sketch/internal/config"
	"github.com/cory-johannsen/sketch/internal/session"
)

// Handler processes one connected client from handshake to disconnect.
type Handler interface {
	HandleTransport(ctx context.Context, t session.Transport) error
}

// Conn adapts a WebSocket connection to the session transport contract.
type Conn struct {
	ws           *websocket.Conn
	mu           sync.Mutex
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps an upgraded WebSocket connection.
func NewConn(ws *websocket.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

// ReadFrame reads the next text message.
func (c *Conn) ReadFrame() ([]byte, error) {
	if c.readTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(data, "\r\n"), nil
}

// WriteFrame sends one frame as a text message, without the trailing
// newline used on raw TCP.
func (c *Conn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, bytes.TrimRight(frame, "\n"))
}

// Close closes the underlying WebSocket connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Server is the HTTP server hosting the WebSocket endpoint and a health
// check at /healthz.
type Server struct {
	cfg      config.WebSocketConfig
	handler  Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpSrv  *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewServer creates a WebSocket server with the given configuration.
//
// Precondition: handler and logger must be non-nil.
func NewServer(cfg config.WebSocketConfig, handler Handler, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Game clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
}

// ListenAndServe starts the HTTP listener and serves WebSocket upgrades
// until Stop is called. This method blocks until the server is stopped.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpSrv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.listener = listener
	s.httpSrv = httpSrv
	s.running = true
	s.mu.Unlock()

	s.logger.Info("websocket server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
	)

	if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("websocket client connected",
		zap.String("remote_addr", r.RemoteAddr),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn := NewConn(wsConn, s.cfg.ReadTimeout, s.cfg.WriteTimeout)
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-s.quit:
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := s.handler.HandleTransport(ctx, conn); err != nil {
			s.logger.Debug("websocket connection ended",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
		}
	}()
}

// Stop gracefully stops the server and waits for active connections.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	close(s.quit)
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.httpSrv.Shutdown(ctx)
		cancel()
	}
	s.wg.Wait()

	s.logger.Info("websocket server stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
