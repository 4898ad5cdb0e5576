package server

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/rainerleuschke/tcp-bridge/errors"
	"github.com/rainerleuschke/tcp-bridge/metric"
)

// Defaults applied by New.
const (
	DefaultTCPAddress    = ":9015"
	DefaultWebSocketPath = "/ws"
	DefaultWriteTimeout  = 5 * time.Second
	DefaultMaxLineBytes  = 1 << 20
)

const (
	transportTCP       = "tcp"
	transportWebSocket = "websocket"

	idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idLength   = 12
)

// Handler receives client lifecycle events and lines. Calls for one client
// are made from a single goroutine; calls for different clients are
// concurrent.
type Handler interface {
	ClientConnected(id string)
	ClientDisconnected(id string)
	HandleLine(ctx context.Context, id, line string)
}

// Config holds listener settings. An empty WebSocketAddress disables the
// WebSocket listener.
type Config struct {
	TCPAddress       string
	WebSocketAddress string
	WebSocketPath    string
	WriteTimeout     time.Duration
	MaxLineBytes     int
}

// Deps holds the server's dependencies. MetricsRegistry may be nil.
type Deps struct {
	Config          Config
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Server accepts TCP and WebSocket clients, feeds their lines to a Handler
// and delivers outbound lines.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	metrics *serverMetrics

	clientsMu sync.RWMutex
	clients   map[string]*client

	lifecycleMu sync.Mutex
	running     bool
	handler     Handler
	tcpLn       net.Listener
	wsLn        net.Listener
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a Server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	cfg := deps.Config
	if cfg.TCPAddress == "" {
		cfg.TCPAddress = DefaultTCPAddress
	}
	if cfg.WebSocketPath == "" {
		cfg.WebSocketPath = DefaultWebSocketPath
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Server", "New", "register metrics")
	}

	return &Server{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		metrics: metrics,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}, nil
}

// Start binds the listeners and begins accepting clients.
func (s *Server) Start(ctx context.Context, h Handler) error {
	if h == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Server", "Start", "handler required")
	}

	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Server", "Start", "start")
	}

	tcpLn, err := net.Listen("tcp", s.cfg.TCPAddress)
	if err != nil {
		return errors.WrapFatal(err, "Server", "Start", "listen on "+s.cfg.TCPAddress)
	}

	var wsLn net.Listener
	if s.cfg.WebSocketAddress != "" {
		wsLn, err = net.Listen("tcp", s.cfg.WebSocketAddress)
		if err != nil {
			_ = tcpLn.Close()
			return errors.WrapFatal(err, "Server", "Start", "listen on "+s.cfg.WebSocketAddress)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.handler = h
	s.tcpLn = tcpLn
	s.wsLn = wsLn
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.acceptLoop(runCtx, tcpLn)
	s.logger.Info("Listening for TCP clients", "address", tcpLn.Addr().String())

	if wsLn != nil {
		mux := http.NewServeMux()
		mux.HandleFunc(s.cfg.WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
			s.handleWebSocket(runCtx, w, r)
		})
		s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.Serve(wsLn); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				s.logger.Error("WebSocket server failed", "error", err)
			}
		}()
		s.logger.Info("Listening for WebSocket clients", "address", wsLn.Addr().String(), "path", s.cfg.WebSocketPath)
	}
	return nil
}

// Stop closes the listeners and every client, then waits for the client
// goroutines to exit or ctx to end.
func (s *Server) Stop(ctx context.Context) error {
	s.lifecycleMu.Lock()
	if !s.running {
		s.lifecycleMu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	_ = s.tcpLn.Close()
	httpServer := s.httpServer
	s.httpServer = nil
	s.lifecycleMu.Unlock()

	var errs []error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.shutdown()
	}
	s.clientsMu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := stderrors.Join(errs...); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown")
	}
	return nil
}

// TCPAddr returns the bound TCP address, or "" before Start.
func (s *Server) TCPAddr() string {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.tcpLn == nil {
		return ""
	}
	return s.tcpLn.Addr().String()
}

// WebSocketAddr returns the bound WebSocket address, or "" when disabled.
func (s *Server) WebSocketAddr() string {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.wsLn == nil {
		return ""
	}
	return s.wsLn.Addr().String()
}

// Len returns the number of connected clients.
func (s *Server) Len() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// SendToClient writes line to client id. A client whose write fails is
// disconnected.
func (s *Server) SendToClient(id, line string) error {
	s.clientsMu.RLock()
	c, ok := s.clients[id]
	s.clientsMu.RUnlock()
	if !ok {
		return errors.WrapInvalid(errors.ErrClientNotFound, "Server", "SendToClient", id)
	}

	if err := c.send(line, s.cfg.WriteTimeout); err != nil {
		c.shutdown()
		return errors.WrapTransient(err, "Server", "SendToClient", "write to "+id)
	}
	return nil
}

// SendToAll writes line to every connected client.
func (s *Server) SendToAll(line string) {
	s.clientsMu.RLock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range targets {
		if err := c.send(line, s.cfg.WriteTimeout); err != nil {
			s.logger.Debug("Broadcast failed", "client", c.id, "error", err)
			c.shutdown()
		}
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if stderrors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("Accept failed", "error", err)
			return
		}

		c, err := s.register(transportTCP, &tcpWriter{conn: conn})
		if err != nil {
			s.logger.Warn("Rejecting connection", "remote", conn.RemoteAddr().String(), "error", err)
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.unregister(c)
			s.readTCP(ctx, c, conn)
		}()
	}
}

func (s *Server) readTCP(ctx context.Context, c *client, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	initial := 64 * 1024
	if initial > s.cfg.MaxLineBytes {
		initial = s.cfg.MaxLineBytes
	}
	scanner.Buffer(make([]byte, initial), s.cfg.MaxLineBytes)

	for scanner.Scan() {
		s.dispatch(ctx, c, scanner.Text())
	}

	err := scanner.Err()
	switch {
	case stderrors.Is(err, bufio.ErrTooLong):
		if s.metrics != nil {
			s.metrics.linesTooLong.Inc()
		}
		s.logger.Warn("Closing client after oversized line", "client", c.id, "limit", s.cfg.MaxLineBytes)
	case err != nil && !c.closed.Load():
		s.logger.Debug("Client read ended", "client", c.id, "error", err)
	}
}

// handleWebSocket serves one WebSocket client for the life of its
// connection.
func (s *Server) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(int64(s.cfg.MaxLineBytes))

	c, err := s.register(transportWebSocket, &wsWriter{conn: conn})
	if err != nil {
		s.logger.Warn("Rejecting connection", "remote", r.RemoteAddr, "error", err)
		_ = conn.Close()
		return
	}

	defer s.unregister(c)
	s.readWebSocket(ctx, c, conn)
}

// readWebSocket treats each text message as one or more lines.
func (s *Server) readWebSocket(ctx context.Context, c *client, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Client read ended", "client", c.id, "error", err)
			}
			return
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, len(data)+1), len(data)+1)
		for scanner.Scan() {
			s.dispatch(ctx, c, scanner.Text())
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *client, line string) {
	if s.metrics != nil {
		s.metrics.linesReceived.Inc()
	}
	s.handler.HandleLine(ctx, c.id, line)
}

func (s *Server) register(transport string, w lineWriter) (*client, error) {
	id, err := nanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return nil, errors.WrapTransient(err, "Server", "register", "generate client id")
	}
	c := &client{id: id, transport: transport, connectedAt: time.Now(), w: w}

	s.clientsMu.Lock()
	s.clients[id] = c
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.connections.WithLabelValues(transport).Inc()
		s.metrics.clientsConnected.WithLabelValues(transport).Inc()
	}
	s.logger.Debug("Client accepted", "client", id, "transport", transport, "remote", w.remoteAddr())
	s.handler.ClientConnected(id)
	return c, nil
}

func (s *Server) unregister(c *client) {
	c.shutdown()

	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.clientsConnected.WithLabelValues(c.transport).Dec()
	}
	s.handler.ClientDisconnected(c.id)
	s.logger.Debug("Client closed", "client", c.id, "duration", time.Since(c.connectedAt).String())
}
