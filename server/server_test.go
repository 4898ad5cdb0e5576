package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainerleuschke/tcp-bridge/errors"
	"github.com/rainerleuschke/tcp-bridge/metric"
)

type recordingHandler struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
	lines        map[string][]string
	onLine       func(id, line string)
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{lines: make(map[string][]string)}
}

func (h *recordingHandler) ClientConnected(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = append(h.connected, id)
}

func (h *recordingHandler) ClientDisconnected(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, id)
}

func (h *recordingHandler) HandleLine(_ context.Context, id, line string) {
	h.mu.Lock()
	h.lines[id] = append(h.lines[id], line)
	onLine := h.onLine
	h.mu.Unlock()
	if onLine != nil {
		onLine(id, line)
	}
}

func (h *recordingHandler) connectedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.connected...)
}

func (h *recordingHandler) disconnectedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.disconnected...)
}

func (h *recordingHandler) linesFor(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines[id]...)
}

func startServer(t *testing.T, cfg Config, h Handler) *Server {
	t.Helper()

	if cfg.TCPAddress == "" {
		cfg.TCPAddress = "127.0.0.1:0"
	}
	srv, err := New(Deps{Config: cfg, MetricsRegistry: metric.NewMetricsRegistry()})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background(), h))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.TCPAddr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *recordingHandler, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.connectedIDs()) >= n }, 2*time.Second, 10*time.Millisecond)
	return h.connectedIDs()
}

func TestTCPLinesReachHandler(t *testing.T) {
	h := newRecordingHandler()
	srv := startServer(t, Config{}, h)
	conn := dial(t, srv)

	_, err := conn.Write([]byte("STATUS\r\nLABS;POCT\n"))
	require.NoError(t, err)

	id := waitForClients(t, h, 1)[0]
	assert.Len(t, id, idLength)
	require.Eventually(t, func() bool { return len(h.linesFor(id)) == 2 }, 2*time.Second, 10*time.Millisecond)
	lines := h.linesFor(id)
	assert.Equal(t, "LABS;POCT", lines[1])
	assert.Equal(t, "STATUS", strings.TrimRight(lines[0], "\r"))
}

func TestSendToClientAppendsNewline(t *testing.T) {
	h := newRecordingHandler()
	srv := startServer(t, Config{}, h)
	conn := dial(t, srv)
	id := waitForClients(t, h, 1)[0]

	require.NoError(t, srv.SendToClient(id, "ECG=72.0;mid=m1|"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ECG=72.0;mid=m1|\n", got)
}

func TestSendToUnknownClient(t *testing.T) {
	srv := startServer(t, Config{}, newRecordingHandler())

	err := srv.SendToClient("nobody", "x")
	assert.True(t, errors.Is(err, errors.ErrClientNotFound))
}

func TestSendToAll(t *testing.T) {
	h := newRecordingHandler()
	srv := startServer(t, Config{}, h)
	a := dial(t, srv)
	b := dial(t, srv)
	waitForClients(t, h, 2)

	srv.SendToAll("ACT=START_SIM;mid=m1")

	for _, conn := range []net.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		got, err := bufio.NewReader(conn).ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "ACT=START_SIM;mid=m1\n", got)
	}
}

func TestDisconnectNotifiesHandler(t *testing.T) {
	h := newRecordingHandler()
	srv := startServer(t, Config{}, h)
	conn := dial(t, srv)
	id := waitForClients(t, h, 1)[0]

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return len(h.disconnectedIDs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{id}, h.disconnectedIDs())
	assert.Equal(t, 0, srv.Len())
}

func TestOversizedLineClosesClient(t *testing.T) {
	h := newRecordingHandler()
	srv := startServer(t, Config{MaxLineBytes: 32}, h)
	conn := dial(t, srv)
	waitForClients(t, h, 1)

	_, err := conn.Write([]byte(strings.Repeat("x", 100) + "\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.disconnectedIDs()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerCanReplyDuringRead(t *testing.T) {
	h := newRecordingHandler()
	srv := startServer(t, Config{}, h)
	h.onLine = func(id, line string) {
		_ = srv.SendToClient(id, "echo:"+line)
	}
	conn := dial(t, srv)

	_, err := conn.Write([]byte("ping\n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo:ping\n", got)
}

func TestWebSocketClient(t *testing.T) {
	h := newRecordingHandler()
	srv := startServer(t, Config{WebSocketAddress: "127.0.0.1:0"}, h)

	url := "ws://" + srv.WebSocketAddr() + DefaultWebSocketPath
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("STATUS\n[KEEPALIVE]")))
	id := waitForClients(t, h, 1)[0]
	require.Eventually(t, func() bool { return len(h.linesFor(id)) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"STATUS", "[KEEPALIVE]"}, h.linesFor(id))

	require.NoError(t, srv.SendToClient(id, "STATUS=RUNNING|SCENARIO=NONE|STATE=NONE|"))
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "STATUS=RUNNING|SCENARIO=NONE|STATE=NONE|\n", string(data))
}

func TestStartTwice(t *testing.T) {
	srv := startServer(t, Config{}, newRecordingHandler())

	err := srv.Start(context.Background(), newRecordingHandler())
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))
}

func TestStopClosesClients(t *testing.T) {
	h := newRecordingHandler()
	srv, err := New(Deps{Config: Config{TCPAddress: "127.0.0.1:0"}})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background(), h))
	conn := dial(t, srv)
	waitForClients(t, h, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = bufio.NewReader(conn).ReadString('\n')
	assert.Error(t, err)
	assert.Len(t, h.disconnectedIDs(), 1)
}
