package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// lineWriter writes a single newline-terminated line.
type lineWriter interface {
	writeLine(line string, deadline time.Time) error
	close() error
	remoteAddr() string
}

// client is one connected session. Writes to the underlying connection are
// serialized by writeMu.
type client struct {
	id          string
	transport   string
	connectedAt time.Time
	w           lineWriter

	writeMu   sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *client) send(line string, timeout time.Duration) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.w.writeLine(line, time.Now().Add(timeout))
}

func (c *client) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.w.close()
	})
}

type tcpWriter struct {
	conn net.Conn
}

func (t *tcpWriter) writeLine(line string, deadline time.Time) error {
	_ = t.conn.SetWriteDeadline(deadline)
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := t.conn.Write(buf)
	return err
}

func (t *tcpWriter) close() error      { return t.conn.Close() }
func (t *tcpWriter) remoteAddr() string { return t.conn.RemoteAddr().String() }

type wsWriter struct {
	conn *websocket.Conn
}

// writeLine sends line as one text message. The terminator is kept so
// WebSocket clients see the same bytes as TCP clients.
func (w *wsWriter) writeLine(line string, deadline time.Time) error {
	_ = w.conn.SetWriteDeadline(deadline)
	return w.conn.WriteMessage(websocket.TextMessage, []byte(line+"\n"))
}

func (w *wsWriter) close() error      { return w.conn.Close() }
func (w *wsWriter) remoteAddr() string { return w.conn.RemoteAddr().String() }
