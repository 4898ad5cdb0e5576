package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Logger receives the client's connection lifecycle messages.
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// SlogLogger adapts a *slog.Logger to Logger. A nil L uses slog.Default.
type SlogLogger struct {
	L *slog.Logger
}

func (s SlogLogger) logger() *slog.Logger {
	if s.L == nil {
		return slog.Default()
	}
	return s.L
}

// Printf logs at info level.
func (s SlogLogger) Printf(format string, v ...any) {
	s.logger().Info(fmt.Sprintf(format, v...))
}

// Errorf logs at error level.
func (s SlogLogger) Errorf(format string, v ...any) {
	s.logger().Error(fmt.Sprintf(format, v...))
}

// Debugf logs at debug level. Formatting is skipped when debug is off.
func (s SlogLogger) Debugf(format string, v ...any) {
	l := s.logger()
	if l.Enabled(context.Background(), slog.LevelDebug) {
		l.Debug(fmt.Sprintf(format, v...))
	}
}

// ClientOption configures a Client in NewClient.
type ClientOption func(*Client) error

// WithLogger replaces the slog.Default based logger.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithMaxReconnects bounds automatic reconnects after a drop. -1 retries
// forever, 0 disables reconnecting.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnect attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("reconnect wait must not be negative: %v", d)
		}
		c.reconnectWait = d
		return nil
	}
}

// WithCircuitBreaker opens the circuit after threshold consecutive connect
// failures. The backoff doubles each time the circuit re-opens, up to
// maxBackoff.
func WithCircuitBreaker(threshold int32, maxBackoff time.Duration) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			return fmt.Errorf("circuit breaker threshold must be at least 1: %d", threshold)
		}
		if maxBackoff < time.Second {
			return fmt.Errorf("circuit breaker max backoff below 1s: %v", maxBackoff)
		}
		c.circuitThreshold = threshold
		c.maxBackoff = maxBackoff
		return nil
	}
}

// WithCredentials authenticates with a user and password.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken authenticates with a bearer token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithName is the connection name shown by the NATS server monitor.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithTimeout bounds the initial dial.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// WithHandlerTimeout bounds the context given to each subscription handler.
func WithHandlerTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("handler timeout must be positive: %v", d)
		}
		c.handlerTimeout = d
		return nil
	}
}

// WithDisconnectCallback is called with the cause whenever the connection
// drops.
func WithDisconnectCallback(fn func(error)) ClientOption {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}

// WithReconnectCallback is called after each successful reconnect.
func WithReconnectCallback(fn func()) ClientOption {
	return func(c *Client) error {
		c.onReconnect = fn
		return nil
	}
}

// WithNoEcho keeps the server from delivering this connection's own
// publications to its subscriptions. The bridge uses it so its own publishes
// are not routed back to clients.
func WithNoEcho() ClientOption {
	return func(c *Client) error {
		c.noEcho = true
		return nil
	}
}
