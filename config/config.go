package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rainerleuschke/tcp-bridge/errors"
)

// Config represents the complete application configuration
type Config struct {
	Bridge  BridgeConfig  `json:"bridge"`
	NATS    NATSConfig    `json:"nats"`
	Server  ServerConfig  `json:"server"`
	Metrics MetricsConfig `json:"metrics"`
}

// BridgeConfig identifies the manikin the bridge serves and the documents it
// announces itself with.
type BridgeConfig struct {
	ManikinID  string `json:"manikin_id"`
	ModuleName string `json:"module_name,omitempty"`
	// CapabilitiesFile and ConfigurationFile are optional XML documents.
	CapabilitiesFile    string `json:"capabilities_file,omitempty"`
	ConfigurationFile   string `json:"configuration_file,omitempty"`
	EventRecordCapacity int    `json:"event_record_capacity"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	SubjectPrefix string        `json:"subject_prefix,omitempty"`
	Name          string        `json:"name,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`

	// CircuitBreakerThreshold consecutive connect failures open the circuit;
	// its backoff doubles up to CircuitBreakerMaxBackoff.
	CircuitBreakerThreshold  int           `json:"circuit_breaker_threshold,omitempty"`
	CircuitBreakerMaxBackoff time.Duration `json:"circuit_breaker_max_backoff,omitempty"`
	HandlerTimeout           time.Duration `json:"handler_timeout,omitempty"`
}

// ServerConfig defines the client listeners.
type ServerConfig struct {
	TCPAddress       string        `json:"tcp_address"`
	WebSocketAddress string        `json:"websocket_address,omitempty"`
	WebSocketPath    string        `json:"websocket_path,omitempty"`
	WriteTimeout     time.Duration `json:"write_timeout,omitempty"`
	MaxLineBytes     int           `json:"max_line_bytes,omitempty"`
}

// MetricsConfig defines the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Bridge.ManikinID) == "" {
		problems = append(problems, "bridge.manikin_id is required")
	}
	if c.Bridge.EventRecordCapacity < 0 {
		problems = append(problems, "bridge.event_record_capacity cannot be negative")
	}

	if len(c.NATS.URLs) == 0 {
		problems = append(problems, "nats.urls is required")
	}
	for _, u := range c.NATS.URLs {
		if strings.TrimSpace(u) == "" {
			problems = append(problems, "nats.urls contains an empty entry")
			break
		}
	}
	if c.NATS.SubjectPrefix != "" && !isValidNATSSubjectPart(c.NATS.SubjectPrefix) {
		problems = append(problems, fmt.Sprintf("nats.subject_prefix '%s' is not valid for NATS subjects", c.NATS.SubjectPrefix))
	}
	if c.NATS.CircuitBreakerThreshold < 1 {
		problems = append(problems, "nats.circuit_breaker_threshold must be at least 1")
	}
	if c.NATS.CircuitBreakerMaxBackoff < time.Second {
		problems = append(problems, "nats.circuit_breaker_max_backoff must be at least 1s")
	}
	if c.NATS.HandlerTimeout <= 0 {
		problems = append(problems, "nats.handler_timeout must be positive")
	}
	if c.NATS.Token != "" && c.NATS.Username != "" {
		problems = append(problems, "nats.token and nats.username are mutually exclusive")
	}

	if _, _, err := net.SplitHostPort(c.Server.TCPAddress); err != nil {
		problems = append(problems, fmt.Sprintf("server.tcp_address: %v", err))
	}
	if c.Server.WebSocketAddress != "" {
		if _, _, err := net.SplitHostPort(c.Server.WebSocketAddress); err != nil {
			problems = append(problems, fmt.Sprintf("server.websocket_address: %v", err))
		}
		if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
			problems = append(problems, "server.websocket_path must start with '/'")
		}
	}
	if c.Server.MaxLineBytes < 0 {
		problems = append(problems, "server.max_line_bytes cannot be negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		problems = append(problems, fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", strings.Join(problems, "; "))
	}
	return nil
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS subjects.
// Valid characters are alphanumeric, dots, dashes, and underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	clone.NATS.URLs = append([]string(nil), c.NATS.URLs...)
	return &clone
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
