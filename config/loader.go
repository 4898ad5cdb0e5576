package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rainerleuschke/tcp-bridge/errors"
)

// DefaultEnvPrefix prefixes every environment override.
const DefaultEnvPrefix = "AMMBRIDGE"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones key by key.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"Loader", "Load", "load "+path)
		}
		merged, err := mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"Loader", "Load", "merge "+path)
		}
		cfg = merged
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Defaults returns the configuration used before any layer is applied.
func Defaults() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ModuleName:          "AMM_TCP_Bridge",
			EventRecordCapacity: 65536,
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			SubjectPrefix: "amm",
			Name:          "ammbridge",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,

			CircuitBreakerThreshold:  5,
			CircuitBreakerMaxBackoff: time.Minute,
			HandlerTimeout:           30 * time.Second,
		},
		Server: ServerConfig{
			TCPAddress:    ":9015",
			WebSocketPath: "/ws",
			WriteTimeout:  5 * time.Second,
			MaxLineBytes:  1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// loadRaw reads a JSON or YAML layer into a generic map with durations
// converted to nanoseconds.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := checkJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

var durationFields = map[string][]string{
	"nats":   {"reconnect_wait", "circuit_breaker_max_backoff", "handler_timeout"},
	"server": {"write_timeout"},
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) error {
	for section, keys := range durationFields {
		m, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, key, err)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields
// present in the map
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	str := func(key string, dst *string) error {
		val, ok, err := l.env(key)
		if err == nil && ok {
			*dst = val
		}
		return err
	}
	num := func(key string, dst *int) error {
		val, ok, err := l.env(key)
		if err != nil || !ok {
			return err
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return l.envError(key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		val, ok, err := l.env(key)
		if err != nil || !ok {
			return err
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return l.envError(key, err)
		}
		*dst = d
		return nil
	}
	flag := func(key string, dst *bool) error {
		val, ok, err := l.env(key)
		if err != nil || !ok {
			return err
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return l.envError(key, err)
		}
		*dst = b
		return nil
	}

	var urls string
	steps := []error{
		str("MANIKIN_ID", &cfg.Bridge.ManikinID),
		str("MODULE_NAME", &cfg.Bridge.ModuleName),
		str("CAPABILITIES_FILE", &cfg.Bridge.CapabilitiesFile),
		str("CONFIGURATION_FILE", &cfg.Bridge.ConfigurationFile),
		num("EVENT_RECORD_CAPACITY", &cfg.Bridge.EventRecordCapacity),
		str("NATS_URLS", &urls),
		str("NATS_SUBJECT_PREFIX", &cfg.NATS.SubjectPrefix),
		str("NATS_USERNAME", &cfg.NATS.Username),
		str("NATS_PASSWORD", &cfg.NATS.Password),
		str("NATS_TOKEN", &cfg.NATS.Token),
		num("NATS_MAX_RECONNECTS", &cfg.NATS.MaxReconnects),
		dur("NATS_RECONNECT_WAIT", &cfg.NATS.ReconnectWait),
		num("NATS_CIRCUIT_BREAKER_THRESHOLD", &cfg.NATS.CircuitBreakerThreshold),
		dur("NATS_CIRCUIT_BREAKER_MAX_BACKOFF", &cfg.NATS.CircuitBreakerMaxBackoff),
		dur("NATS_HANDLER_TIMEOUT", &cfg.NATS.HandlerTimeout),
		str("TCP_ADDRESS", &cfg.Server.TCPAddress),
		str("WEBSOCKET_ADDRESS", &cfg.Server.WebSocketAddress),
		dur("WRITE_TIMEOUT", &cfg.Server.WriteTimeout),
		num("MAX_LINE_BYTES", &cfg.Server.MaxLineBytes),
		flag("METRICS_ENABLED", &cfg.Metrics.Enabled),
		num("METRICS_PORT", &cfg.Metrics.Port),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	if urls != "" {
		cfg.NATS.URLs = strings.Split(urls, ",")
	}
	return nil
}

func (l *Loader) env(key string) (string, bool, error) {
	name := l.envPrefix + "_" + key
	val, ok := l.lookupEnv(name)
	if !ok || val == "" {
		return "", false, nil
	}
	if err := checkEnvValue(name, val); err != nil {
		return "", false, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "applyEnvOverrides", name)
	}
	return val, true, nil
}

func (l *Loader) envError(key string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
		"Loader", "applyEnvOverrides", l.envPrefix+"_"+key)
}
