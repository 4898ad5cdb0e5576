package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/capability"
	"github.com/rainerleuschke/tcp-bridge/errors"
	"github.com/rainerleuschke/tcp-bridge/metric"
	"github.com/rainerleuschke/tcp-bridge/registry"
	"github.com/rainerleuschke/tcp-bridge/router"
	"github.com/rainerleuschke/tcp-bridge/simulation"
	"github.com/rainerleuschke/tcp-bridge/store"
)

// Identity announced by the bridge on start.
const (
	DefaultModuleName = "AMM_TCP_Bridge"
	Model             = "TCP Bridge"
	Manufacturer      = "Vcom3D"
	Version           = "1.0.0"
)

// DefaultEventRecordCapacity bounds the event record store when no capacity
// is configured.
const DefaultEventRecordCapacity = 65536

// Config holds the bridge settings.
type Config struct {
	ManikinID  string
	ModuleName string
	// Capabilities is the bridge's own capability document, announced in
	// its operational description.
	Capabilities []byte
	// Configuration is published as a module configuration on start when
	// set.
	Configuration       []byte
	EventRecordCapacity int
}

// Deps holds the bridge's collaborators. ModuleID defaults to a random UUID.
type Deps struct {
	Config          Config
	Publisher       bus.Publisher
	Sender          router.Sender
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
	ModuleID        string
	Now             func() time.Time
}

// Bridge is the gateway context. It owns every store and connects the bus
// handlers and client handlers to them.
type Bridge struct {
	cfg       Config
	moduleID  string
	publisher bus.Publisher
	sender    router.Sender
	logger    *slog.Logger
	now       func() time.Time
	metrics   *bridgeMetrics

	registry   *registry.Registry
	events     *store.EventStore
	labs       *store.LabStore
	settings   *store.SettingsStore
	machine    *simulation.Machine
	negotiator *capability.Negotiator
	router     *router.Router
}

var _ bus.Handlers = (*Bridge)(nil)

type bridgeMetrics struct {
	documentsRejected *prometheus.CounterVec
	topicsDropped     *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) (*bridgeMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &bridgeMetrics{
		documentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Name:      "documents_rejected_total",
			Help:      "Client documents rejected by kind",
		}, []string{"kind"}),
		topicsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Name:      "topic_publications_dropped_total",
			Help:      "Client topic publications not forwarded to the bus",
		}, []string{"topic"}),
	}
	if err := registry.RegisterCounterVec("bridge", "documents_rejected_total", m.documentsRejected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("bridge", "topic_publications_dropped_total", m.topicsDropped); err != nil {
		return nil, err
	}
	return m, nil
}

// New wires a Bridge and its stores.
func New(deps Deps) (*Bridge, error) {
	if deps.Publisher == nil || deps.Sender == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Bridge", "New", "publisher and sender required")
	}

	cfg := deps.Config
	if cfg.ModuleName == "" {
		cfg.ModuleName = DefaultModuleName
	}
	if cfg.EventRecordCapacity <= 0 {
		cfg.EventRecordCapacity = DefaultEventRecordCapacity
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	moduleID := deps.ModuleID
	if moduleID == "" {
		moduleID = uuid.NewString()
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Bridge", "New", "register metrics")
	}

	events, err := store.NewEventStore(cfg.EventRecordCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "Bridge", "New", "create event store")
	}

	b := &Bridge{
		cfg:       cfg,
		moduleID:  moduleID,
		publisher: deps.Publisher,
		sender:    deps.Sender,
		logger:    logger.With("component", "bridge"),
		now:       now,
		metrics:   metrics,
		registry:  registry.New(),
		events:    events,
		labs:      store.NewLabStore(),
		settings:  store.NewSettingsStore(),
	}

	var core *metric.Metrics
	if deps.MetricsRegistry != nil {
		core = deps.MetricsRegistry.CoreMetrics()
	}
	b.machine = simulation.NewMachine(simulation.Deps{
		ManikinID:   cfg.ManikinID,
		Publisher:   deps.Publisher,
		Broadcaster: deps.Sender,
		Labs:        b.labs,
		Logger:      logger,
		Metrics:     core,
		Now:         now,
	})
	b.negotiator = capability.NewNegotiator(capability.Deps{
		Registry:  b.registry,
		Settings:  b.settings,
		Publisher: deps.Publisher,
		ModuleID:  moduleID,
		Logger:    logger,
		Now:       now,
	})
	b.router, err = router.New(router.Deps{
		ManikinID:       cfg.ManikinID,
		Registry:        b.registry,
		Events:          b.events,
		Labs:            b.labs,
		Sender:          deps.Sender,
		Logger:          logger,
		MetricsRegistry: deps.MetricsRegistry,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Bridge", "New", "create router")
	}
	return b, nil
}

// ModuleID returns the id the bridge announces itself with.
func (b *Bridge) ModuleID() string {
	return b.moduleID
}

// Registry exposes the client registry.
func (b *Bridge) Registry() *registry.Registry {
	return b.registry
}

// Status returns the simulation state snapshot.
func (b *Bridge) Status() simulation.Status {
	return b.machine.Status()
}

// Announce publishes the bridge's operational description and, when one is
// configured, its module configuration.
func (b *Bridge) Announce(ctx context.Context) error {
	desc := bus.OperationalDescription{
		Name:               b.cfg.ModuleName,
		Model:              Model,
		Manufacturer:       Manufacturer,
		SerialNumber:       Version,
		ModuleID:           b.moduleID,
		ModuleVersion:      Version,
		CapabilitiesSchema: string(b.cfg.Capabilities),
	}
	if err := b.publisher.Publish(ctx, desc); err != nil {
		return errors.Wrap(err, "Bridge", "Announce", "publish operational description")
	}

	if len(b.cfg.Configuration) > 0 {
		mc := bus.ModuleConfiguration{
			Name:                      b.cfg.ModuleName,
			Timestamp:                 b.now().UnixMilli(),
			CapabilitiesConfiguration: string(b.cfg.Configuration),
		}
		if err := b.publisher.Publish(ctx, mc); err != nil {
			return errors.Wrap(err, "Bridge", "Announce", "publish module configuration")
		}
	}
	b.logger.Info("Bridge announced", "module_id", b.moduleID, "name", b.cfg.ModuleName)
	return nil
}

func (b *Bridge) countRejected(kind string) {
	if b.metrics != nil {
		b.metrics.documentsRejected.WithLabelValues(kind).Inc()
	}
}

func (b *Bridge) countDropped(topic string) {
	if b.metrics != nil {
		b.metrics.topicsDropped.WithLabelValues(topic).Inc()
	}
}
