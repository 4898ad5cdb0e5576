package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rainerleuschke/tcp-bridge/errors"
	"github.com/rainerleuschke/tcp-bridge/metric"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "amm"

// Transport is the subset of the NATS client the bus needs.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Publisher publishes typed messages.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Handlers receives inbound bus messages.
type Handlers interface {
	HandlePhysiologyValue(ctx context.Context, msg PhysiologyValue)
	HandlePhysiologyWaveform(ctx context.Context, msg PhysiologyWaveform)
	HandleCommand(ctx context.Context, msg Command)
	HandleSimulationControl(ctx context.Context, msg SimulationControl)
	HandleAssessment(ctx context.Context, msg Assessment)
	HandleRenderModification(ctx context.Context, msg RenderModification)
	HandlePhysiologyModification(ctx context.Context, msg PhysiologyModification)
	HandleEventRecord(ctx context.Context, msg EventRecord)
	HandleOmittedEvent(ctx context.Context, msg OmittedEvent)
	HandleOperationalDescription(ctx context.Context, msg OperationalDescription)
	HandleModuleConfiguration(ctx context.Context, msg ModuleConfiguration)
}

// Subject returns the subject for message type t under prefix.
func Subject(prefix string, t MessageType) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + string(t)
}

// Deps holds the bus dependencies.
type Deps struct {
	Transport       Transport
	SubjectPrefix   string
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Bus publishes and subscribes typed messages over a Transport.
type Bus struct {
	transport Transport
	prefix    string
	logger    *slog.Logger
	metrics   *busMetrics
}

type busMetrics struct {
	received      *prometheus.CounterVec
	published     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) (*busMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	vec := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "bus",
			Name:      name,
			Help:      help,
		}, []string{"type"})
	}

	m := &busMetrics{
		received:      vec("messages_received_total", "Bus messages received by type"),
		published:     vec("messages_published_total", "Bus messages published by type"),
		publishErrors: vec("publish_errors_total", "Bus publish failures by type"),
		decodeErrors:  vec("decode_errors_total", "Bus messages that failed to decode by type"),
	}
	for name, v := range map[string]*prometheus.CounterVec{
		"messages_received_total":  m.received,
		"messages_published_total": m.published,
		"publish_errors_total":     m.publishErrors,
		"decode_errors_total":      m.decodeErrors,
	} {
		if err := registry.RegisterCounterVec("bus", name, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// New creates a Bus.
func New(deps Deps) (*Bus, error) {
	if deps.Transport == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Bus", "New", "transport required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Bus", "New", "register metrics")
	}
	prefix := deps.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Bus{
		transport: deps.Transport,
		prefix:    prefix,
		logger:    logger.With("component", "bus"),
		metrics:   metrics,
	}, nil
}

// Publish encodes msg as JSON and sends it on its subject.
func (b *Bus) Publish(ctx context.Context, msg Message) error {
	t := msg.MessageType()
	data, err := json.Marshal(msg)
	if err != nil {
		b.countPublishError(t)
		return errors.WrapInvalid(err, "Bus", "Publish", "encode "+string(t))
	}

	if err := b.transport.Publish(ctx, Subject(b.prefix, t), data); err != nil {
		b.countPublishError(t)
		return errors.WrapTransient(err, "Bus", "Publish", "publish "+string(t))
	}

	if b.metrics != nil {
		b.metrics.published.WithLabelValues(string(t)).Inc()
	}
	return nil
}

func (b *Bus) countPublishError(t MessageType) {
	if b.metrics != nil {
		b.metrics.publishErrors.WithLabelValues(string(t)).Inc()
	}
}

// Subscribe wires every inbound subject to the matching method of h.
func (b *Bus) Subscribe(ctx context.Context, h Handlers) error {
	subs := map[MessageType]func(context.Context, []byte){
		TypePhysiologyValue:        decodeInto(b, TypePhysiologyValue, h.HandlePhysiologyValue),
		TypePhysiologyWaveform:     decodeInto(b, TypePhysiologyWaveform, h.HandlePhysiologyWaveform),
		TypeCommand:                decodeInto(b, TypeCommand, h.HandleCommand),
		TypeSimulationControl:      decodeInto(b, TypeSimulationControl, h.HandleSimulationControl),
		TypeAssessment:             decodeInto(b, TypeAssessment, h.HandleAssessment),
		TypeRenderModification:     decodeInto(b, TypeRenderModification, h.HandleRenderModification),
		TypePhysiologyModification: decodeInto(b, TypePhysiologyModification, h.HandlePhysiologyModification),
		TypeEventRecord:            decodeInto(b, TypeEventRecord, h.HandleEventRecord),
		TypeOmittedEvent:           decodeInto(b, TypeOmittedEvent, h.HandleOmittedEvent),
		TypeOperationalDescription: decodeInto(b, TypeOperationalDescription, h.HandleOperationalDescription),
		TypeModuleConfiguration:    decodeInto(b, TypeModuleConfiguration, h.HandleModuleConfiguration),
	}

	for _, t := range AllTypes {
		handler, ok := subs[t]
		if !ok {
			continue
		}
		subject := Subject(b.prefix, t)
		if err := b.transport.Subscribe(ctx, subject, handler); err != nil {
			return errors.WrapTransient(err, "Bus", "Subscribe", "subscribe "+subject)
		}
		b.logger.Debug("Subscribed", "subject", subject)
	}
	return nil
}

func decodeInto[T any](b *Bus, t MessageType, fn func(context.Context, T)) func(context.Context, []byte) {
	return func(ctx context.Context, data []byte) {
		var msg T
		if err := json.Unmarshal(data, &msg); err != nil {
			if b.metrics != nil {
				b.metrics.decodeErrors.WithLabelValues(string(t)).Inc()
			}
			b.logger.Warn("Dropping undecodable bus message", "type", t, "error", err)
			return
		}
		if b.metrics != nil {
			b.metrics.received.WithLabelValues(string(t)).Inc()
		}
		fn(ctx, msg)
	}
}
