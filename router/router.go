package router

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/errors"
	"github.com/rainerleuschke/tcp-bridge/metric"
	"github.com/rainerleuschke/tcp-bridge/registry"
	"github.com/rainerleuschke/tcp-bridge/store"
	"github.com/rainerleuschke/tcp-bridge/wire"
)

// Fixed topic labels. A client subscribed to the label receives every event
// of that kind regardless of the event's own type.
const (
	TopicAssessment             = "AMM_Assessment"
	TopicRenderModification     = "AMM_Render_Modification"
	TopicPhysiologyModification = "AMM_Physiology_Modification"
	TopicEventRecord            = "AMM_EventRecord"
	TopicOperationalDescription = "AMM_OperationalDescription"
)

// WaveformPrefix prefixes waveform topic keys. The emitted line uses the bare
// name.
const WaveformPrefix = "HF_"

// Sender delivers lines to connected clients.
type Sender interface {
	SendToClient(id, line string) error
	SendToAll(line string)
}

// Deps holds the router's collaborators. MetricsRegistry may be nil.
type Deps struct {
	ManikinID       string
	Registry        *registry.Registry
	Events          *store.EventStore
	Labs            *store.LabStore
	Sender          Sender
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Router fans bus events out to subscribed clients.
type Router struct {
	mid      string
	registry *registry.Registry
	events   *store.EventStore
	labs     *store.LabStore
	sender   Sender
	logger   *slog.Logger
	metrics  *routerMetrics
}

type routerMetrics struct {
	linesSent  *prometheus.CounterVec
	sendErrors prometheus.Counter
}

func newMetrics(registry *metric.MetricsRegistry) (*routerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &routerMetrics{
		linesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Name:      "lines_sent_total",
			Help:      "Lines delivered to clients by event kind",
		}, []string{"kind"}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Name:      "send_errors_total",
			Help:      "Failed deliveries to clients",
		}),
	}
	if err := registry.RegisterCounterVec("router", "lines_sent_total", m.linesSent); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("router", "send_errors_total", m.sendErrors); err != nil {
		return nil, err
	}
	return m, nil
}

// New creates a Router.
func New(deps Deps) (*Router, error) {
	if deps.Registry == nil || deps.Events == nil || deps.Labs == nil || deps.Sender == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Router", "New", "check dependencies")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "Router", "New", "register metrics")
	}
	return &Router{
		mid:      deps.ManikinID,
		registry: deps.Registry,
		events:   deps.Events,
		labs:     deps.Labs,
		sender:   deps.Sender,
		logger:   logger.With("component", "router"),
		metrics:  metrics,
	}, nil
}

// PhysiologyValue records v in every lab panel declaring it, then delivers it
// to clients subscribed to its name.
func (r *Router) PhysiologyValue(v bus.PhysiologyValue) {
	r.labs.Update(v.Name, v.Value)
	r.fanOut("physiology_value", wire.Value(v.Name, v.Value, r.mid), v.Name)
}

// PhysiologyWaveform delivers w to clients subscribed to HF_<name>.
func (r *Router) PhysiologyWaveform(w bus.PhysiologyWaveform) {
	r.fanOut("physiology_waveform", wire.Value(w.Name, w.Value, r.mid), WaveformPrefix+w.Name)
}

// Assessment delivers a, typed by the event record it references.
func (r *Router) Assessment(a bus.Assessment) {
	ref, _ := r.events.Get(a.EventID)
	line := wire.Assessment{
		ID:            a.ID,
		EventID:       a.EventID,
		Type:          ref.Type,
		Location:      ref.Location,
		ParticipantID: ref.AgentID,
		Value:         string(a.Value),
		Comment:       a.Comment,
	}.Encode(r.mid)
	r.fanOut("assessment", line, TopicAssessment, ref.Type)
}

// RenderModification delivers m. A modification without data is sent as a
// synthesized element naming its type, with the type field left blank.
func (r *Router) RenderModification(m bus.RenderModification) {
	ref, _ := r.events.Get(m.EventID)
	typ, payload := m.Type, m.Data
	if payload == "" {
		payload = "<RenderModification type='" + m.Type + "'/>"
		typ = ""
	}
	line := wire.Modification{
		Marker:        wire.MarkerRenderModification,
		ID:            m.ID,
		EventID:       m.EventID,
		Type:          typ,
		Location:      ref.Location,
		ParticipantID: ref.AgentID,
		Payload:       payload,
	}.Encode(r.mid)
	r.fanOut("render_modification", line, TopicRenderModification, m.Type)
}

// PhysiologyModification delivers m enriched from its event record.
func (r *Router) PhysiologyModification(m bus.PhysiologyModification) {
	ref, _ := r.events.Get(m.EventID)
	line := wire.Modification{
		Marker:        wire.MarkerPhysiologyModification,
		ID:            m.ID,
		EventID:       m.EventID,
		Type:          m.Type,
		Location:      ref.Location,
		ParticipantID: ref.AgentID,
		Payload:       m.Data,
	}.Encode(r.mid)
	r.fanOut("physiology_modification", line, TopicPhysiologyModification, m.Type)
}

// EventRecord stores rec for later enrichment and delivers it.
func (r *Router) EventRecord(rec bus.EventRecord) {
	r.events.Put(rec)
	r.fanOut("event_record", eventLine(rec, false).Encode(r.mid), TopicEventRecord, rec.Type)
}

// OmittedEvent stores o as an event record and delivers it with the omitted
// marker to event record subscribers.
func (r *Router) OmittedEvent(o bus.OmittedEvent) {
	rec := bus.EventRecord(o)
	r.events.Put(rec)
	r.fanOut("omitted_event", eventLine(rec, true).Encode(r.mid), TopicEventRecord, rec.Type)
}

// OperationalDescription delivers d to clients subscribed to module
// announcements.
func (r *Router) OperationalDescription(d bus.OperationalDescription) {
	line := wire.OperationalDescription{
		Name:                 d.Name,
		Description:          d.Description,
		Manufacturer:         d.Manufacturer,
		Model:                d.Model,
		SerialNumber:         d.SerialNumber,
		ModuleID:             d.ModuleID,
		ModuleVersion:        d.ModuleVersion,
		ConfigurationVersion: d.ConfigurationVersion,
		AMMVersion:           d.AMMVersion,
		Capabilities:         []byte(d.CapabilitiesSchema),
	}.Encode(r.mid)
	r.fanOut("operational_description", line, TopicOperationalDescription)
}

// ModuleConfiguration pushes mc to clients whose capability type contains
// the configuration's module name.
func (r *Router) ModuleConfiguration(mc bus.ModuleConfiguration) {
	ids := r.registry.MatchCapability(mc.Name)
	r.deliver("module_configuration", wire.Config([]byte(mc.CapabilitiesConfiguration), r.mid), ids)
}

func eventLine(rec bus.EventRecord, omitted bool) wire.EventRecord {
	return wire.EventRecord{
		ID:              rec.ID,
		Type:            rec.Type,
		Location:        rec.Location,
		ParticipantID:   rec.AgentID,
		ParticipantType: rec.AgentType.String(),
		Data:            rec.Data,
		Omitted:         omitted,
	}
}

// fanOut delivers line to every client subscribed to any non-empty key.
func (r *Router) fanOut(kind, line string, keys ...string) {
	nonEmpty := keys[:0:0]
	for _, k := range keys {
		if k != "" {
			nonEmpty = append(nonEmpty, k)
		}
	}
	if len(nonEmpty) == 0 {
		return
	}
	r.deliver(kind, line, r.registry.Subscribers(nonEmpty...))
}

// deliver sends line to ids outside any registry lock. A failed send is
// counted and skipped.
func (r *Router) deliver(kind, line string, ids []string) {
	for _, id := range ids {
		if err := r.sender.SendToClient(id, line); err != nil {
			r.logger.Debug("Send failed", "client", id, "kind", kind, "error", err)
			if r.metrics != nil {
				r.metrics.sendErrors.Inc()
			}
			continue
		}
		if r.metrics != nil {
			r.metrics.linesSent.WithLabelValues(kind).Inc()
		}
	}
}
