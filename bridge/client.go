package bridge

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/errors"
	"github.com/rainerleuschke/tcp-bridge/router"
	"github.com/rainerleuschke/tcp-bridge/store"
	"github.com/rainerleuschke/tcp-bridge/wire"
)

// ClientConnected is called by the server when a client connects. A client
// has no session until it sends a capability document.
func (b *Bridge) ClientConnected(id string) {
	b.logger.Info("Client connected", "client", id)
}

// ClientDisconnected forgets the client's session.
func (b *Bridge) ClientDisconnected(id string) {
	removed := b.registry.Remove(id)
	b.logger.Info("Client disconnected", "client", id, "had_session", removed)
}

// HandleLine processes one line received from client id.
func (b *Bridge) HandleLine(ctx context.Context, id, raw string) {
	line := wire.ParseLine(raw)

	switch line.Kind {
	case wire.KindEmpty, wire.KindKeepAlive:
	case wire.KindRequest:
		b.DispatchRequest(id, line.Payload)
	case wire.KindCapability:
		b.handleDocument(ctx, id, line, b.negotiator.HandleCapabilityDocument)
	case wire.KindSettings:
		b.handleDocument(ctx, id, line, b.negotiator.HandleSettingsDocument)
	case wire.KindStatusDocument:
		b.handleDocument(ctx, id, line, b.negotiator.HandleStatusDocument)
	case wire.KindTopic:
		b.handleTopic(ctx, id, line.Topic, line.Payload)
	case wire.KindSystemCommand, wire.KindCommand:
		b.handleCommand(ctx, id, line.Payload)
	}
}

type documentHandler func(ctx context.Context, clientID string, doc []byte) error

func (b *Bridge) handleDocument(ctx context.Context, id string, line wire.Line, apply documentHandler) {
	doc, err := wire.DecodeDocument(line.Payload)
	if err == nil {
		err = apply(ctx, id, doc)
	}
	if err != nil {
		b.countRejected(line.Kind.String())
		b.logger.Warn("Rejected client document", "client", id, "kind", line.Kind.String(), "error", err)
	}
}

func (b *Bridge) handleCommand(ctx context.Context, id, message string) {
	b.logger.Debug("Client command", "client", id, "message", message)
	cmd := bus.Command{Message: message, Timestamp: b.now().UnixMilli()}
	if err := b.publisher.Publish(ctx, cmd); err != nil {
		b.logger.Warn("Failed to publish command", "client", id, "error", err)
	}
	b.machine.HandleCommand(ctx, message)
}

// handleTopic forwards a client's topic publication to the bus when the
// client declared that topic in its capability document.
func (b *Bridge) handleTopic(ctx context.Context, id, topic, payload string) {
	if !b.registry.Publishes(id, topic) {
		b.countDropped(topic)
		b.logger.Debug("Dropping undeclared topic publication", "client", id, "topic", topic)
		return
	}

	msg, err := topicMessage(topic, wire.ParseFields(payload))
	if err != nil {
		b.countDropped(topic)
		b.logger.Debug("Dropping topic publication", "client", id, "topic", topic, "error", err)
		return
	}
	if err := b.publisher.Publish(ctx, msg); err != nil {
		b.logger.Warn("Failed to publish client topic", "client", id, "topic", topic, "error", err)
	}
}

func topicMessage(topic string, f map[string]string) (bus.Message, error) {
	id := f["id"]
	if id == "" {
		id = uuid.NewString()
	}

	switch topic {
	case router.TopicRenderModification:
		return bus.RenderModification{ID: id, EventID: f["event_id"], Type: f["type"], Data: f["payload"]}, nil
	case router.TopicPhysiologyModification:
		return bus.PhysiologyModification{ID: id, EventID: f["event_id"], Type: f["type"], Data: f["payload"]}, nil
	case router.TopicAssessment:
		return bus.Assessment{
			ID:      id,
			EventID: f["event_id"],
			Value:   bus.AssessmentValue(f["value"]),
			Comment: f["comment"],
		}, nil
	case router.TopicEventRecord:
		rec := bus.EventRecord{
			ID:       id,
			Type:     f["type"],
			Location: f["location"],
			AgentID:  f["participant_id"],
			Data:     f["data"],
		}
		if pt := f["participant_type"]; pt != "" {
			if err := rec.AgentType.UnmarshalText([]byte(pt)); err != nil {
				return nil, errors.WrapInvalid(err, "Bridge", "topicMessage", "participant_type")
			}
		}
		return rec, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrUnknownTopic, "Bridge", "topicMessage", topic)
	}
}

// DispatchRequest answers a STATUS or LABS request from client id. Unknown
// panels produce no lines; unknown requests are ignored.
func (b *Bridge) DispatchRequest(id, request string) {
	kind, arg := wire.SplitRequest(request)

	switch kind {
	case wire.RequestStatus:
		st := b.machine.Status()
		b.send(id, wire.Status(st.State.String(), st.Scenario, st.Label))
	case wire.RequestLabs:
		if arg == "" {
			all, _ := b.labs.Panel(store.PanelAll)
			for _, m := range all {
				b.send(id, wire.Value(m.Name, m.Value, b.cfg.ManikinID))
			}
			return
		}
		measurements, ok := b.labs.Panel(arg)
		if !ok {
			b.logger.Debug("Unknown lab panel", "client", id, "panel", arg)
			return
		}
		for _, m := range measurements {
			b.send(id, wire.PanelValue(m.Name, m.Value, arg, b.cfg.ManikinID))
		}
	default:
		b.logger.Debug("Ignoring unknown request", "client", id, "request", strconv.Quote(request))
	}
}

func (b *Bridge) send(id, line string) {
	if err := b.sender.SendToClient(id, line); err != nil {
		b.logger.Debug("Send failed", "client", id, "error", err)
	}
}
