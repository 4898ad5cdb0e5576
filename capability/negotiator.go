// Package capability applies the capability, settings and status documents
// that equipment modules send after connecting.
package capability

import (
	"context"
	"log/slog"
	"time"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/registry"
	"github.com/rainerleuschke/tcp-bridge/store"
)

// Deps holds the negotiator's collaborators.
type Deps struct {
	Registry  *registry.Registry
	Settings  *store.SettingsStore
	Publisher bus.Publisher
	// ModuleID identifies the bridge in published status messages.
	ModuleID string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Negotiator turns documents into registry, settings and bus updates. A
// document is fully parsed and validated before anything is changed.
type Negotiator struct {
	registry  *registry.Registry
	settings  *store.SettingsStore
	publisher bus.Publisher
	moduleID  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewNegotiator creates a Negotiator.
func NewNegotiator(deps Deps) *Negotiator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Negotiator{
		registry:  deps.Registry,
		settings:  deps.Settings,
		publisher: deps.Publisher,
		moduleID:  deps.ModuleID,
		logger:    logger.With("component", "capability"),
		now:       now,
	}
}

// HandleCapabilityDocument registers clientID as the module described by doc,
// replacing any earlier registration, merges starting settings and announces
// the module on the bus.
func (n *Negotiator) HandleCapabilityDocument(ctx context.Context, clientID string, doc []byte) error {
	plan, err := ParseCapabilities(doc)
	if err != nil {
		return err
	}

	n.registry.Replace(clientID, plan.Module.Name, plan.Subscribed, plan.Published)
	n.logger.Info("Client registered",
		"client", clientID,
		"module", plan.Module.Name,
		"subscribed", len(plan.Subscribed),
		"published", len(plan.Published))

	for _, s := range plan.Settings {
		n.mergeAndPublish(ctx, s)
	}

	n.publish(ctx, bus.OperationalDescription{
		Name:               plan.Module.Name,
		Manufacturer:       plan.Module.Manufacturer,
		Model:              plan.Module.Model,
		SerialNumber:       plan.Module.SerialNumber,
		ModuleVersion:      plan.Module.ModuleVersion,
		CapabilitiesSchema: plan.Raw,
	})
	return nil
}

// HandleSettingsDocument merges every configuration block of doc and
// republishes each affected capability.
func (n *Negotiator) HandleSettingsDocument(ctx context.Context, clientID string, doc []byte) error {
	module, blocks, err := ParseSettings(doc)
	if err != nil {
		return err
	}

	n.logger.Debug("Settings received", "client", clientID, "module", module.Name, "capabilities", len(blocks))
	for _, s := range blocks {
		n.mergeAndPublish(ctx, s)
	}
	return nil
}

// HandleStatusDocument publishes the module status carried by doc.
func (n *Negotiator) HandleStatusDocument(ctx context.Context, clientID string, doc []byte) error {
	report, err := ParseStatus(doc)
	if err != nil {
		return err
	}

	n.logger.Info("Module status", "client", clientID, "module", report.Module, "value", string(report.Value))
	n.publish(ctx, bus.Status{
		ModuleID:   n.moduleID,
		ModuleName: report.Module,
		Capability: report.Module,
		Value:      report.Value,
		Timestamp:  n.now().UnixMilli(),
	})
	return nil
}

func (n *Negotiator) mergeAndPublish(ctx context.Context, s Settings) {
	snapshot := n.settings.Merge(s.Capability, s.Values)
	n.logger.Debug("Publishing equipment settings", "capability", s.Capability, "settings", len(snapshot))
	n.publish(ctx, bus.InstrumentData{
		Instrument: s.Capability,
		Payload:    store.Payload(snapshot),
	})
}

func (n *Negotiator) publish(ctx context.Context, msg bus.Message) {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, msg); err != nil {
		n.logger.Warn("Failed to publish", "type", string(msg.MessageType()), "error", err)
	}
}
