package bridge

import (
	"context"

	"github.com/rainerleuschke/tcp-bridge/bus"
)

// HandlePhysiologyValue implements bus.Handlers.
func (b *Bridge) HandlePhysiologyValue(_ context.Context, msg bus.PhysiologyValue) {
	b.router.PhysiologyValue(msg)
}

// HandlePhysiologyWaveform implements bus.Handlers.
func (b *Bridge) HandlePhysiologyWaveform(_ context.Context, msg bus.PhysiologyWaveform) {
	b.router.PhysiologyWaveform(msg)
}

// HandleCommand runs a bus command through the simulation machine, the same
// path client commands take.
func (b *Bridge) HandleCommand(ctx context.Context, msg bus.Command) {
	b.machine.HandleCommand(ctx, msg.Message)
}

// HandleSimulationControl implements bus.Handlers.
func (b *Bridge) HandleSimulationControl(ctx context.Context, msg bus.SimulationControl) {
	b.machine.HandleControl(ctx, msg)
}

// HandleAssessment implements bus.Handlers.
func (b *Bridge) HandleAssessment(_ context.Context, msg bus.Assessment) {
	b.router.Assessment(msg)
}

// HandleRenderModification implements bus.Handlers.
func (b *Bridge) HandleRenderModification(_ context.Context, msg bus.RenderModification) {
	b.router.RenderModification(msg)
}

// HandlePhysiologyModification implements bus.Handlers.
func (b *Bridge) HandlePhysiologyModification(_ context.Context, msg bus.PhysiologyModification) {
	b.router.PhysiologyModification(msg)
}

// HandleEventRecord implements bus.Handlers.
func (b *Bridge) HandleEventRecord(_ context.Context, msg bus.EventRecord) {
	b.router.EventRecord(msg)
}

// HandleOmittedEvent implements bus.Handlers.
func (b *Bridge) HandleOmittedEvent(_ context.Context, msg bus.OmittedEvent) {
	b.router.OmittedEvent(msg)
}

// HandleOperationalDescription implements bus.Handlers.
func (b *Bridge) HandleOperationalDescription(_ context.Context, msg bus.OperationalDescription) {
	b.router.OperationalDescription(msg)
}

// HandleModuleConfiguration implements bus.Handlers.
func (b *Bridge) HandleModuleConfiguration(_ context.Context, msg bus.ModuleConfiguration) {
	b.router.ModuleConfiguration(msg)
}
