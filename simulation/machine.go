// Package simulation owns the simulation run state and interprets simulation
// commands issued by clients or other bus modules.
package simulation

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/metric"
	"github.com/rainerleuschke/tcp-bridge/wire"
)

// State is the simulation run state.
type State int

// Run states.
const (
	NotRunning State = iota
	Running
	Paused
)

// String returns the wire representation of s.
func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	default:
		return "NOT RUNNING"
	}
}

var allStates = []string{NotRunning.String(), Running.String(), Paused.String()}

// DefaultLabel is the scenario and state label before anything is loaded.
const DefaultLabel = "NONE"

// System commands, recognized after the [SYS] prefix.
const (
	CommandStart        = "START_SIM"
	CommandStop         = "STOP_SIM"
	CommandPause        = "PAUSE_SIM"
	CommandReset        = "RESET_SIM"
	CommandEnd          = "END_SIMULATION"
	CommandLoadScenario = "LOAD_SCENARIO:"
	CommandLoadState    = "LOAD_STATE:"
)

// Broadcaster sends a line to every connected client.
type Broadcaster interface {
	SendToAll(line string)
}

// LabResetter restores lab values to their defaults.
type LabResetter interface {
	Reset()
}

// Status is a snapshot of the machine.
type Status struct {
	State    State
	Paused   bool
	Scenario string
	Label    string
}

// Deps holds the machine's collaborators. Publisher, Labs and Metrics may be
// nil.
type Deps struct {
	ManikinID   string
	Publisher   bus.Publisher
	Broadcaster Broadcaster
	Labs        LabResetter
	Logger      *slog.Logger
	Metrics     *metric.Metrics
	Now         func() time.Time
}

// Machine tracks run state, the paused flag and the scenario and state
// labels. All methods are safe for concurrent use.
type Machine struct {
	manikinID   string
	publisher   bus.Publisher
	broadcaster Broadcaster
	labs        LabResetter
	logger      *slog.Logger
	metrics     *metric.Metrics
	now         func() time.Time

	mu       sync.RWMutex
	state    State
	paused   bool
	scenario string
	label    string
}

// NewMachine creates a machine in NotRunning with default labels.
func NewMachine(deps Deps) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	m := &Machine{
		manikinID:   deps.ManikinID,
		publisher:   deps.Publisher,
		broadcaster: deps.Broadcaster,
		labs:        deps.Labs,
		logger:      logger.With("component", "simulation"),
		metrics:     deps.Metrics,
		now:         now,
		scenario:    DefaultLabel,
		label:       DefaultLabel,
	}
	m.recordState(NotRunning)
	return m
}

// Status returns the current snapshot.
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{State: m.state, Paused: m.paused, Scenario: m.scenario, Label: m.label}
}

// HandleControl applies a simulation control message from the bus.
func (m *Machine) HandleControl(_ context.Context, msg bus.SimulationControl) {
	switch msg.Type {
	case bus.ControlRun:
		m.transition(Running, false)
		m.logger.Info("Simulation running")
		m.broadcast(CommandStart)
	case bus.ControlHalt:
		m.mu.Lock()
		next := NotRunning
		if m.paused {
			next = Paused
		}
		m.state = next
		m.mu.Unlock()
		m.recordState(next)
		m.logger.Info("Simulation halted", "state", next.String())
		m.broadcast(CommandPause)
	case bus.ControlReset:
		m.transition(NotRunning, false)
		m.resetLabs()
		m.logger.Info("Simulation reset")
		m.broadcast(CommandReset)
	case bus.ControlSave:
		m.logger.Info("Save requested; saving simulations is not supported")
	default:
		m.logger.Warn("Ignoring unknown simulation control", "type", string(msg.Type))
	}
}

// HandleCommand interprets a command message. [SYS] commands change local
// state, publish the matching simulation control, then notify all clients.
// Anything else is relayed to all clients verbatim.
func (m *Machine) HandleCommand(ctx context.Context, message string) {
	value, isSystem := strings.CutPrefix(message, wire.PrefixSystem)
	if !isSystem {
		m.logger.Debug("Relaying command", "message", message)
		m.broadcast(message)
		return
	}

	switch {
	case strings.HasPrefix(value, CommandLoadScenario):
		scenario := strings.TrimSpace(value[len(CommandLoadScenario):])
		m.mu.Lock()
		m.scenario = scenario
		m.mu.Unlock()
		m.logger.Info("Scenario loaded", "scenario", scenario)
		m.broadcast(message)
	case strings.HasPrefix(value, CommandLoadState):
		label := strings.TrimSpace(value[len(CommandLoadState):])
		m.mu.Lock()
		m.label = label
		m.mu.Unlock()
		m.logger.Info("State loaded", "state", label)
		m.broadcast(message)
	case strings.Contains(value, CommandStart):
		m.transition(Running, false)
		m.publishControl(ctx, bus.ControlRun)
		m.broadcast(CommandStart)
	case strings.Contains(value, CommandStop):
		m.transition(NotRunning, false)
		m.publishControl(ctx, bus.ControlHalt)
		m.broadcast(CommandStop)
	case strings.Contains(value, CommandPause):
		m.transition(Paused, true)
		m.publishControl(ctx, bus.ControlHalt)
		m.broadcast(CommandPause)
	case strings.Contains(value, CommandReset):
		m.transition(NotRunning, false)
		m.resetLabs()
		m.publishControl(ctx, bus.ControlReset)
		m.broadcast(CommandReset)
	case strings.Contains(value, CommandEnd):
		// paused is set: a later HALT yields PAUSED.
		m.transition(NotRunning, true)
		m.publishControl(ctx, bus.ControlHalt)
		m.broadcast(CommandEnd + "_SIM")
	default:
		m.logger.Info("Relaying unknown system command", "message", message)
		m.broadcast(message)
	}
}

func (m *Machine) transition(next State, paused bool) {
	m.mu.Lock()
	m.state = next
	m.paused = paused
	m.mu.Unlock()
	m.recordState(next)
}

func (m *Machine) resetLabs() {
	if m.labs != nil {
		m.labs.Reset()
	}
}

func (m *Machine) publishControl(ctx context.Context, t bus.ControlType) {
	if m.publisher == nil {
		return
	}
	msg := bus.SimulationControl{Type: t, Timestamp: m.now().UnixMilli()}
	if err := m.publisher.Publish(ctx, msg); err != nil {
		m.logger.Warn("Failed to publish simulation control", "type", string(t), "error", err)
	}
}

// broadcast sends ACT=<action> to every client.
func (m *Machine) broadcast(action string) {
	if m.broadcaster == nil {
		return
	}
	m.broadcaster.SendToAll(wire.Action(action, m.manikinID))
}

func (m *Machine) recordState(s State) {
	if m.metrics != nil {
		m.metrics.RecordSimulationState(s.String(), allStates)
	}
}
