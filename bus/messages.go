package bus

import (
	"fmt"
	"strings"
)

// MessageType names a kind of bus message.
type MessageType string

// Bus message kinds.
const (
	TypePhysiologyValue        MessageType = "physiology_value"
	TypePhysiologyWaveform     MessageType = "physiology_waveform"
	TypeCommand                MessageType = "command"
	TypeSimulationControl      MessageType = "simulation_control"
	TypeAssessment             MessageType = "assessment"
	TypeRenderModification     MessageType = "render_modification"
	TypePhysiologyModification MessageType = "physiology_modification"
	TypeEventRecord            MessageType = "event_record"
	TypeOmittedEvent           MessageType = "omitted_event"
	TypeOperationalDescription MessageType = "operational_description"
	TypeModuleConfiguration    MessageType = "module_configuration"
	TypeStatus                 MessageType = "status"
	TypeInstrumentData         MessageType = "instrument_data"
)

// AllTypes lists every message kind in subscription order.
var AllTypes = []MessageType{
	TypePhysiologyValue,
	TypePhysiologyWaveform,
	TypeCommand,
	TypeSimulationControl,
	TypeAssessment,
	TypeRenderModification,
	TypePhysiologyModification,
	TypeEventRecord,
	TypeOmittedEvent,
	TypeOperationalDescription,
	TypeModuleConfiguration,
	TypeStatus,
	TypeInstrumentData,
}

// Message is implemented by every bus payload.
type Message interface {
	MessageType() MessageType
}

// PhysiologyValue is a sampled physiology measurement.
type PhysiologyValue struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// PhysiologyWaveform is a high-frequency physiology sample.
type PhysiologyWaveform struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// Command carries a free-form command string.
type Command struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ControlType is a simulation control action.
type ControlType string

// Simulation control actions.
const (
	ControlRun   ControlType = "RUN"
	ControlHalt  ControlType = "HALT"
	ControlReset ControlType = "RESET"
	ControlSave  ControlType = "SAVE"
)

// SimulationControl drives the simulation run state.
type SimulationControl struct {
	Type      ControlType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// AssessmentValue is the outcome of an assessment.
type AssessmentValue string

// Assessment outcomes.
const (
	AssessmentSuccess AssessmentValue = "SUCCESS"
	AssessmentFailure AssessmentValue = "FAILURE"
	AssessmentPartial AssessmentValue = "PARTIAL"
	AssessmentOmitted AssessmentValue = "OMITTED"
)

// Assessment grades a learner action referenced by EventID.
type Assessment struct {
	ID      string          `json:"id"`
	EventID string          `json:"event_id"`
	Value   AssessmentValue `json:"value"`
	Comment string          `json:"comment,omitempty"`
}

// RenderModification asks render modules to change what they display.
type RenderModification struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
}

// PhysiologyModification asks the physiology engine to apply a change.
type PhysiologyModification struct {
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
}

// AgentType identifies who caused an event.
type AgentType int

// Event agent types.
const (
	AgentUnknown AgentType = iota
	AgentLearner
	AgentInstructor
	AgentSimulation
	AgentModule
)

var agentTypeNames = []string{"UNKNOWN", "LEARNER", "INSTRUCTOR", "SIMULATION", "MODULE"}

// String returns the display name used on the wire.
func (a AgentType) String() string {
	if a < 0 || int(a) >= len(agentTypeNames) {
		return agentTypeNames[AgentUnknown]
	}
	return agentTypeNames[a]
}

// MarshalText encodes the agent type by name.
func (a AgentType) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts the display name in any case.
func (a *AgentType) UnmarshalText(b []byte) error {
	name := strings.ToUpper(strings.TrimSpace(string(b)))
	if name == "" {
		*a = AgentUnknown
		return nil
	}
	for i, n := range agentTypeNames {
		if n == name {
			*a = AgentType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown agent type %q", string(b))
}

// EventRecord describes something that happened during the simulation.
// Other messages reference it by ID.
type EventRecord struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Location  string    `json:"location,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	AgentType AgentType `json:"agent_type"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Data      string    `json:"data,omitempty"`
}

// OmittedEvent records an expected action that did not happen. It has the
// same shape as EventRecord.
type OmittedEvent EventRecord

// OperationalDescription announces a module and its capabilities.
type OperationalDescription struct {
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	Manufacturer         string `json:"manufacturer,omitempty"`
	Model                string `json:"model,omitempty"`
	SerialNumber         string `json:"serial_number,omitempty"`
	ModuleID             string `json:"module_id,omitempty"`
	ModuleVersion        string `json:"module_version,omitempty"`
	ConfigurationVersion string `json:"configuration_version,omitempty"`
	AMMVersion           string `json:"amm_version,omitempty"`
	CapabilitiesSchema   string `json:"capabilities_schema,omitempty"`
}

// ModuleConfiguration pushes a configuration document to modules whose name
// matches Name.
type ModuleConfiguration struct {
	Name                      string `json:"name"`
	Timestamp                 int64  `json:"timestamp,omitempty"`
	CapabilitiesConfiguration string `json:"capabilities_configuration"`
}

// StatusValue is a module's operational status.
type StatusValue string

// Module status values.
const (
	StatusOperational StatusValue = "OPERATIONAL"
	StatusInoperative StatusValue = "INOPERATIVE"
)

// Status reports a module's operational status.
type Status struct {
	ModuleID   string      `json:"module_id,omitempty"`
	ModuleName string      `json:"module_name"`
	Capability string      `json:"capability,omitempty"`
	Value      StatusValue `json:"value"`
	Message    string      `json:"message,omitempty"`
	Timestamp  int64       `json:"timestamp,omitempty"`
}

// InstrumentData publishes an equipment settings snapshot.
type InstrumentData struct {
	Instrument string `json:"instrument"`
	Payload    string `json:"payload"`
}

func (PhysiologyValue) MessageType() MessageType        { return TypePhysiologyValue }
func (PhysiologyWaveform) MessageType() MessageType     { return TypePhysiologyWaveform }
func (Command) MessageType() MessageType                { return TypeCommand }
func (SimulationControl) MessageType() MessageType      { return TypeSimulationControl }
func (Assessment) MessageType() MessageType             { return TypeAssessment }
func (RenderModification) MessageType() MessageType     { return TypeRenderModification }
func (PhysiologyModification) MessageType() MessageType { return TypePhysiologyModification }
func (EventRecord) MessageType() MessageType            { return TypeEventRecord }
func (OmittedEvent) MessageType() MessageType           { return TypeOmittedEvent }
func (OperationalDescription) MessageType() MessageType { return TypeOperationalDescription }
func (ModuleConfiguration) MessageType() MessageType    { return TypeModuleConfiguration }
func (Status) MessageType() MessageType                 { return TypeStatus }
func (InstrumentData) MessageType() MessageType         { return TypeInstrumentData }
