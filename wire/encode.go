package wire

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"
)

// Record markers for structural lines.
const (
	MarkerEventRecord            = "[AMM_EventRecord]"
	MarkerOmittedEvent           = "[AMM_OmittedEvent]"
	MarkerAssessment             = "[AMM_Assessment]"
	MarkerRenderModification     = "[AMM_Render_Modification]"
	MarkerPhysiologyModification = "[AMM_Physiology_Modification]"
	MarkerOperationalDescription = "[AMM_OperationalDescription]"
)

// FormatValue renders a measurement so that it always carries a fractional
// digit: 72 becomes "72.0", 138.5 stays "138.5".
func FormatValue(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// EncodeBase64 encodes b with the URL-safe alphabet.
func EncodeBase64(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

// Value renders a live physiology value or waveform sample.
func Value(name string, v float64, mid string) string {
	return name + "=" + FormatValue(v) + ";mid=" + mid + "|"
}

// PanelValue renders one measurement of a named lab panel.
func PanelValue(name string, v float64, panel, mid string) string {
	return name + "=" + FormatValue(v) + ":" + panel + ";mid=" + mid + "|"
}

// Status renders the reply to a STATUS request.
func Status(state, scenario, stateLabel string) string {
	return "STATUS=" + state + "|SCENARIO=" + scenario + "|STATE=" + stateLabel + "|"
}

// Action renders a broadcast notice.
func Action(action, mid string) string {
	return "ACT=" + action + ";mid=" + mid
}

// Config renders a module configuration push.
func Config(content []byte, mid string) string {
	return "CONFIG=" + EncodeBase64(content) + ";mid=" + mid
}

// EventRecord holds the fields of an [AMM_EventRecord] line.
type EventRecord struct {
	ID              string
	Type            string
	Location        string
	ParticipantID   string
	ParticipantType string
	Data            string
	// Omitted switches the marker to [AMM_OmittedEvent].
	Omitted bool
}

// Encode renders the record for manikin mid.
func (r EventRecord) Encode(mid string) string {
	marker := MarkerEventRecord
	if r.Omitted {
		marker = MarkerOmittedEvent
	}
	var b fieldBuilder
	b.marker(marker)
	b.field("id", r.ID)
	b.field("mid", mid)
	b.field("type", r.Type)
	b.field("location", r.Location)
	b.field("participant_id", r.ParticipantID)
	b.field("participant_type", r.ParticipantType)
	b.field("data", r.Data)
	return b.String() + ";"
}

// Assessment holds the fields of an [AMM_Assessment] line.
type Assessment struct {
	ID            string
	EventID       string
	Type          string
	Location      string
	ParticipantID string
	Value         string
	Comment       string
}

// Encode renders the assessment for manikin mid.
func (a Assessment) Encode(mid string) string {
	var b fieldBuilder
	b.marker(MarkerAssessment)
	b.field("id", a.ID)
	b.field("mid", mid)
	b.field("event_id", a.EventID)
	b.field("type", a.Type)
	b.field("location", a.Location)
	b.field("participant_id", a.ParticipantID)
	b.field("value", a.Value)
	b.field("comment", a.Comment)
	return b.String()
}

// Modification holds the fields shared by render and physiology modification
// lines. Marker selects which of the two is rendered.
type Modification struct {
	Marker        string
	ID            string
	EventID       string
	Type          string
	Location      string
	ParticipantID string
	Payload       string
}

// Encode renders the modification for manikin mid.
func (m Modification) Encode(mid string) string {
	var b fieldBuilder
	b.marker(m.Marker)
	b.field("id", m.ID)
	b.field("mid", mid)
	b.field("event_id", m.EventID)
	b.field("type", m.Type)
	b.field("location", m.Location)
	b.field("participant_id", m.ParticipantID)
	b.field("payload", m.Payload)
	return b.String()
}

// OperationalDescription holds the fields of an
// [AMM_OperationalDescription] line.
type OperationalDescription struct {
	Name                 string
	Description          string
	Manufacturer         string
	Model                string
	SerialNumber         string
	ModuleID             string
	ModuleVersion        string
	ConfigurationVersion string
	AMMVersion           string
	Capabilities         []byte
}

// Encode renders the description for manikin mid. The capabilities document
// is base64 encoded.
func (d OperationalDescription) Encode(mid string) string {
	var b fieldBuilder
	b.marker(MarkerOperationalDescription)
	b.field("name", d.Name)
	b.field("mid", mid)
	b.field("description", d.Description)
	b.field("manufacturer", d.Manufacturer)
	b.field("model", d.Model)
	b.field("serial_number", d.SerialNumber)
	b.field("module_id", d.ModuleID)
	b.field("module_version", d.ModuleVersion)
	b.field("configuration_version", d.ConfigurationVersion)
	b.field("AMM_version", d.AMMVersion)
	b.field("capabilities_configuration", EncodeBase64(d.Capabilities))
	return b.String()
}

type fieldBuilder struct {
	sb     strings.Builder
	fields int
}

func (b *fieldBuilder) marker(m string) {
	b.sb.WriteString(m)
}

func (b *fieldBuilder) field(key, value string) {
	if b.fields > 0 {
		b.sb.WriteByte(';')
	}
	b.sb.WriteString(key)
	b.sb.WriteByte('=')
	b.sb.WriteString(value)
	b.fields++
}

func (b *fieldBuilder) String() string {
	return b.sb.String()
}
