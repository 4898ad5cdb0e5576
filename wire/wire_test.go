package wire

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainerleuschke/tcp-bridge/errors"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{72, "72.0"},
		{138.5, "138.5"},
		{0, "0.0"},
		{-3, "-3.0"},
		{7.25, "7.25"},
		{1e21, "1000000000000000000000.0"},
		{math.Inf(1), "+Inf"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestScalarLines(t *testing.T) {
	assert.Equal(t, "ECG=72.0;mid=m1|", Value("ECG", 72, "m1"))
	assert.Equal(t, "Substance_Sodium=138.5:POCT;mid=m1|", PanelValue("Substance_Sodium", 138.5, "POCT", "m1"))
	assert.Equal(t, "STATUS=RUNNING|SCENARIO=NONE|STATE=NONE|", Status("RUNNING", "NONE", "NONE"))
	assert.Equal(t, "ACT=START_SIM;mid=m1", Action("START_SIM", "m1"))
	assert.Equal(t, "CONFIG="+base64.URLEncoding.EncodeToString([]byte("<x/>"))+";mid=m1", Config([]byte("<x/>"), "m1"))
}

func TestEventRecordEncode(t *testing.T) {
	rec := EventRecord{
		ID:              "e1",
		Type:            "Hemorrhage",
		Location:        "LeftLeg",
		ParticipantID:   "p1",
		ParticipantType: "Learner",
		Data:            "severe",
	}
	assert.Equal(t,
		"[AMM_EventRecord]id=e1;mid=m1;type=Hemorrhage;location=LeftLeg;participant_id=p1;participant_type=Learner;data=severe;",
		rec.Encode("m1"))

	rec.Omitted = true
	assert.Equal(t,
		"[AMM_OmittedEvent]id=e1;mid=m1;type=Hemorrhage;location=LeftLeg;participant_id=p1;participant_type=Learner;data=severe;",
		rec.Encode("m1"))
}

func TestAssessmentAndModificationEncode(t *testing.T) {
	a := Assessment{ID: "a1", EventID: "e1", Type: "Tourniquet", Value: "SUCCESS", Comment: "ok"}
	assert.Equal(t,
		"[AMM_Assessment]id=a1;mid=m1;event_id=e1;type=Tourniquet;location=;participant_id=;value=SUCCESS;comment=ok",
		a.Encode("m1"))

	m := Modification{Marker: MarkerPhysiologyModification, ID: "pm1", EventID: "e1", Type: "Bleed", Location: "Arm", ParticipantID: "p1", Payload: "<x/>"}
	assert.Equal(t,
		"[AMM_Physiology_Modification]id=pm1;mid=m1;event_id=e1;type=Bleed;location=Arm;participant_id=p1;payload=<x/>",
		m.Encode("m1"))
}

func TestOperationalDescriptionEncode(t *testing.T) {
	caps := []byte(`<AMMModuleConfiguration><module name="Monitor"/></AMMModuleConfiguration>`)
	d := OperationalDescription{
		Name:          "Monitor",
		Manufacturer:  "Vcom3D",
		Model:         "M1",
		SerialNumber:  "42",
		ModuleID:      "uuid",
		ModuleVersion: "1.0.0",
		Capabilities:  caps,
	}
	line := d.Encode("m1")
	assert.Contains(t, line, "[AMM_OperationalDescription]name=Monitor;mid=m1;description=;manufacturer=Vcom3D;model=M1;serial_number=42;module_id=uuid;module_version=1.0.0;configuration_version=;AMM_version=;capabilities_configuration=")

	fields := ParseFields(line[len(MarkerOperationalDescription):])
	decoded, err := DecodeBase64(fields["capabilities_configuration"])
	require.NoError(t, err)
	assert.Equal(t, caps, decoded)
}

func TestBase64RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("<AMMModuleConfiguration/>"),
		{0x00, 0xfb, 0xff, 0x3e, 0x3f},
		{},
	}
	for _, p := range payloads {
		got, err := DecodeBase64(EncodeBase64(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		kind  Kind
		topic string
		body  string
	}{
		{"empty", "\r\n", KindEmpty, "", ""},
		{"keepalive", "[KEEPALIVE]\n", KindKeepAlive, "", ""},
		{"status request", "STATUS\n", KindRequest, "", "STATUS"},
		{"labs request", "LABS;POCT", KindRequest, "", "LABS;POCT"},
		{"prefixed request", "REQUEST=LABS;ABG", KindRequest, "", "LABS;ABG"},
		{"capability doc", "CAPABILITY=PGE+", KindCapability, "", "PGE+"},
		{"settings doc", "SETTINGS=abc", KindSettings, "", "abc"},
		{"status doc", "STATUS=abc", KindStatusDocument, "", "abc"},
		{"system command", "[SYS]START_SIM", KindSystemCommand, "", "[SYS]START_SIM"},
		{"topic", "[AMM_Render_Modification]type=Cut;payload=x", KindTopic, "AMM_Render_Modification", "type=Cut;payload=x"},
		{"terminated status request", "STATUS|", KindRequest, "", "STATUS|"},
		{"terminated labs request", "LABS|", KindRequest, "", "LABS|"},
		{"terminated labs panel", "LABS;POCT|", KindRequest, "", "LABS;POCT|"},
		{"prefixed terminated request", "REQUEST=STATUS|", KindRequest, "", "STATUS|"},
		{"event record topic", "[AMM_EventRecord]id=e1;type=Cut", KindTopic, "AMM_EventRecord", "id=e1;type=Cut"},
		{"bracketed command", "[VALVE]OPEN", KindCommand, "", "[VALVE]OPEN"},
		{"omitted event is not publishable", "[AMM_OmittedEvent]id=e1", KindCommand, "", "[AMM_OmittedEvent]id=e1"},
		{"opaque", "DO_SOMETHING", KindCommand, "", "DO_SOMETHING"},
		{"unterminated bracket", "[oops", KindCommand, "", "[oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ParseLine(tt.in)
			assert.Equal(t, tt.kind, l.Kind, "kind %s", l.Kind)
			assert.Equal(t, tt.topic, l.Topic)
			assert.Equal(t, tt.body, l.Payload)
		})
	}
}

func TestSplitRequest(t *testing.T) {
	kind, arg := SplitRequest("LABS;POCT")
	assert.Equal(t, "LABS", kind)
	assert.Equal(t, "POCT", arg)

	kind, arg = SplitRequest("STATUS")
	assert.Equal(t, "STATUS", kind)
	assert.Empty(t, arg)

	kind, arg = SplitRequest("STATUS|")
	assert.Equal(t, "STATUS", kind)
	assert.Empty(t, arg)

	kind, arg = SplitRequest("LABS;ABG|")
	assert.Equal(t, "LABS", kind)
	assert.Equal(t, "ABG", arg)
}

func TestIsPublishableTopic(t *testing.T) {
	for _, topic := range []string{"AMM_Render_Modification", "AMM_Physiology_Modification", "AMM_Assessment", "AMM_EventRecord"} {
		assert.True(t, IsPublishableTopic(topic), topic)
	}
	for _, topic := range []string{"", "SYS", "VALVE", "AMM_OperationalDescription"} {
		assert.False(t, IsPublishableTopic(topic), topic)
	}
}

func TestParseFields(t *testing.T) {
	f := ParseFields("id=1;type=Cut;payload=<a b='c'/>;junk;=x|")
	assert.Equal(t, map[string]string{"id": "1", "type": "Cut", "payload": "<a b='c'/>"}, f)
}

func TestDecodeDocument(t *testing.T) {
	doc := `<AMMModuleStatus><module name="Pump"/></AMMModuleStatus>`

	raw, err := DecodeDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, doc, string(raw))

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		got, err := DecodeDocument(enc.EncodeToString([]byte(doc)))
		require.NoError(t, err)
		assert.Equal(t, doc, string(got))
	}

	_, err = DecodeDocument("%%%not base64")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = DecodeDocument("   ")
	assert.Error(t, err)
}
