package router_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/metric"
	"github.com/rainerleuschke/tcp-bridge/registry"
	"github.com/rainerleuschke/tcp-bridge/router"
	"github.com/rainerleuschke/tcp-bridge/store"
	fakes "github.com/rainerleuschke/tcp-bridge/testutil"
)

type fixture struct {
	router   *router.Router
	registry *registry.Registry
	events   *store.EventStore
	labs     *store.LabStore
	sender   *fakes.RecordingSender
	metrics  *metric.MetricsRegistry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	events, err := store.NewEventStore(16)
	require.NoError(t, err)

	f := &fixture{
		registry: registry.New(),
		events:   events,
		labs:     store.NewLabStore(),
		sender:   fakes.NewRecordingSender(),
		metrics:  metric.NewMetricsRegistry(),
	}
	f.router, err = router.New(router.Deps{
		ManikinID:       "m1",
		Registry:        f.registry,
		Events:          f.events,
		Labs:            f.labs,
		Sender:          f.sender,
		MetricsRegistry: f.metrics,
	})
	require.NoError(t, err)
	return f
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := router.New(router.Deps{ManikinID: "m1"})
	assert.Error(t, err)
}

func TestPhysiologyValue(t *testing.T) {
	f := newFixture(t)
	f.registry.Replace("c1", "monitor", []string{"ECG"}, nil)
	f.registry.Replace("c2", "other", []string{"SpO2"}, nil)

	f.router.PhysiologyValue(bus.PhysiologyValue{Name: "ECG", Value: 72})

	assert.Equal(t, []string{"ECG=72.0;mid=m1|"}, f.sender.Lines("c1"))
	assert.Empty(t, f.sender.Lines("c2"))
}

func TestPhysiologyValueUpdatesLabs(t *testing.T) {
	f := newFixture(t)

	f.router.PhysiologyValue(bus.PhysiologyValue{Name: "Substance_Sodium", Value: 138.5})

	v, ok := f.labs.Value(store.PanelPOCT, "Substance_Sodium")
	require.True(t, ok)
	assert.Equal(t, 138.5, v)
	assert.Empty(t, f.sender.Recipients())
}

func TestPhysiologyWaveform(t *testing.T) {
	f := newFixture(t)
	f.registry.Replace("c1", "monitor", []string{"HF_ECG"}, nil)
	f.registry.Replace("c2", "monitor", []string{"ECG"}, nil)

	f.router.PhysiologyWaveform(bus.PhysiologyWaveform{Name: "ECG", Value: 0.25})

	assert.Equal(t, []string{"ECG=0.25;mid=m1|"}, f.sender.Lines("c1"))
	assert.Empty(t, f.sender.Lines("c2"))
}

func TestEventRecordStoredAndDelivered(t *testing.T) {
	f := newFixture(t)
	f.registry.Replace("c1", "log", []string{"AMM_EventRecord"}, nil)
	f.registry.Replace("c2", "tourniquet", []string{"TOURNIQUET_APPLIED"}, nil)

	rec := bus.EventRecord{
		ID:        "e1",
		Type:      "TOURNIQUET_APPLIED",
		Location:  "LeftLeg",
		AgentID:   "learner-7",
		AgentType: bus.AgentLearner,
		Data:      "<x/>",
	}
	f.router.EventRecord(rec)

	want := "[AMM_EventRecord]id=e1;mid=m1;type=TOURNIQUET_APPLIED;location=LeftLeg;" +
		"participant_id=learner-7;participant_type=LEARNER;data=<x/>;"
	assert.Equal(t, []string{want}, f.sender.Lines("c1"))
	assert.Equal(t, []string{want}, f.sender.Lines("c2"))

	stored, ok := f.events.Get("e1")
	require.True(t, ok)
	assert.Equal(t, rec, stored)
}

func TestOmittedEvent(t *testing.T) {
	f := newFixture(t)
	f.registry.Replace("c1", "log", []string{"AMM_EventRecord"}, nil)

	f.router.OmittedEvent(bus.OmittedEvent{ID: "e2", Type: "NEEDLE_D", AgentType: bus.AgentInstructor})

	lines := f.sender.Lines("c1")
	require.Len(t, lines, 1)
	assert.Equal(t, "[AMM_OmittedEvent]id=e2;mid=m1;type=NEEDLE_D;location=;participant_id=;participant_type=INSTRUCTOR;data=;", lines[0])

	_, ok := f.events.Get("e2")
	assert.True(t, ok)
}

func TestAssessmentEnrichment(t *testing.T) {
	tests := []struct {
		name    string
		stored  *bus.EventRecord
		subs    []string
		want    string
		reached bool
	}{
		{
			name:    "hit",
			stored:  &bus.EventRecord{ID: "e1", Type: "CPR", Location: "Chest", AgentID: "p1"},
			subs:    []string{"CPR"},
			want:    "[AMM_Assessment]id=a1;mid=m1;event_id=e1;type=CPR;location=Chest;participant_id=p1;value=SUCCESS;comment=ok",
			reached: true,
		},
		{
			name:    "miss",
			subs:    []string{"AMM_Assessment"},
			want:    "[AMM_Assessment]id=a1;mid=m1;event_id=e1;type=;location=;participant_id=;value=SUCCESS;comment=ok",
			reached: true,
		},
		{
			name: "miss does not match by type",
			subs: []string{"CPR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.stored != nil {
				f.events.Put(*tt.stored)
			}
			f.registry.Replace("c1", "grader", tt.subs, nil)

			f.router.Assessment(bus.Assessment{ID: "a1", EventID: "e1", Value: bus.AssessmentSuccess, Comment: "ok"})

			if !tt.reached {
				assert.Empty(t, f.sender.Lines("c1"))
				return
			}
			assert.Equal(t, []string{tt.want}, f.sender.Lines("c1"))
		})
	}
}

func TestRenderModification(t *testing.T) {
	f := newFixture(t)
	f.events.Put(bus.EventRecord{ID: "e1", Location: "Head", AgentID: "p1"})
	f.registry.Replace("label", "render", []string{"AMM_Render_Modification"}, nil)
	f.registry.Replace("typed", "render", []string{"BLOOD"}, nil)

	f.router.RenderModification(bus.RenderModification{ID: "r1", EventID: "e1", Type: "BLOOD", Data: "<d/>"})
	f.router.RenderModification(bus.RenderModification{ID: "r2", EventID: "e1", Type: "BLOOD"})

	want := []string{
		"[AMM_Render_Modification]id=r1;mid=m1;event_id=e1;type=BLOOD;location=Head;participant_id=p1;payload=<d/>",
		"[AMM_Render_Modification]id=r2;mid=m1;event_id=e1;type=;location=Head;participant_id=p1;payload=<RenderModification type='BLOOD'/>",
	}
	assert.Equal(t, want, f.sender.Lines("label"))
	assert.Equal(t, want, f.sender.Lines("typed"))
}

func TestPhysiologyModification(t *testing.T) {
	f := newFixture(t)
	f.registry.Replace("c1", "engine", []string{"AMM_Physiology_Modification"}, nil)
	f.registry.Replace("c2", "engine", []string{"HEMORRHAGE"}, nil)
	f.registry.Replace("c3", "engine", []string{"OTHER"}, nil)

	f.router.PhysiologyModification(bus.PhysiologyModification{ID: "p1", EventID: "missing", Type: "HEMORRHAGE", Data: "rate=5"})

	want := "[AMM_Physiology_Modification]id=p1;mid=m1;event_id=missing;type=HEMORRHAGE;location=;participant_id=;payload=rate=5"
	assert.Equal(t, []string{want}, f.sender.Lines("c1"))
	assert.Equal(t, []string{want}, f.sender.Lines("c2"))
	assert.Empty(t, f.sender.Lines("c3"))
}

func TestOperationalDescription(t *testing.T) {
	f := newFixture(t)
	f.registry.Replace("c1", "admin", []string{"AMM_OperationalDescription"}, nil)

	f.router.OperationalDescription(bus.OperationalDescription{
		Name:               "Pump",
		Manufacturer:       "Acme",
		CapabilitiesSchema: "<a/>",
	})

	lines := f.sender.Lines("c1")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "[AMM_OperationalDescription]name=Pump;mid=m1;")
	assert.Contains(t, lines[0], "manufacturer=Acme;")
	assert.Contains(t, lines[0], "capabilities_configuration=PGEvPg==")
}

func TestModuleConfiguration(t *testing.T) {
	f := newFixture(t)
	f.registry.Replace("c1", "IVPump-v2", nil, nil)
	f.registry.Replace("c2", "Ventilator", nil, nil)

	f.router.ModuleConfiguration(bus.ModuleConfiguration{Name: "IVPump", CapabilitiesConfiguration: "<cfg/>"})

	assert.Equal(t, []string{"CONFIG=PGNmZy8-;mid=m1"}, f.sender.Lines("c1"))
	assert.Empty(t, f.sender.Lines("c2"))
}

func TestSendFailureDoesNotAbortFanOut(t *testing.T) {
	f := newFixture(t)
	f.registry.Replace("a", "monitor", []string{"ECG"}, nil)
	f.registry.Replace("b", "monitor", []string{"ECG"}, nil)
	f.sender.Fail["a"] = true

	f.router.PhysiologyValue(bus.PhysiologyValue{Name: "ECG", Value: 60})

	assert.Equal(t, []string{"b"}, f.sender.Recipients())

	expected := `
# HELP ammbridge_send_errors_total Failed deliveries to clients
# TYPE ammbridge_send_errors_total counter
ammbridge_send_errors_total 1
`
	err := testutil.GatherAndCompare(f.metrics.PrometheusRegistry(), strings.NewReader(expected), "ammbridge_send_errors_total")
	assert.NoError(t, err)
}
