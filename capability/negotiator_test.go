package capability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/capability"
	"github.com/rainerleuschke/tcp-bridge/errors"
	"github.com/rainerleuschke/tcp-bridge/registry"
	"github.com/rainerleuschke/tcp-bridge/store"
	"github.com/rainerleuschke/tcp-bridge/testutil"
)

const monitorDoc = `<?xml version="1.0" encoding="UTF-8"?>
<AMMModuleConfiguration>
  <module name="Vitals_Monitor" manufacturer="Vcom3D" model="VM-1" serial_number="42" module_version="1.2.0">
    <capabilities>
      <capability name="monitor">
        <starting_settings>
          <setting name="alarm_volume" value="3"/>
          <setting name="mode" value="adult"/>
        </starting_settings>
        <subscribed_topics>
          <topic name="AMM_HighFrequencyNode_Data" nodepath="ECG"/>
          <topic name="AMM_HighFrequencyNode_Data" nodepath="ECG"/>
          <topic name="AMM_Node_Data" nodepath="Substance_Sodium"/>
          <topic name="AMM_EventRecord"/>
        </subscribed_topics>
        <published_topics>
          <topic name="AMM_Assessment"/>
        </published_topics>
      </capability>
      <capability name="printer">
        <published_topics>
          <topic name="AMM_Assessment"/>
          <topic name="AMM_Render_Modification"/>
        </published_topics>
      </capability>
    </capabilities>
  </module>
</AMMModuleConfiguration>`

type fixture struct {
	negotiator *capability.Negotiator
	registry   *registry.Registry
	settings   *store.SettingsStore
	publisher  *testutil.RecordingPublisher
}

func newFixture() *fixture {
	f := &fixture{
		registry:  registry.New(),
		settings:  store.NewSettingsStore(),
		publisher: testutil.NewRecordingPublisher(),
	}
	f.negotiator = capability.NewNegotiator(capability.Deps{
		Registry:  f.registry,
		Settings:  f.settings,
		Publisher: f.publisher,
		ModuleID:  "bridge-uuid",
		Now:       func() time.Time { return time.UnixMilli(5) },
	})
	return f
}

func TestParseCapabilities(t *testing.T) {
	plan, err := capability.ParseCapabilities([]byte(monitorDoc))
	require.NoError(t, err)

	assert.Equal(t, capability.Module{
		Name:          "Vitals_Monitor",
		Manufacturer:  "Vcom3D",
		Model:         "VM-1",
		SerialNumber:  "42",
		ModuleVersion: "1.2.0",
	}, plan.Module)
	assert.Equal(t, []string{"HF_ECG", "Substance_Sodium", "AMM_EventRecord"}, plan.Subscribed)
	assert.Equal(t, []string{"AMM_Assessment", "AMM_Render_Modification"}, plan.Published)
	require.Len(t, plan.Settings, 1)
	assert.Equal(t, "monitor", plan.Settings[0].Capability)
	assert.Equal(t, map[string]string{"alarm_volume": "3", "mode": "adult"}, plan.Settings[0].Values)
}

func TestHandleCapabilityDocument(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.negotiator.HandleCapabilityDocument(context.Background(), "c1", []byte(monitorDoc)))

	s, ok := f.registry.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "Vitals_Monitor", s.CapabilityType)
	assert.Equal(t, []string{"AMM_EventRecord", "HF_ECG", "Substance_Sodium"}, s.Subscribed)
	assert.Equal(t, []string{"AMM_Assessment", "AMM_Render_Modification"}, s.Published)

	snap, ok := f.settings.Snapshot("monitor")
	require.True(t, ok)
	assert.Equal(t, "3", snap["alarm_volume"])

	data := f.publisher.OfType(bus.TypeInstrumentData)
	require.Len(t, data, 1)
	assert.Equal(t, bus.InstrumentData{Instrument: "monitor", Payload: "alarm_volume=3\nmode=adult\n"}, data[0])

	descs := f.publisher.OfType(bus.TypeOperationalDescription)
	require.Len(t, descs, 1)
	desc := descs[0].(bus.OperationalDescription)
	assert.Equal(t, "Vitals_Monitor", desc.Name)
	assert.Equal(t, "VM-1", desc.Model)
	assert.Equal(t, monitorDoc, desc.CapabilitiesSchema)
}

func TestHandleCapabilityDocument_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.negotiator.HandleCapabilityDocument(ctx, "c1", []byte(monitorDoc)))
	first, _ := f.registry.Get("c1")
	require.NoError(t, f.negotiator.HandleCapabilityDocument(ctx, "c1", []byte(monitorDoc)))
	second, _ := f.registry.Get("c1")

	assert.Equal(t, first, second)
}

func TestHandleCapabilityDocument_ReplacesTopics(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.negotiator.HandleCapabilityDocument(ctx, "c1", []byte(monitorDoc)))

	smaller := `<AMMModuleConfiguration><module name="Pump"><capabilities>
	  <capability name="pump"><subscribed_topics><topic name="AMM_Render_Modification"/></subscribed_topics></capability>
	</capabilities></module></AMMModuleConfiguration>`
	require.NoError(t, f.negotiator.HandleCapabilityDocument(ctx, "c1", []byte(smaller)))

	s, _ := f.registry.Get("c1")
	assert.Equal(t, "Pump", s.CapabilityType)
	assert.Equal(t, []string{"AMM_Render_Modification"}, s.Subscribed)
	assert.Empty(t, s.Published)
}

func TestHandleCapabilityDocument_MalformedLeavesStateAlone(t *testing.T) {
	docs := map[string]string{
		"not xml":        "<<<",
		"wrong root":     `<Other><module name="x"/></Other>`,
		"missing module": `<AMMModuleConfiguration><capabilities/></AMMModuleConfiguration>`,
		"unnamed module": `<AMMModuleConfiguration><module><capabilities/></module></AMMModuleConfiguration>`,
		"empty":          "",
	}

	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			require.NoError(t, f.negotiator.HandleCapabilityDocument(ctx, "c1", []byte(monitorDoc)))
			before, _ := f.registry.Get("c1")
			f.publisher.Reset()

			err := f.negotiator.HandleCapabilityDocument(ctx, "c1", []byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrMalformedDocument)
			assert.True(t, errors.IsInvalid(err))

			after, _ := f.registry.Get("c1")
			assert.Equal(t, before, after)
			assert.Empty(t, f.publisher.Messages())
		})
	}
}

func TestHandleSettingsDocument(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.negotiator.HandleCapabilityDocument(ctx, "c1", []byte(monitorDoc)))
	f.publisher.Reset()

	doc := `<AMMModuleConfiguration><module name="Vitals_Monitor"><capabilities>
	  <capability name="monitor"><configuration><setting name="mode" value="pediatric"/></configuration></capability>
	  <capability name="printer"/>
	  <capability name="ventilator"><configuration><setting name="rate" value="12"/></configuration></capability>
	</capabilities></module></AMMModuleConfiguration>`
	require.NoError(t, f.negotiator.HandleSettingsDocument(ctx, "c1", []byte(doc)))

	msgs := f.publisher.OfType(bus.TypeInstrumentData)
	require.Len(t, msgs, 2)
	assert.Equal(t, bus.InstrumentData{Instrument: "monitor", Payload: "alarm_volume=3\nmode=pediatric\n"}, msgs[0])
	assert.Equal(t, bus.InstrumentData{Instrument: "ventilator", Payload: "rate=12\n"}, msgs[1])

	err := f.negotiator.HandleSettingsDocument(ctx, "c1", []byte(`<AMMModuleStatus/>`))
	assert.ErrorIs(t, err, errors.ErrMalformedDocument)
}

func TestHandleStatusDocument(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want bus.StatusValue
	}{
		{"operational", `<AMMModuleStatus><module name="Pump"/></AMMModuleStatus>`, bus.StatusOperational},
		{"halting", `<AMMModuleStatus><module name="Pump"><status>HALTING_ERROR</status></module></AMMModuleStatus>`, bus.StatusInoperative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			require.NoError(t, f.negotiator.HandleStatusDocument(context.Background(), "c1", []byte(tt.doc)))

			msgs := f.publisher.OfType(bus.TypeStatus)
			require.Len(t, msgs, 1)
			assert.Equal(t, bus.Status{
				ModuleID:   "bridge-uuid",
				ModuleName: "Pump",
				Capability: "Pump",
				Value:      tt.want,
				Timestamp:  5,
			}, msgs[0])
		})
	}
}

func TestHandleStatusDocument_Malformed(t *testing.T) {
	f := newFixture()
	err := f.negotiator.HandleStatusDocument(context.Background(), "c1", []byte(`<AMMModuleStatus/>`))
	assert.ErrorIs(t, err, errors.ErrMalformedDocument)
	assert.Empty(t, f.publisher.Messages())
}
