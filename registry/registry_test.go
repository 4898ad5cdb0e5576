package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ReplaceAndLookup(t *testing.T) {
	r := New()
	r.Replace("c1", "Monitor", []string{"HF_ECG", "HF_ECG", "Substance_Sodium"}, []string{"AMM_Assessment"})
	r.Replace("c2", "Pump", []string{"Substance_Sodium"}, nil)

	assert.Equal(t, []string{"c1"}, r.Subscribers("HF_ECG"))
	assert.Equal(t, []string{"c1", "c2"}, r.Subscribers("Substance_Sodium"))
	assert.Empty(t, r.Subscribers("HF_SpO2"))

	s, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, []string{"HF_ECG", "Substance_Sodium"}, s.Subscribed)
	assert.Equal(t, []string{"AMM_Assessment"}, s.Published)

	assert.True(t, r.Publishes("c1", "AMM_Assessment"))
	assert.False(t, r.Publishes("c2", "AMM_Assessment"))
	assert.False(t, r.Publishes("nobody", "AMM_Assessment"))
}

func TestRegistry_SubscribersMatchAnyKeyOnce(t *testing.T) {
	r := New()
	r.Replace("c1", "Render", []string{"AMM_Render_Modification", "Cut"}, nil)
	r.Replace("c2", "Render", []string{"Cut"}, nil)

	assert.Equal(t, []string{"c1", "c2"}, r.Subscribers("AMM_Render_Modification", "Cut"))
}

func TestRegistry_ReplaceIsIdempotent(t *testing.T) {
	r := New()
	for i := 0; i < 2; i++ {
		r.Replace("c1", "Monitor", []string{"HF_ECG", "AMM_EventRecord"}, []string{"AMM_Command"})
	}
	s, _ := r.Get("c1")
	assert.Equal(t, []string{"AMM_EventRecord", "HF_ECG"}, s.Subscribed)
	assert.Equal(t, []string{"AMM_Command"}, s.Published)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ReplaceDropsOldTopics(t *testing.T) {
	r := New()
	r.Replace("c1", "Monitor", []string{"HF_ECG"}, nil)
	r.Replace("c1", "Monitor", []string{"HF_SpO2"}, nil)

	assert.Empty(t, r.Subscribers("HF_ECG"))
	assert.Equal(t, []string{"c1"}, r.Subscribers("HF_SpO2"))
}

func TestRegistry_Remove(t *testing.T) {
	r := New()
	r.Replace("c1", "Monitor", []string{"HF_ECG"}, []string{"AMM_Assessment"})

	assert.True(t, r.Remove("c1"))
	assert.False(t, r.Remove("c1"))
	assert.Empty(t, r.Subscribers("HF_ECG"))
	assert.False(t, r.Publishes("c1", "AMM_Assessment"))
	_, ok := r.Get("c1")
	assert.False(t, ok)
}

func TestRegistry_MatchCapability(t *testing.T) {
	r := New()
	r.Replace("c1", "AMM_Vitals_Monitor", nil, nil)
	r.Replace("c2", "Ventilator", nil, nil)
	r.Replace("c3", "", nil, nil)

	assert.Equal(t, []string{"c1"}, r.MatchCapability("Vitals"))
	assert.Equal(t, []string{"c2"}, r.MatchCapability("Ventilator"))
	assert.Empty(t, r.MatchCapability(""))
	assert.Empty(t, r.MatchCapability("Pump"))
}

func TestRegistry_ConcurrentReplaceNeverMixesSets(t *testing.T) {
	r := New()
	setA := []string{"A1", "A2", "A3"}
	setB := []string{"B1", "B2", "B3"}
	r.Replace("c1", "Monitor", setA, nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				r.Replace("c1", "Monitor", setB, nil)
			} else {
				r.Replace("c1", "Monitor", setA, nil)
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		s, ok := r.Get("c1")
		require.True(t, ok)
		joined := fmt.Sprint(s.Subscribed)
		assert.Contains(t, []string{fmt.Sprint(setA), fmt.Sprint(setB)}, joined)
	}
	close(stop)
	wg.Wait()
}
