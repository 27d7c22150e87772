package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_RunLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("parley", reg)

	c.RunStarted()
	c.RunStarted()
	c.RunFinished("natural")
	c.RunFinished("max_turns")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsStarted))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.runsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsFinished.WithLabelValues("natural")))
}

func TestCollector_TurnsAndCredits(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("parley", reg)

	c.TurnObserved("openai", "gpt-4o", true, 120*time.Millisecond)
	c.TurnObserved("openai", "gpt-4o", false, 50*time.Millisecond)
	c.CreditsDebited("openai", "gpt-4o", 7)
	c.DebitRefused()
	c.EventEmitted("agent_response")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.turnsTotal.WithLabelValues("openai", "gpt-4o", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.turnsTotal.WithLabelValues("openai", "gpt-4o", "error")))
	assert.Equal(t, float64(7), testutil.ToFloat64(c.creditsDebited.WithLabelValues("openai", "gpt-4o")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.debitsRefused))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.eventsEmitted.WithLabelValues("agent_response")))
}
