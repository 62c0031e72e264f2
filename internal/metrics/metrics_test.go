package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/san-kum/simbridge/internal/state"
)

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	assert.Equal(t, 0.0, m.Value())

	m.Observe(nil, state.Vector{0.5}, 0)
	m.Observe(nil, state.Vector{-1.0}, 0)
	assert.InDelta(t, 0.75, m.Value(), 1e-12)

	m.Reset()
	assert.Equal(t, 0.0, m.Value())
}

func TestStability(t *testing.T) {
	m := NewStability(0, -6, 1)
	assert.Equal(t, 1.0, m.Value())

	m.Observe(state.Vector{-6.5}, nil, 0)
	m.Observe(state.Vector{-8}, nil, 0)
	m.Observe(state.Vector{}, nil, 0)
	m.Observe(state.Vector{-5.2}, nil, 0)
	assert.InDelta(t, 0.5, m.Value(), 1e-12)

	m.SetTarget(-8)
	m.Reset()
	m.Observe(state.Vector{-8}, nil, 0)
	assert.Equal(t, 1.0, m.Value())
}

func TestTotalRewardAndCollect(t *testing.T) {
	ms := []Metric{NewTotalReward(), NewControlEffort()}
	for i := 0; i < 4; i++ {
		for _, m := range ms {
			m.Observe(state.Vector{0}, state.Vector{1}, -2.5)
		}
	}

	values := Collect(ms)
	assert.Equal(t, -10.0, values["total_reward"])
	assert.Equal(t, 1.0, values["control_effort"])

	ResetAll(ms)
	values = Collect(ms)
	assert.Equal(t, 0.0, values["total_reward"])
	assert.False(t, math.IsNaN(values["control_effort"]))
}

func TestBridgeCounters(t *testing.T) {
	b := NewBridge(prometheus.NewRegistry())

	b.ObserveFrame("PLANE_STATE")
	b.ObserveFrame("PLANE_STATE")
	b.ObserveFrame("ACK")
	b.ObserveDecodeError()
	b.ObserveStateUpdate()
	b.ObserveCommand("SET_ELEVATOR", "sent")
	b.ObserveCommand("SET_ELEVATOR", "failed")
	b.ObserveAwaitTimeout()
	b.SetConnected(true)
	b.ObserveStep(20 * time.Millisecond)
	b.ObserveEpisode(-42)

	assert.Equal(t, 2.0, testutil.ToFloat64(b.FramesTotal.WithLabelValues("PLANE_STATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.FramesTotal.WithLabelValues("ACK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.DecodeErrorsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.StateUpdatesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.CommandsTotal.WithLabelValues("SET_ELEVATOR", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.AwaitTimeoutsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.Connected))
	assert.Equal(t, 1, testutil.CollectAndCount(b.StepDurationSeconds))

	b.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Connected))
}

func TestNilBridgeIsNoop(t *testing.T) {
	var b *Bridge
	assert.NotPanics(t, func() {
		b.ObserveFrame("X")
		b.ObserveDecodeError()
		b.ObserveStateUpdate()
		b.ObserveCommand("X", "sent")
		b.SetConnected(true)
		b.ObserveAwaitTimeout()
		b.ObserveStep(time.Second)
		b.ObserveEpisode(1)
	})
}

func TestStabilitySetpointOverridesTarget(t *testing.T) {
	setpoint := -3.0
	m := NewStability(0, -6, 1)
	m.Setpoint = func() float64 { return setpoint }

	m.Observe(state.Vector{-3.2}, nil, 0)
	m.Observe(state.Vector{-6}, nil, 0)
	assert.InDelta(t, 0.5, m.Value(), 1e-12)

	setpoint = -6
	m.Observe(state.Vector{-6}, nil, 0)
	assert.InDelta(t, 2.0/3.0, m.Value(), 1e-12)
}
