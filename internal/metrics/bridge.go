package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "simbridge"
	bridgeSubsystem  = "bridge"
	loopSubsystem    = "control_loop"
)

// Bridge holds the Prometheus metrics for the telemetry/control bridge.
//
// A nil *Bridge is valid; every method on it is a no-op, so components can
// run without metrics.
type Bridge struct {
	// FramesTotal counts decoded inbound frames.
	// Labels: type (PLANE_STATE, ...)
	FramesTotal *prometheus.CounterVec

	// DecodeErrorsTotal counts frames dropped by the codec.
	DecodeErrorsTotal prometheus.Counter

	// StateUpdatesTotal counts documents handed to the cache.
	StateUpdatesTotal prometheus.Counter

	// CommandsTotal counts outbound commands.
	// Labels: type, status (sent, failed, not_connected)
	CommandsTotal *prometheus.CounterVec

	// Connected is 1 while the socket is up.
	Connected prometheus.Gauge

	// AwaitTimeoutsTotal counts waits that saw no fresh telemetry.
	AwaitTimeoutsTotal prometheus.Counter

	// StepDurationSeconds measures one control-loop step.
	StepDurationSeconds prometheus.Histogram

	// EpisodeReward records the total reward of finished episodes.
	EpisodeReward prometheus.Histogram
}

// NewBridge creates and registers the bridge metrics with reg. Use a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewBridge(reg prometheus.Registerer) *Bridge {
	f := promauto.With(reg)
	return &Bridge{
		FramesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: bridgeSubsystem,
				Name:      "frames_total",
				Help:      "Inbound frames decoded by type",
			},
			[]string{"type"},
		),
		DecodeErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: bridgeSubsystem,
			Name:      "decode_errors_total",
			Help:      "Inbound frames that failed to decode",
		}),
		StateUpdatesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: bridgeSubsystem,
			Name:      "state_updates_total",
			Help:      "State documents stored in the cache",
		}),
		CommandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: bridgeSubsystem,
				Name:      "commands_total",
				Help:      "Outbound commands by type and status",
			},
			[]string{"type", "status"},
		),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: bridgeSubsystem,
			Name:      "connected",
			Help:      "1 while the simulator socket is connected",
		}),
		AwaitTimeoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: loopSubsystem,
			Name:      "await_timeouts_total",
			Help:      "Waits for fresh telemetry that timed out",
		}),
		StepDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: loopSubsystem,
			Name:      "step_duration_seconds",
			Help:      "Duration of one control-loop step",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		EpisodeReward: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: loopSubsystem,
			Name:      "episode_reward",
			Help:      "Total reward per finished episode",
			Buckets:   []float64{-5000, -1000, -500, -100, -50, -10, -1, 0},
		}),
	}
}

func (b *Bridge) ObserveFrame(msgType string) {
	if b == nil {
		return
	}
	b.FramesTotal.WithLabelValues(msgType).Inc()
}

func (b *Bridge) ObserveDecodeError() {
	if b == nil {
		return
	}
	b.DecodeErrorsTotal.Inc()
}

func (b *Bridge) ObserveStateUpdate() {
	if b == nil {
		return
	}
	b.StateUpdatesTotal.Inc()
}

func (b *Bridge) ObserveCommand(msgType, status string) {
	if b == nil {
		return
	}
	b.CommandsTotal.WithLabelValues(msgType, status).Inc()
}

func (b *Bridge) SetConnected(up bool) {
	if b == nil {
		return
	}
	if up {
		b.Connected.Set(1)
	} else {
		b.Connected.Set(0)
	}
}

func (b *Bridge) ObserveAwaitTimeout() {
	if b == nil {
		return
	}
	b.AwaitTimeoutsTotal.Inc()
}

func (b *Bridge) ObserveStep(d time.Duration) {
	if b == nil {
		return
	}
	b.StepDurationSeconds.Observe(d.Seconds())
}

func (b *Bridge) ObserveEpisode(totalReward float64) {
	if b == nil {
		return
	}
	b.EpisodeReward.Observe(totalReward)
}
