package metrics

import (
	"math"

	"github.com/san-kum/simbridge/internal/state"
)

// mean accumulates a per-step figure; empty is reported before any sample.
type mean struct {
	sum   float64
	n     int
	empty float64
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m *mean) value() float64 {
	if m.n == 0 {
		return m.empty
	}
	return m.sum / float64(m.n)
}

func (m *mean) reset() { m.sum, m.n = 0, 0 }

// ControlEffort is the mean absolute elevator deflection per step, summed
// over action components.
type ControlEffort struct{ acc mean }

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(_, action state.Vector, _ float64) {
	var effort float64
	for _, a := range action {
		effort += math.Abs(a)
	}
	c.acc.add(effort)
}

func (c *ControlEffort) Value() float64 { return c.acc.value() }
func (c *ControlEffort) Reset()         { c.acc.reset() }

// Stability is the share of steps in which observation slot Slot stayed
// within Tolerance of its setpoint. A missing slot counts as out of band.
type Stability struct {
	Slot      int
	Tolerance float64
	// Setpoint, when set, is read on every step and overrides the fixed
	// target.
	Setpoint func() float64

	target float64
	acc    mean
}

func NewStability(slot int, target, tolerance float64) *Stability {
	return &Stability{Slot: slot, Tolerance: tolerance, target: target, acc: mean{empty: 1}}
}

func (s *Stability) Name() string { return "stability" }

// SetTarget moves the setpoint, e.g. when the simulator publishes a new one.
func (s *Stability) SetTarget(target float64) { s.target = target }

func (s *Stability) Observe(obs, _ state.Vector, _ float64) {
	target := s.target
	if s.Setpoint != nil {
		target = s.Setpoint()
	}
	in := 0.0
	if s.Slot < len(obs) && math.Abs(obs[s.Slot]-target) <= s.Tolerance {
		in = 1
	}
	s.acc.add(in)
}

func (s *Stability) Value() float64 { return s.acc.value() }
func (s *Stability) Reset()         { s.acc.reset() }
