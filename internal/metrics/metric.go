package metrics

import "github.com/san-kum/simbridge/internal/state"

// Metric accumulates one figure over an episode.
type Metric interface {
	Name() string
	Observe(obs, action state.Vector, reward float64)
	Value() float64
	Reset()
}

// Collect reads every metric into a map keyed by name.
func Collect(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

func ResetAll(ms []Metric) {
	for _, m := range ms {
		m.Reset()
	}
}

type TotalReward struct {
	sum float64
}

func NewTotalReward() *TotalReward { return &TotalReward{} }

func (r *TotalReward) Name() string { return "total_reward" }

func (r *TotalReward) Observe(obs, action state.Vector, reward float64) {
	r.sum += reward
}

func (r *TotalReward) Value() float64 { return r.sum }
func (r *TotalReward) Reset()         { r.sum = 0 }
