package controllers

import (
	"math/rand"

	"github.com/san-kum/simbridge/internal/state"
)

// Random samples every action component uniformly from [-1, 1].
type Random struct {
	dim int
	rng *rand.Rand
}

func NewRandom(dim int, seed int64) *Random {
	return &Random{dim: dim, rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Compute(obs state.Vector, t float64) state.Vector {
	u := make(state.Vector, r.dim)
	for i := range u {
		u[i] = 2*r.rng.Float64() - 1
	}
	return u
}
