package controllers

import "github.com/san-kum/simbridge/internal/state"

type Zero struct {
	dim int
}

func NewZero(dim int) *Zero {
	return &Zero{
		dim: dim,
	}
}

func (z *Zero) Compute(obs state.Vector, t float64) state.Vector {
	return make(state.Vector, z.dim)
}
