package state

import "math"

// Vector is an observation or action as handed to the control loop.
type Vector []float64

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vector) Norm() float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func (v Vector) Sub(other Vector) Vector {
	result := make(Vector, len(v))
	for i := range v {
		if i < len(other) {
			result[i] = v[i] - other[i]
		} else {
			result[i] = v[i]
		}
	}
	return result
}

// Clamp limits every entry to [lo, hi] in a new vector.
func (v Vector) Clamp(lo, hi float64) Vector {
	result := make(Vector, len(v))
	for i, x := range v {
		result[i] = math.Max(lo, math.Min(hi, x))
	}
	return result
}
