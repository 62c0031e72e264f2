package integrators

import "github.com/san-kum/simbridge/internal/sim"

// Tableau is an explicit Runge-Kutta method in Butcher form. A is strictly
// lower triangular.
type Tableau struct {
	Name string
	A    [][]float64
	B    []float64
	C    []float64
}

var (
	EulerTableau = Tableau{
		Name: "euler",
		A:    [][]float64{{}},
		B:    []float64{1},
		C:    []float64{0},
	}

	HeunTableau = Tableau{
		Name: "heun",
		A:    [][]float64{{}, {1}},
		B:    []float64{0.5, 0.5},
		C:    []float64{0, 1},
	}

	RK4Tableau = Tableau{
		Name: "rk4",
		A: [][]float64{
			{},
			{0.5},
			{0, 0.5},
			{0, 0, 1},
		},
		B: []float64{1.0 / 6.0, 1.0 / 3.0, 1.0 / 3.0, 1.0 / 6.0},
		C: []float64{0, 0.5, 0.5, 1},
	}
)

// Explicit steps any explicit tableau. Stage buffers are reused between
// calls, so one instance must not be shared across goroutines.
type Explicit struct {
	tab     Tableau
	k       []sim.State
	scratch sim.State
}

func NewExplicit(tab Tableau) *Explicit {
	return &Explicit{tab: tab}
}

func NewEuler() *Explicit { return NewExplicit(EulerTableau) }
func NewHeun() *Explicit  { return NewExplicit(HeunTableau) }
func NewRK4() *Explicit   { return NewExplicit(RK4Tableau) }

func (e *Explicit) Name() string { return e.tab.Name }

func (e *Explicit) ensureScratch(stages, n int) {
	if len(e.k) == stages && len(e.scratch) == n {
		return
	}
	e.k = make([]sim.State, stages)
	for i := range e.k {
		e.k[i] = make(sim.State, n)
	}
	e.scratch = make(sim.State, n)
}

func (e *Explicit) Step(dyn sim.Dynamics, x sim.State, u sim.Control, t, dt float64) sim.State {
	n := len(x)
	stages := len(e.tab.B)
	e.ensureScratch(stages, n)

	for s := 0; s < stages; s++ {
		copy(e.scratch, x)
		for j, a := range e.tab.A[s] {
			if a == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				e.scratch[i] += dt * a * e.k[j][i]
			}
		}
		copy(e.k[s], dyn.Derivative(e.scratch, u, t+e.tab.C[s]*dt))
	}

	result := x.Clone()
	for s, b := range e.tab.B {
		for i := 0; i < n; i++ {
			result[i] += dt * b * e.k[s][i]
		}
	}
	return result
}
