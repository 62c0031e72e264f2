package models

import (
	"math"

	"github.com/san-kum/simbridge/internal/sim"
)

// Glider state indices. Angles are radians, lengths metres.
const (
	GliderX = iota
	GliderH
	GliderV
	GliderGamma
	GliderTheta
	GliderQ
)

// Glider is a longitudinal point-mass model of a light aircraft with the
// engine at idle. The single control is the yoke pitch ratio in [-1, 1];
// positive pulls the nose up.
type Glider struct {
	Mass     float64
	WingArea float64
	Chord    float64
	Iyy      float64
	Gravity  float64

	CL0, CLAlpha, CLMax float64
	CD0, K              float64
	Cm0, CmAlpha, CmQ   float64
	CmYoke              float64

	// StallAlpha is the angle of attack at which lift stops growing.
	StallAlpha float64
	// WarnAlpha is where the stall warning sounds.
	WarnAlpha float64
}

// NewGlider returns parameters close to a Cessna 172 trimmed for roughly
// 2 degrees angle of attack.
func NewGlider() *Glider {
	return &Glider{
		Mass:       1000,
		WingArea:   16.2,
		Chord:      1.49,
		Iyy:        1825,
		Gravity:    9.81,
		CL0:        0.31,
		CLAlpha:    5.14,
		CLMax:      1.6,
		CD0:        0.031,
		K:          0.054,
		Cm0:        0.03,
		CmAlpha:    -0.89,
		CmQ:        -12.4,
		CmYoke:     0.12,
		StallAlpha: 16 * math.Pi / 180,
		WarnAlpha:  13 * math.Pi / 180,
	}
}

func (g *Glider) StateDim() int {
	return 6
}

func (g *Glider) ControlDim() int {
	return 1
}

// Density is the air density at altitude h.
func Density(h float64) float64 {
	return 1.225 * math.Exp(-h/8500)
}

func (g *Glider) Alpha(x sim.State) float64 {
	return x[GliderTheta] - x[GliderGamma]
}

func (g *Glider) Stalling(x sim.State) bool {
	return g.Alpha(x) >= g.WarnAlpha
}

func (g *Glider) liftCoefficient(alpha float64) float64 {
	cl := g.CL0 + g.CLAlpha*alpha
	if alpha > g.StallAlpha {
		// lift falls off past the stall
		cl = g.CL0 + g.CLAlpha*g.StallAlpha - 2*g.CLAlpha*(alpha-g.StallAlpha)
	}
	return math.Max(-g.CLMax, math.Min(g.CLMax, cl))
}

func (g *Glider) Derivative(x sim.State, u sim.Control, t float64) sim.State {
	v := math.Max(x[GliderV], 1)
	gamma := x[GliderGamma]
	q := x[GliderQ]
	alpha := g.Alpha(x)

	yoke := 0.0
	if len(u) > 0 {
		yoke = math.Max(-1, math.Min(1, u[0]))
	}

	qbar := 0.5 * Density(x[GliderH]) * v * v
	cl := g.liftCoefficient(alpha)
	cd := g.CD0 + g.K*cl*cl
	lift := qbar * g.WingArea * cl
	drag := qbar * g.WingArea * cd

	cm := g.Cm0 + g.CmAlpha*alpha + g.CmQ*q*g.Chord/(2*v) + g.CmYoke*yoke
	pitchAccel := qbar * g.WingArea * g.Chord * cm / g.Iyy

	sg, cg := math.Sincos(gamma)
	return sim.State{
		v * cg,
		v * sg,
		-drag/g.Mass - g.Gravity*sg,
		(lift/g.Mass - g.Gravity*cg) / v,
		q,
		pitchAccel,
	}
}

// GliderState builds a state from flight values in degrees and m/s.
func GliderState(altitude, speed, pathDeg, pitchDeg float64) sim.State {
	return sim.State{0, altitude, speed, pathDeg * math.Pi / 180, pitchDeg * math.Pi / 180, 0}
}
