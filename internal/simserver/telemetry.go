package simserver

import (
	"math"

	"github.com/san-kum/simbridge/internal/initstate"
	"github.com/san-kum/simbridge/internal/models"
	"github.com/san-kum/simbridge/internal/sim"
	"github.com/san-kum/simbridge/internal/state"
)

// Attitude the longitudinal model does not integrate.
type lateral struct {
	heading  float64
	roll     float64
	yokeRoll float64
}

// telemetry renders the plant state the way the simulator plugin reports
// it. Angles are degrees.
func telemetry(g *models.Glider, x sim.State, u sim.Control, lat lateral, target float64, frame uint64) state.Document {
	v := x[models.GliderV]
	gamma := x[models.GliderGamma]
	theta := x[models.GliderTheta]
	h := x[models.GliderH]

	yoke := 0.0
	if len(u) > 0 {
		yoke = u[0]
	}
	stall := 0.0
	if g.Stalling(x) {
		stall = 1
	}

	q := initstate.Quaternion(lat.heading, deg(theta), lat.roll)
	sh, ch := math.Sincos(lat.heading * math.Pi / 180)
	ground := v * math.Cos(gamma)

	return state.Document{
		"frame":                 state.Number(float64(frame)),
		"true_airspeed":         state.Number(v),
		"indicated_airspeed_ms": state.Number(v * math.Sqrt(models.Density(h)/models.Density(0))),
		"vh_ind":                state.Number(v * math.Sin(gamma)),
		"h_ind":                 state.Number(h),
		"alpha":                 state.Number(deg(theta - gamma)),
		"vpath":                 state.Number(deg(gamma)),
		"true_theta":            state.Number(deg(theta)),
		"true_phi":              state.Number(lat.roll),
		"true_psi":              state.Number(lat.heading),
		"yoke_pitch_ratio":      state.Number(yoke),
		"yoke_roll_ratio":       state.Number(lat.yokeRoll),
		"stallWarning":          state.Number(stall),
		"paused":                state.Bool(false),
		"targetValues": state.Map(state.Document{
			"requestedClimbRate": state.Number(target),
		}),
		"local_y": state.Number(h),
		"local_velocity": state.Map(state.Document{
			"x": state.Number(ground * sh),
			"y": state.Number(v * math.Sin(gamma)),
			"z": state.Number(-ground * ch),
		}),
		"rotationQuat": state.List(
			state.Number(q[0]), state.Number(q[1]), state.Number(q[2]), state.Number(q[3]),
		),
	}
}

// planeState converts SET_PLANE_STATE datarefs into a plant state. Missing
// datarefs keep their current value.
func planeState(data state.Document, x sim.State, lat lateral) (sim.State, lateral) {
	next := x.Clone()

	if h, ok := data[initstate.RefLocalY].Float(); ok {
		next[models.GliderH] = h
	}

	var q [4]float64
	haveQ := true
	for i := range q {
		c, ok := data[initstate.QuaternionRef(i)].Float()
		if !ok {
			haveQ = false
			break
		}
		q[i] = c
	}
	if haveQ {
		psi, theta, phi := initstate.Euler(q)
		next[models.GliderTheta] = theta * math.Pi / 180
		lat.heading, lat.roll = psi, phi
	}

	vx, okx := data[initstate.RefLocalVX].Float()
	vy, oky := data[initstate.RefLocalVY].Float()
	vz, okz := data[initstate.RefLocalVZ].Float()
	if okx && oky && okz {
		speed := math.Sqrt(vx*vx + vy*vy + vz*vz)
		if speed > 0 {
			next[models.GliderV] = speed
			next[models.GliderGamma] = math.Asin(vy / speed)
		}
	}
	next[models.GliderQ] = 0
	return next, lat
}

func deg(rad float64) float64 { return rad * 180 / math.Pi }
