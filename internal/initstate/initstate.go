// Package initstate draws randomized starting conditions for a glide and
// renders them as the SET_PLANE_STATE payload the simulator plugin applies.
//
// Angles are in degrees, speeds in m/s, altitude in metres above the local
// reference. The orientation is sent as a quaternion built from heading,
// pitch and roll, and the velocity as a world-frame vector in the
// simulator's east/up/south local axes.
package initstate

import (
	"math"
	"math/rand"

	"github.com/san-kum/simbridge/internal/codec"
	"github.com/san-kum/simbridge/internal/state"
)

// KnotsToMS converts knots to metres per second.
const KnotsToMS = 0.51444444444

// Dataref names written by a reset.
const (
	RefLocalVX    = "sim/flightmodel/position/local_vx"
	RefLocalVY    = "sim/flightmodel/position/local_vy"
	RefLocalVZ    = "sim/flightmodel/position/local_vz"
	RefQuaternion = "sim/flightmodel/position/q"
	RefLocalY     = "sim/flightmodel/position/local_y"
)

// Draws are clamped to this many standard deviations around the mean.
const clampSigmas = 5

// Distribution is a clamped normal distribution.
type Distribution struct {
	Mean   float64
	StdDev float64
}

func (d Distribution) Sample(rng *rand.Rand) float64 {
	v := d.Mean + rng.NormFloat64()*d.StdDev
	lo, hi := d.Mean-clampSigmas*d.StdDev, d.Mean+clampSigmas*d.StdDev
	return math.Max(lo, math.Min(hi, v))
}

type Params struct {
	AoA      Distribution
	VPath    Distribution
	Speed    Distribution
	Altitude Distribution
	Roll     Distribution
}

// DefaultParams starts the aircraft slightly steeper and faster than a best
// glide at 68 KIAS.
func DefaultParams() Params {
	speed := 75 * KnotsToMS
	return Params{
		AoA:      Distribution{Mean: 2.0, StdDev: 0.2},
		VPath:    Distribution{Mean: -6.0, StdDev: 0.6},
		Speed:    Distribution{Mean: speed, StdDev: 0.05 * speed},
		Altitude: Distribution{Mean: 1500, StdDev: 250},
		Roll:     Distribution{Mean: 0, StdDev: 10},
	}
}

// Pose is one drawn starting condition plus the quantities derived from it.
type Pose struct {
	AoA      float64
	VPath    float64
	Speed    float64
	Altitude float64
	Heading  float64
	Roll     float64

	Pitch     float64
	SinkSpeed float64
}

type Generator struct {
	params Params
	rng    *rand.Rand
}

func New(params Params, seed int64) *Generator {
	return &Generator{params: params, rng: rand.New(rand.NewSource(seed))}
}

// Draw samples a new pose. Not safe for concurrent use.
func (g *Generator) Draw() Pose {
	p := Pose{
		AoA:      g.params.AoA.Sample(g.rng),
		VPath:    g.params.VPath.Sample(g.rng),
		Speed:    g.params.Speed.Sample(g.rng),
		Altitude: g.params.Altitude.Sample(g.rng),
		Heading:  g.rng.Float64() * 360,
		Roll:     g.params.Roll.Sample(g.rng),
	}
	p.Pitch = p.VPath + p.AoA
	p.SinkSpeed = -math.Tan(deg2rad(p.AoA)) * p.Speed
	return p
}

// Command draws a pose and wraps it in a SET_PLANE_STATE command.
func (g *Generator) Command(requestID int64) (codec.Command, Pose) {
	p := g.Draw()
	return codec.NewCommand(codec.TypeSetPlaneState, requestID, p.Datarefs()), p
}

// Quaternion returns the attitude quaternion for heading psi, pitch theta and
// roll phi, all in degrees.
func Quaternion(psi, theta, phi float64) [4]float64 {
	sps, cps := math.Sincos(deg2rad(psi / 2))
	sth, cth := math.Sincos(deg2rad(theta / 2))
	sph, cph := math.Sincos(deg2rad(phi / 2))
	return [4]float64{
		cps*cth*cph + sps*sth*sph,
		cps*cth*sph - sps*sth*cph,
		cps*sth*cph + sps*cth*sph,
		-cps*sth*sph + sps*cth*cph,
	}
}

// Euler inverts Quaternion, returning heading in [0, 360), pitch and roll,
// all in degrees.
func Euler(q [4]float64) (psi, theta, phi float64) {
	q0, q1, q2, q3 := q[0], q[1], q[2], q[3]
	phi = rad2deg(math.Atan2(2*(q0*q1+q2*q3), 1-2*(q1*q1+q2*q2)))
	theta = rad2deg(math.Asin(math.Max(-1, math.Min(1, 2*(q0*q2-q3*q1)))))
	psi = rad2deg(math.Atan2(2*(q0*q3+q1*q2), 1-2*(q2*q2+q3*q3)))
	if psi < 0 {
		psi += 360
	}
	return psi, theta, phi
}

// Rotation returns the body-to-world rotation matrix for q. The first world
// axis is flipped because the simulator's local frame points south, not
// north.
func Rotation(q [4]float64) [3][3]float64 {
	q0, q1, q2, q3 := q[0], q[1], q[2], q[3]
	a := [3][3]float64{
		{q0*q0 + q1*q1 - q2*q2 - q3*q3, 2 * (q1*q2 - q0*q3), 2 * (q0*q2 + q1*q3)},
		{2 * (q1*q2 + q0*q3), q0*q0 - q1*q1 + q2*q2 - q3*q3, 2 * (q2*q3 - q0*q1)},
		{2 * (q1*q3 - q0*q2), 2 * (q2*q3 + q0*q1), q0*q0 - q1*q1 - q2*q2 + q3*q3},
	}
	for j := range a[0] {
		a[0][j] = -a[0][j]
	}
	return a
}

func mulVec(a [3][3]float64, v [3]float64) [3]float64 {
	var out [3]float64
	for i := range a {
		out[i] = a[i][0]*v[0] + a[i][1]*v[1] + a[i][2]*v[2]
	}
	return out
}

// WorldVelocity is the body velocity (forward speed, no side slip, sink)
// rotated into world axes.
func (p Pose) WorldVelocity() [3]float64 {
	q := Quaternion(p.Heading, p.Pitch, p.Roll)
	return mulVec(Rotation(q), [3]float64{p.Speed, 0, p.SinkSpeed})
}

// Datarefs renders the pose as simulator dataref assignments.
func (p Pose) Datarefs() state.Document {
	q := Quaternion(p.Heading, p.Pitch, p.Roll)
	v := mulVec(Rotation(q), [3]float64{p.Speed, 0, p.SinkSpeed})

	doc := state.Document{
		RefLocalVX: state.Number(v[1]),
		RefLocalVY: state.Number(v[2]),
		RefLocalVZ: state.Number(v[0]),
		RefLocalY:  state.Number(p.Altitude),
	}
	for i, c := range q {
		doc[QuaternionRef(i)] = state.Number(c)
	}
	return doc
}

// QuaternionRef names component i of the attitude quaternion dataref.
func QuaternionRef(i int) string {
	return RefQuaternion + "[" + string(rune('0'+i)) + "]"
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
