package observe

import "github.com/san-kum/simbridge/internal/state"

// Speed observation slots.
const (
	SpeedSlotIAS = iota
	SpeedSlotStall
	SpeedSlotAltitude
	SpeedSlotAlpha
	SpeedSlotPitch
	SpeedSlotYokePitch
	SpeedSlotRoll
	SpeedSlotYokeRoll
)

var speedSpec = state.Spec(
	state.Path("indicated_airspeed_ms"),
	state.Path("stallWarning"),
	state.Path("h_ind"),
	state.Path("alpha"),
	state.Path("true_theta"),
	state.Path("yoke_pitch_ratio"),
	state.Path("true_phi"),
	state.Path("yoke_roll_ratio"),
)

// Speed is the raw observation for airspeed holding. It has no derived slots.
type Speed struct{}

func (Speed) Name() string                { return "speed" }
func (Speed) Spec() state.ObservationSpec { return speedSpec }

func (Speed) Project(r Reader) state.Vector {
	return r.Observation(speedSpec)
}

// Glide angle observation slots.
const (
	GlideSlotAngle = iota
	GlideSlotStall
	GlideSlotTAS
	GlideSlotSinkRate
	GlideSlotAltitude
	GlideSlotAlpha
	GlideSlotPitch
	GlideSlotYokePitch
	GlideSlotRoll
	GlideSlotYokeRoll
)

var glideSpec = state.Spec(
	state.Derived,
	state.Path("stallWarning"),
	state.Path("true_airspeed"),
	state.Path("vh_ind"),
	state.Path("h_ind"),
	state.Path("alpha"),
	state.Path("true_theta"),
	state.Path("yoke_pitch_ratio"),
	state.Path("true_phi"),
	state.Path("yoke_roll_ratio"),
)

// TargetClimbRate is where the simulator publishes the requested glide
// angle setpoint.
var TargetClimbRate = state.Path("targetValues", "requestedClimbRate")

// GlideAngle observes the descent angle in degrees, computed from the true
// airspeed and sink rate. The simulator's own path angle is referenced to
// ground speed and is unusable in wind.
type GlideAngle struct{}

func (GlideAngle) Name() string                { return "glide_angle" }
func (GlideAngle) Spec() state.ObservationSpec { return glideSpec }

func (GlideAngle) Project(r Reader) state.Vector {
	obs := r.Observation(glideSpec)
	obs[GlideSlotAngle] = RadToDeg(DerivedAngle(obs[GlideSlotSinkRate], obs[GlideSlotTAS]))
	return obs
}

func (GlideAngle) derivedLabels(labels []string) {
	labels[GlideSlotAngle] = "glide_angle_deg"
}

// Target reads the current glide angle setpoint.
func (GlideAngle) Target(r Reader) float64 {
	return r.Observation(state.Spec(TargetClimbRate))[0]
}

// ByName returns the built-in projector for a task name.
func ByName(name string) (Projector, bool) {
	switch name {
	case "speed":
		return Speed{}, true
	case "glide_angle":
		return GlideAngle{}, true
	default:
		return nil, false
	}
}
