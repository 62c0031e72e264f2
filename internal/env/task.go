package env

import (
	"fmt"
	"math"

	"github.com/san-kum/simbridge/internal/initstate"
	"github.com/san-kum/simbridge/internal/observe"
	"github.com/san-kum/simbridge/internal/state"
)

// StallPenalty is added to the speed reward while the stall warning is on.
const StallPenalty = -1.0

// Task couples an observation with its reward and reset behaviour.
type Task interface {
	observe.Projector
	Reward(obs state.Vector, r observe.Reader) float64
	// SettleUpdates is how many telemetry updates a reset waits for before
	// the first observation is trusted.
	SettleUpdates() int
}

// SpeedTask holds the indicated airspeed at TargetKnots.
type SpeedTask struct {
	observe.Speed
	TargetKnots float64
}

func NewSpeedTask() *SpeedTask {
	return &SpeedTask{TargetKnots: 68}
}

func (t *SpeedTask) Reward(obs state.Vector, _ observe.Reader) float64 {
	norm := obs[observe.SpeedSlotIAS] / (t.TargetKnots * initstate.KnotsToMS)
	reward := -10 * (norm - 1) * (norm - 1)
	if obs[observe.SpeedSlotStall] != 0 {
		reward += StallPenalty
	}
	return reward
}

func (t *SpeedTask) SettleUpdates() int { return 2 }

// GlideTask holds the glide angle at the setpoint the simulator publishes.
type GlideTask struct {
	observe.GlideAngle
}

func NewGlideTask() *GlideTask {
	return &GlideTask{}
}

func (t *GlideTask) Reward(obs state.Vector, r observe.Reader) float64 {
	return -math.Abs(obs[observe.GlideSlotAngle] - t.Target(r))
}

func (t *GlideTask) SettleUpdates() int { return 10 }

// TaskByName returns a fresh task.
func TaskByName(name string) (Task, error) {
	switch name {
	case "speed":
		return NewSpeedTask(), nil
	case "glide_angle":
		return NewGlideTask(), nil
	default:
		return nil, fmt.Errorf("unknown task: %s", name)
	}
}

func TaskNames() []string {
	return []string{"speed", "glide_angle"}
}
