package sim

import (
	"errors"
	"math"
	"testing"
)

func TestStateIsValid(t *testing.T) {
	cases := map[string]struct {
		x    State
		want bool
	}{
		"empty":    {State{}, true},
		"finite":   {State{1500, 38, -0.07}, true},
		"nan":      {State{1, math.NaN()}, false},
		"plus inf": {State{math.Inf(1)}, false},
		"neg inf":  {State{0, 0, math.Inf(-1)}, false},
	}
	for name, tc := range cases {
		if got := tc.x.IsValid(); got != tc.want {
			t.Errorf("%s: IsValid() = %v, want %v", name, got, tc.want)
		}
	}
}

func TestStateCloneIsIndependent(t *testing.T) {
	x := State{1, 2}
	c := x.Clone()
	c[0] = 9
	if x[0] != 1 {
		t.Errorf("clone aliases the original: %v", x)
	}
	if State(nil).Clone() != nil {
		t.Error("clone of nil should be nil")
	}
}

func TestStepError(t *testing.T) {
	err := error(&StepError{Step: 150, Time: 1.5, Wrapped: ErrInvalidState})
	if want := "step 150 at t=1.500s: sim: state diverged to NaN or Inf"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Error("StepError should unwrap to its cause")
	}
}
