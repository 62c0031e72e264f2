package integrators

import (
	"fmt"

	"github.com/san-kum/simbridge/internal/sim"
)

// ByName returns a fresh integrator. The empty name selects RK4.
func ByName(name string) (sim.Integrator, error) {
	switch name {
	case "rk4", "":
		return NewRK4(), nil
	case "heun":
		return NewHeun(), nil
	case "euler":
		return NewEuler(), nil
	default:
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
}

func Names() []string {
	return []string{"rk4", "heun", "euler"}
}
