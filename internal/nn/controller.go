package nn

import (
	"errors"
	"fmt"
)

var ErrParamCount = errors.New("controller parameter count mismatch")

// Controller maps the observation at time t to one actuation value per
// output. Controllers may hold state between calls and must not be shared
// across simulations.
type Controller interface {
	NumInputs() int
	NumOutputs() int
	Apply(t float64, inputs []float64) ([]float64, error)
}

func checkParams(kind string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s expects %d params, got %d", ErrParamCount, kind, want, got)
	}
	return nil
}

func checkInputs(c Controller, inputs []float64) error {
	if len(inputs) != c.NumInputs() {
		return fmt.Errorf("controller expects %d inputs, got %d", c.NumInputs(), len(inputs))
	}
	return nil
}
