package agent

import (
	"fmt"

	"vsrscape/internal/morphology"
	"vsrscape/internal/nn"
)

// CentralizedVSR is a voxel body driven by one controller that sees every
// sensor and actuates every voxel.
type CentralizedVSR struct {
	body       morphology.Body
	controller nn.Controller
}

func NewCentralizedVSR(body morphology.Body, controller nn.Controller) (*CentralizedVSR, error) {
	if controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if controller.NumInputs() != body.NumInputs() {
		return nil, fmt.Errorf("controller expects %d inputs, body provides %d", controller.NumInputs(), body.NumInputs())
	}
	if controller.NumOutputs() != body.NumOutputs() {
		return nil, fmt.Errorf("controller drives %d outputs, body has %d voxels", controller.NumOutputs(), body.NumOutputs())
	}
	return &CentralizedVSR{body: body, controller: controller}, nil
}

func (a *CentralizedVSR) Body() morphology.Body {
	return a.body
}

func (a *CentralizedVSR) Act(t float64, observation []float64) ([]float64, error) {
	return a.controller.Apply(t, observation)
}
