package agent

import (
	"errors"
	"fmt"

	"vsrscape/internal/morphology"
	"vsrscape/internal/nn"
	"vsrscape/internal/scape"
)

var ErrDimensionMismatch = errors.New("genotype length does not match mapper dimension")

// Mapper turns a genotype into a factory of fresh agents.
type Mapper interface {
	Dimension() int
	Apply(genotype []float64) (scape.AgentFactory, error)
}

type controllerBuilder func(params []float64) (nn.Controller, error)

// Homogeneous maps every genotype onto the same body, using the genotype as
// the full parameter vector of a centralized controller.
type Homogeneous struct {
	kind  string
	body  morphology.Body
	dim   int
	build controllerBuilder
}

// NewSinusoidalMapper drives body with a sinusoidal controller.
func NewSinusoidalMapper(body morphology.Body) (*Homogeneous, error) {
	outputs := body.NumOutputs()
	if outputs == 0 {
		return nil, fmt.Errorf("body has no voxels")
	}
	return &Homogeneous{
		kind: nn.SinusoidalKind,
		body: body,
		dim:  nn.SinusoidalParams(outputs),
		build: func(params []float64) (nn.Controller, error) {
			return nn.NewSinusoidal(body.NumInputs(), outputs, params)
		},
	}, nil
}

type MLPOptions struct {
	InnerRatio float64
	Activation string
	StepT      float64
}

// NewMLPMapper drives body with a stepped MLP sized from its sensors.
func NewMLPMapper(body morphology.Body, opts MLPOptions) (*Homogeneous, error) {
	if body.NumOutputs() == 0 {
		return nil, fmt.Errorf("body has no voxels")
	}
	cfg := nn.MLPConfig{
		Inputs:     body.NumInputs(),
		Outputs:    body.NumOutputs(),
		InnerRatio: opts.InnerRatio,
		Activation: opts.Activation,
		StepT:      opts.StepT,
	}
	if _, err := nn.NewMLP(cfg, make([]float64, nn.MLPParams(cfg))); err != nil {
		return nil, fmt.Errorf("mlp mapper: %w", err)
	}
	return &Homogeneous{
		kind: nn.MLPKind,
		body: body,
		dim:  nn.MLPParams(cfg),
		build: func(params []float64) (nn.Controller, error) {
			return nn.NewMLP(cfg, params)
		},
	}, nil
}

func (m *Homogeneous) Kind() string {
	return m.kind
}

func (m *Homogeneous) Body() morphology.Body {
	return m.body
}

func (m *Homogeneous) Dimension() int {
	return m.dim
}

// Apply validates genotype and returns a factory building a new agent on each
// call. The genotype is copied so callers may reuse their slice.
func (m *Homogeneous) Apply(genotype []float64) (scape.AgentFactory, error) {
	if len(genotype) != m.dim {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrDimensionMismatch, m.kind, m.dim, len(genotype))
	}
	params := append([]float64(nil), genotype...)
	if _, err := m.newAgent(params); err != nil {
		return nil, err
	}
	return func() (scape.Agent, error) {
		return m.newAgent(params)
	}, nil
}

func (m *Homogeneous) newAgent(params []float64) (scape.Agent, error) {
	controller, err := m.build(params)
	if err != nil {
		return nil, err
	}
	vsr, err := NewCentralizedVSR(m.body, controller)
	if err != nil {
		return nil, err
	}
	return vsr, nil
}
