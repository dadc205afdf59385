package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	MLPKind = "mlp"

	DefaultStepT      = 0.2
	DefaultActivation = "tanh"
)

type MLPConfig struct {
	Inputs     int
	Outputs    int
	InnerRatio float64
	Activation string
	// StepT is the interval the outputs are held for. Zero recomputes on
	// every call.
	StepT float64
}

// InnerSize is max(1, round(Inputs*InnerRatio)).
func (c MLPConfig) InnerSize() int {
	n := int(math.Round(float64(c.Inputs) * c.InnerRatio))
	if n < 1 {
		return 1
	}
	return n
}

// MLPParams is the genotype length of the network described by c, biases
// included.
func MLPParams(c MLPConfig) int {
	h := c.InnerSize()
	return (c.Inputs+1)*h + (h+1)*c.Outputs
}

// MLP is a one-inner-layer perceptron whose outputs are held for StepT
// seconds between recomputations.
type MLP struct {
	cfg   MLPConfig
	act   ActivationFunc
	inner [][]float64 // [h][inputs+1], bias last
	outer [][]float64 // [outputs][h+1], bias last

	lastT   float64
	stepped bool
	held    []float64
}

func NewMLP(cfg MLPConfig, params []float64) (*MLP, error) {
	if cfg.Inputs < 0 {
		return nil, fmt.Errorf("inputs must be >= 0, got %d", cfg.Inputs)
	}
	if cfg.Outputs <= 0 {
		return nil, fmt.Errorf("outputs must be > 0, got %d", cfg.Outputs)
	}
	if cfg.InnerRatio < 0 || math.IsNaN(cfg.InnerRatio) {
		return nil, fmt.Errorf("inner ratio must be >= 0, got %g", cfg.InnerRatio)
	}
	if cfg.StepT < 0 {
		return nil, fmt.Errorf("step interval must be >= 0, got %g", cfg.StepT)
	}
	if cfg.Activation == "" {
		cfg.Activation = DefaultActivation
	}
	act, err := GetActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}
	if err := checkParams(MLPKind, len(params), MLPParams(cfg)); err != nil {
		return nil, err
	}

	h := cfg.InnerSize()
	m := &MLP{cfg: cfg, act: act}
	offset := 0
	m.inner, offset = splitRows(params, offset, h, cfg.Inputs+1)
	m.outer, _ = splitRows(params, offset, cfg.Outputs, h+1)
	return m, nil
}

func splitRows(params []float64, offset, rows, cols int) ([][]float64, int) {
	out := make([][]float64, rows)
	for r := range out {
		out[r] = append([]float64(nil), params[offset:offset+cols]...)
		offset += cols
	}
	return out, offset
}

func (m *MLP) NumInputs() int  { return m.cfg.Inputs }
func (m *MLP) NumOutputs() int { return m.cfg.Outputs }

func (m *MLP) Apply(t float64, inputs []float64) ([]float64, error) {
	if err := checkInputs(m, inputs); err != nil {
		return nil, err
	}
	if m.stepped && t-m.lastT < m.cfg.StepT {
		return append([]float64(nil), m.held...), nil
	}
	m.held = m.forward(inputs)
	m.lastT = t
	m.stepped = true
	return append([]float64(nil), m.held...), nil
}

func (m *MLP) forward(inputs []float64) []float64 {
	hidden := layer(m.inner, inputs, m.act)
	return layer(m.outer, hidden, m.act)
}

func layer(weights [][]float64, in []float64, act ActivationFunc) []float64 {
	out := make([]float64, len(weights))
	for r, row := range weights {
		out[r] = act(floats.Dot(row[:len(in)], in) + row[len(in)])
	}
	return out
}
