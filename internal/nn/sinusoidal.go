package nn

import (
	"fmt"
	"math"
)

const (
	SinusoidalKind = "sin"

	minPhase     = -math.Pi / 2
	maxPhase     = math.Pi / 2
	minFrequency = 0.3
	maxFrequency = 2.0
	sinAmplitude = 1.0
	sinBias      = 1.0
)

// Sinusoidal drives every output with an open-loop wave
// a*sin(2*pi*f*t+p)+b-1. Phase and frequency are parametrized per output,
// amplitude and bias are fixed.
type Sinusoidal struct {
	inputs    int
	phases    []float64
	frequency []float64
}

// SinusoidalParams is the genotype length of a sinusoidal controller with
// outputs outputs.
func SinusoidalParams(outputs int) int {
	return 2 * outputs
}

// NewSinusoidal builds the controller from params laid out as
// [p0, f0, p1, f1, ...] in [-1, 1]. Values outside that range are clipped.
func NewSinusoidal(inputs, outputs int, params []float64) (*Sinusoidal, error) {
	if outputs <= 0 {
		return nil, fmt.Errorf("outputs must be > 0, got %d", outputs)
	}
	if err := checkParams(SinusoidalKind, len(params), SinusoidalParams(outputs)); err != nil {
		return nil, err
	}
	s := &Sinusoidal{
		inputs:    inputs,
		phases:    make([]float64, outputs),
		frequency: make([]float64, outputs),
	}
	for i := 0; i < outputs; i++ {
		s.phases[i] = UnscaleValue(params[2*i], maxPhase, minPhase)
		s.frequency[i] = UnscaleValue(params[2*i+1], maxFrequency, minFrequency)
	}
	return s, nil
}

func (s *Sinusoidal) NumInputs() int  { return s.inputs }
func (s *Sinusoidal) NumOutputs() int { return len(s.phases) }

// Apply ignores the observation.
func (s *Sinusoidal) Apply(t float64, _ []float64) ([]float64, error) {
	out := make([]float64, len(s.phases))
	for i := range out {
		out[i] = sinAmplitude*math.Sin(2*math.Pi*s.frequency[i]*t+s.phases[i]) + sinBias - 1
	}
	return out, nil
}

func (s *Sinusoidal) Phase(i int) float64     { return s.phases[i] }
func (s *Sinusoidal) Frequency(i int) float64 { return s.frequency[i] }
