package genotype

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// minDirectionNorm is the smallest raw direction norm that can be rescaled
// without producing Inf/NaN coordinates.
const minDirectionNorm = 1e-12

var (
	ErrDegenerateDirection = errors.New("degenerate direction: sampled vector norm is zero")
	ErrDimensionMismatch   = errors.New("genotype dimension mismatch")
)

// Source is the subset of *rand.Rand used by the sampler.
type Source interface {
	Float64() float64
	NormFloat64() float64
}

// Range bounds base point coordinates to [Min, Max).
type Range struct {
	Min float64
	Max float64
}

var DefaultRange = Range{Min: -1, Max: 1}

// Sampler draws base points and directions from a single injected source.
// It is not safe for concurrent use.
type Sampler struct {
	src   Source
	bases Range
}

func NewSampler(src Source, bases Range) (*Sampler, error) {
	if src == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if !(bases.Max > bases.Min) {
		return nil, fmt.Errorf("invalid base range [%g, %g)", bases.Min, bases.Max)
	}
	return &Sampler{src: src, bases: bases}, nil
}

// NewSeededSampler is NewSampler over math/rand seeded with seed.
func NewSeededSampler(seed int64, bases Range) (*Sampler, error) {
	return NewSampler(rand.New(rand.NewSource(seed)), bases)
}

// BasePoint draws dim coordinates uniformly from the sampler range.
func (s *Sampler) BasePoint(dim int) ([]float64, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be > 0, got %d", dim)
	}
	width := s.bases.Max - s.bases.Min
	out := make([]float64, dim)
	for i := range out {
		out[i] = s.bases.Min + s.src.Float64()*width
	}
	return out, nil
}

// Direction draws an isotropic direction of Euclidean norm length.
func (s *Sampler) Direction(dim int, length float64) ([]float64, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be > 0, got %d", dim)
	}
	if !(length > 0) || math.IsInf(length, 0) {
		return nil, fmt.Errorf("segment length must be finite and > 0, got %g", length)
	}
	out := make([]float64, dim)
	for i := range out {
		out[i] = s.src.NormFloat64()
	}
	norm := floats.Norm(out, 2)
	if !(norm > minDirectionNorm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("%w (norm=%g, dim=%d)", ErrDegenerateDirection, norm, dim)
	}
	floats.Scale(length/norm, out)
	return out, nil
}

// Interpolate returns base + fraction*direction.
func Interpolate(base, direction []float64, fraction float64) ([]float64, error) {
	if len(base) != len(direction) {
		return nil, fmt.Errorf("%w: base=%d direction=%d", ErrDimensionMismatch, len(base), len(direction))
	}
	out := make([]float64, len(base))
	floats.AddScaledTo(out, base, fraction, direction)
	return out, nil
}

// Fractions returns k/steps for k = 1..steps.
func Fractions(steps int) []float64 {
	if steps <= 0 {
		return nil
	}
	out := make([]float64, steps)
	for k := 1; k <= steps; k++ {
		out[k-1] = float64(k) / float64(steps)
	}
	return out
}
