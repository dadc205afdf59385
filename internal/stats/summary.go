package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FitnessAccumulator collects the fitness values of one configuration. NaN
// values count as failures.
type FitnessAccumulator struct {
	values   []float64
	failures int
}

func (a *FitnessAccumulator) Add(fitness float64) {
	if math.IsNaN(fitness) {
		a.failures++
		return
	}
	a.values = append(a.values, fitness)
}

func (a *FitnessAccumulator) Samples() int {
	return len(a.values) + a.failures
}

func (a *FitnessAccumulator) Failures() int {
	return a.failures
}

// Summarize fills the fitness fields of a configuration summary. Infinite
// values are counted as samples but left out of the statistics.
func (a *FitnessAccumulator) Summarize(key string, dimension int) ConfigurationSummary {
	out := ConfigurationSummary{
		Key:       key,
		Dimension: dimension,
		Samples:   a.Samples(),
		Failures:  a.failures,
	}
	finite := make([]float64, 0, len(a.values))
	for _, v := range a.values {
		if !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return out
	}
	out.Min = floats.Min(finite)
	out.Max = floats.Max(finite)
	out.Mean, out.Std = stat.PopMeanStdDev(finite, nil)
	return out
}
