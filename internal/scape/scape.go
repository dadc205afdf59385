package scape

import (
	"context"
	"errors"
	"math"

	"vsrscape/internal/morphology"
)

var (
	ErrUnstable         = errors.New("simulation state is not finite")
	ErrUnknownTask      = errors.New("unknown task")
	ErrUnknownExtractor = errors.New("unknown fitness extractor")
)

type Trace map[string]any

// Agent is a controllable simulated body.
type Agent interface {
	Body() morphology.Body
	Act(t float64, observation []float64) ([]float64, error)
}

// AgentFactory builds a fresh agent for each simulation.
type AgentFactory func() (Agent, error)

// Snapshot is the body state after one engine step.
type Snapshot struct {
	T float64
	// X and Y locate the center of the body; Y is the height of its lowest
	// point above the ground.
	X float64
	Y float64
}

type Outcome struct {
	Snapshots []Snapshot
	Trace     Trace
}

func (o Outcome) Duration() float64 {
	if len(o.Snapshots) == 0 {
		return 0
	}
	return o.Snapshots[len(o.Snapshots)-1].T - o.Snapshots[0].T
}

// Engine advances one body by fixed time steps. Engines are single use per
// simulation and never shared across goroutines.
type Engine interface {
	// Reset places body at rest and returns its initial snapshot.
	Reset(body morphology.Body) (Snapshot, error)
	// Observe returns one value per body sensor, in voxel and sensor order.
	Observe() []float64
	Step(actuation []float64) (Snapshot, error)
	Time() float64
}

type EngineFactory func() Engine

// Task runs an agent inside an engine to completion.
type Task interface {
	Name() string
	Run(ctx context.Context, factory AgentFactory, engine Engine) (Outcome, error)
}

// Extractor reduces an outcome to a scalar fitness.
type Extractor func(Outcome) float64

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
