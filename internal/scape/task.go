package scape

import (
	"context"
	"fmt"
	"strings"
)

const (
	LocomotionTask  = "locomotion"
	JumpingTask     = "jumping"
	DefaultDuration = 10.0

	timeEpsilon = 1e-9
)

// Locomotion measures how far the body travels on flat ground.
type Locomotion struct {
	Duration float64
}

func (Locomotion) Name() string {
	return LocomotionTask
}

func (l Locomotion) Run(ctx context.Context, factory AgentFactory, engine Engine) (Outcome, error) {
	return simulate(ctx, LocomotionTask, l.Duration, factory, engine)
}

// Jumping measures how high the body gets off flat ground.
type Jumping struct {
	Duration float64
}

func (Jumping) Name() string {
	return JumpingTask
}

func (j Jumping) Run(ctx context.Context, factory AgentFactory, engine Engine) (Outcome, error) {
	return simulate(ctx, JumpingTask, j.Duration, factory, engine)
}

// TaskByName builds a task; duration <= 0 selects DefaultDuration.
func TaskByName(name string, duration float64) (Task, error) {
	if duration <= 0 {
		duration = DefaultDuration
	}
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", LocomotionTask:
		return Locomotion{Duration: duration}, nil
	case JumpingTask:
		return Jumping{Duration: duration}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
}

// DefaultExtractorFor names the extractor conventionally paired with a task.
func DefaultExtractorFor(task string) string {
	if strings.TrimSpace(strings.ToLower(task)) == JumpingTask {
		return MaxHeightExtractor
	}
	return XVelocityExtractor
}

func simulate(ctx context.Context, name string, duration float64, factory AgentFactory, engine Engine) (Outcome, error) {
	if factory == nil {
		return Outcome{}, fmt.Errorf("%s: agent factory is required", name)
	}
	if engine == nil {
		return Outcome{}, fmt.Errorf("%s: engine is required", name)
	}
	if !(duration > 0) {
		return Outcome{}, fmt.Errorf("%s: duration must be > 0, got %g", name, duration)
	}
	agent, err := factory()
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: build agent: %w", name, err)
	}
	initial, err := engine.Reset(agent.Body())
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: reset engine: %w", name, err)
	}

	snapshots := []Snapshot{initial}
	for engine.Time()+timeEpsilon < duration {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		t := engine.Time()
		actuation, err := agent.Act(t, engine.Observe())
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: agent act at t=%.4f: %w", name, t, err)
		}
		snapshot, err := engine.Step(actuation)
		if err != nil {
			return Outcome{}, fmt.Errorf("%s: %w", name, err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return Outcome{
		Snapshots: snapshots,
		Trace: Trace{
			"task":     name,
			"steps":    len(snapshots) - 1,
			"duration": duration,
		},
	}, nil
}
