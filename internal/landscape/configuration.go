package landscape

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"vsrscape/internal/agent"
	"vsrscape/internal/morphology"
	"vsrscape/internal/nn"
	"vsrscape/internal/shape"
)

var ErrConfiguration = errors.New("configuration error")

type Sweep string

const (
	// ControllerSweep varies the rigid cell count under a fixed sinusoidal
	// controller.
	ControllerSweep Sweep = "controller"
	// BodySweep varies the MLP size on the all-soft body.
	BodySweep Sweep = "body"
)

func ParseSweep(name string) (Sweep, error) {
	switch Sweep(strings.TrimSpace(strings.ToLower(name))) {
	case "", ControllerSweep:
		return ControllerSweep, nil
	case BodySweep:
		return BodySweep, nil
	default:
		return "", fmt.Errorf("%w: unknown sweep %q", ErrConfiguration, name)
	}
}

// Configuration is one (topology, count) pair of a sweep. Count is the rigid
// cell count of a controller sweep and the neuron setting of a body sweep.
type Configuration struct {
	Topology shape.Topology
	Sweep    Sweep
	Count    int
}

// Key is <topology>:<count>.
func (c Configuration) Key() string {
	return string(c.Topology) + ":" + strconv.Itoa(c.Count)
}

// Descriptor is the body shape the configuration is evaluated on.
func (c Configuration) Descriptor() (string, error) {
	switch c.Sweep {
	case ControllerSweep:
		return shape.Encode(c.Topology, c.Count)
	case BodySweep:
		return shape.Encode(c.Topology, 0)
	default:
		return "", fmt.Errorf("unknown sweep %q", c.Sweep)
	}
}

// ParseKey is the inverse of Key for a known sweep.
func ParseKey(key string, sweep Sweep) (Configuration, error) {
	name, rawCount, ok := strings.Cut(key, ":")
	if !ok {
		return Configuration{}, fmt.Errorf("%w: malformed key %q", ErrConfiguration, key)
	}
	topology, err := shape.ParseTopology(name)
	if err != nil {
		return Configuration{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	count, err := strconv.Atoi(rawCount)
	if err != nil {
		return Configuration{}, fmt.Errorf("%w: malformed count in %q", ErrConfiguration, key)
	}
	return Configuration{Topology: topology, Sweep: sweep, Count: count}, nil
}

// Expand builds the cross product of topologies and counts.
func Expand(sweep Sweep, topologies []shape.Topology, counts []int) []Configuration {
	out := make([]Configuration, 0, len(topologies)*len(counts))
	for _, topology := range topologies {
		for _, count := range counts {
			out = append(out, Configuration{Topology: topology, Sweep: sweep, Count: count})
		}
	}
	return out
}

// MapperFactory builds the mapper of a configuration. It may be called
// concurrently.
type MapperFactory func(Configuration) (agent.Mapper, error)

type MapperOptions struct {
	Sensorizing morphology.Sensorizing
	Activation  string
	StepT       float64
}

// DefaultMappers pairs a controller sweep with sinusoidal controllers and a
// body sweep with MLPs whose inner layer ratio is Count/2.
func DefaultMappers(opts MapperOptions) MapperFactory {
	if opts.Sensorizing.Name == "" {
		opts.Sensorizing = morphology.StandardSensors
	}
	if opts.StepT <= 0 {
		opts.StepT = nn.DefaultStepT
	}
	return func(c Configuration) (agent.Mapper, error) {
		if c.Count < 0 {
			return nil, fmt.Errorf("count must be >= 0, got %d", c.Count)
		}
		descriptor, err := c.Descriptor()
		if err != nil {
			return nil, err
		}
		body, err := morphology.Parse(descriptor, opts.Sensorizing)
		if err != nil {
			return nil, err
		}
		switch c.Sweep {
		case ControllerSweep:
			return agent.NewSinusoidalMapper(body)
		default:
			return agent.NewMLPMapper(body, agent.MLPOptions{
				InnerRatio: float64(c.Count) / 2,
				Activation: opts.Activation,
				StepT:      opts.StepT,
			})
		}
	}
}

type resolved struct {
	cfg    Configuration
	key    string
	mapper agent.Mapper
	dim    int
}

// resolve builds every mapper up front so configuration errors surface before
// any sampling. Mappers are built concurrently, at most workers at a time.
func resolve(ctx context.Context, configs []Configuration, mappers MapperFactory, workers int) ([]resolved, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: no configurations", ErrConfiguration)
	}
	seen := make(map[string]bool, len(configs))
	for _, c := range configs {
		key := c.Key()
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate configuration %s", ErrConfiguration, key)
		}
		seen[key] = true
		if _, err := shape.ParseTopology(string(c.Topology)); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfiguration, key, err)
		}
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]resolved, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, c := range configs {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := resolveOne(c, mappers)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func resolveOne(c Configuration, mappers MapperFactory) (resolved, error) {
	key := c.Key()
	mapper, err := mappers(c)
	if err != nil {
		return resolved{}, fmt.Errorf("%w: %s: %w", ErrConfiguration, key, err)
	}
	dim := mapper.Dimension()
	if dim <= 0 {
		return resolved{}, fmt.Errorf("%w: %s: mapper dimension %d", ErrConfiguration, key, dim)
	}
	if _, err := mapper.Apply(make([]float64, dim)); err != nil {
		return resolved{}, fmt.Errorf("%w: %s: mapper rejects its own dimension %d: %w", ErrConfiguration, key, dim, err)
	}
	return resolved{cfg: c, key: key, mapper: mapper, dim: dim}, nil
}
