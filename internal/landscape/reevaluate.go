package landscape

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"vsrscape/internal/agent"
	"vsrscape/internal/logging"
	"vsrscape/internal/pool"
	"vsrscape/internal/stats"
)

const reevaluateBatch = 4096

type ReevaluateOptions struct {
	Sweep   Sweep
	Workers int
	Logger  *zap.Logger
}

// Reevaluate runs the stored genotype of every row again and returns copies
// of the rows carrying the new fitness, in input order. Failed evaluations
// get NaN fitness and are counted in the returned failure total.
func Reevaluate(ctx context.Context, rows []stats.Row, mappers MapperFactory, evaluate Evaluator, opts ReevaluateOptions) ([]stats.Row, int, error) {
	logger := logging.OrNop(opts.Logger)
	if mappers == nil || evaluate == nil {
		return nil, 0, fmt.Errorf("%w: mapper factory and evaluator are required", ErrConfiguration)
	}

	if opts.Sweep == "" {
		opts.Sweep = ControllerSweep
	}
	resolvedMappers := make(map[string]agent.Mapper)
	for i, row := range rows {
		if len(row.Genotype) == 0 {
			return nil, 0, fmt.Errorf("%w: row %d of %s has no genotype", ErrConfiguration, i, row.Key)
		}
		if _, ok := resolvedMappers[row.Key]; ok {
			continue
		}
		cfg, err := ParseKey(row.Key, opts.Sweep)
		if err != nil {
			return nil, 0, err
		}
		mapper, err := mappers(cfg)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %w", ErrConfiguration, row.Key, err)
		}
		resolvedMappers[row.Key] = mapper
	}

	workers := pool.New[float64](ctx, opts.Workers)
	defer workers.Close()

	out := make([]stats.Row, len(rows))
	failures := 0
	for start := 0; start < len(rows); start += reevaluateBatch {
		end := min(start+reevaluateBatch, len(rows))
		handles := make([]*pool.Handle[float64], 0, end-start)
		for _, row := range rows[start:end] {
			mapper := resolvedMappers[row.Key]
			g := row.Genotype
			h, err := workers.Submit(func(ctx context.Context) (float64, error) {
				factory, err := mapper.Apply(g)
				if err != nil {
					return 0, err
				}
				fitness, err := evaluate(ctx, factory)
				if err != nil {
					return 0, err
				}
				if math.IsNaN(fitness) {
					return 0, ErrNaNFitness
				}
				return fitness, nil
			})
			if err != nil {
				return nil, failures, err
			}
			handles = append(handles, h)
		}
		for i, h := range handles {
			row := rows[start+i]
			outcome := h.Await()
			row.Fitness = outcome.Value
			if outcome.Failed() {
				row.Fitness = math.NaN()
				failures++
				logger.Warn("re-evaluation failed",
					zap.String("key", row.Key),
					zap.Int("point", row.Point),
					zap.Int("segment", row.Segment),
					zap.Error(outcome.Err),
				)
			}
			out[start+i] = row
		}
		if err := ctx.Err(); err != nil {
			return nil, failures, err
		}
	}
	workers.Shutdown()
	return out, failures, nil
}
