package landscape

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"vsrscape/internal/genotype"
	"vsrscape/internal/logging"
	"vsrscape/internal/metrics"
	"vsrscape/internal/pool"
	"vsrscape/internal/scape"
	"vsrscape/internal/stats"
)

const (
	DefaultPoints         = 20
	DefaultTrials         = 20
	DefaultFragmentations = 500
	DefaultSegmentLength  = 0.5
)

var ErrNaNFitness = errors.New("evaluation produced NaN fitness")

// Evaluator runs one agent to completion and returns its fitness.
type Evaluator func(ctx context.Context, factory scape.AgentFactory) (float64, error)

// TaskEvaluator evaluates with a fresh engine per call.
func TaskEvaluator(task scape.Task, engines scape.EngineFactory, extract scape.Extractor) Evaluator {
	return func(ctx context.Context, factory scape.AgentFactory) (float64, error) {
		outcome, err := task.Run(ctx, factory, engines())
		if err != nil {
			return 0, err
		}
		return extract(outcome), nil
	}
}

// RowSink receives the rows of a walk one configuration at a time.
type RowSink interface {
	BeginConfiguration(key string) error
	Write(row stats.Row) error
	EndConfiguration() error
	// Abort discards every row written since BeginConfiguration.
	Abort() error
}

type Params struct {
	Points         int
	Trials         int
	Fragmentations int
	SegmentLength  float64
	Seed           int64
	Range          genotype.Range
	Workers        int
	// Deadline bounds the whole walk. Evaluations still pending when it
	// expires are recorded as failed. Zero disables it.
	Deadline time.Duration
}

func DefaultParams() Params {
	return Params{
		Points:         DefaultPoints,
		Trials:         DefaultTrials,
		Fragmentations: DefaultFragmentations,
		SegmentLength:  DefaultSegmentLength,
		Range:          genotype.DefaultRange,
	}
}

func (p Params) validate() error {
	if p.Points <= 0 {
		return fmt.Errorf("%w: points must be > 0, got %d", ErrConfiguration, p.Points)
	}
	if p.Trials < 0 {
		return fmt.Errorf("%w: trials must be >= 0, got %d", ErrConfiguration, p.Trials)
	}
	if p.Trials > 0 && p.Fragmentations <= 0 {
		return fmt.Errorf("%w: fragmentations must be > 0, got %d", ErrConfiguration, p.Fragmentations)
	}
	if p.Trials > 0 && (!(p.SegmentLength > 0) || math.IsInf(p.SegmentLength, 0)) {
		return fmt.Errorf("%w: segment length must be finite and > 0, got %g", ErrConfiguration, p.SegmentLength)
	}
	if p.Deadline < 0 {
		return fmt.Errorf("%w: deadline must be >= 0, got %s", ErrConfiguration, p.Deadline)
	}
	return nil
}

// SamplesPerPoint is 1 + Trials*Fragmentations.
func (p Params) SamplesPerPoint() int {
	return 1 + p.Trials*p.Fragmentations
}

// Progress is reported after every joined point.
type Progress struct {
	Key      string
	Point    int
	Points   int
	Done     int
	Total    int
	Failures int
}

type Summary struct {
	Configurations []stats.ConfigurationSummary
	Samples        int
	Failures       int
	Cancelled      int
	Pool           pool.Stats
}

type Option func(*Walker)

func WithLogger(logger *zap.Logger) Option {
	return func(w *Walker) { w.logger = logging.OrNop(logger) }
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(w *Walker) { w.metrics = recorder }
}

func WithProgress(fn func(Progress)) Option {
	return func(w *Walker) { w.progress = fn }
}

// WithSource replaces the seeded generator.
func WithSource(src genotype.Source) Option {
	return func(w *Walker) { w.source = src }
}

// Walker samples directional landscapes. All randomness is drawn on the
// goroutine calling Run; evaluations run on a bounded pool and are joined in
// submission order, so output rows depend only on the seed.
type Walker struct {
	params   Params
	mappers  MapperFactory
	evaluate Evaluator
	sink     RowSink

	source   genotype.Source
	logger   *zap.Logger
	metrics  *metrics.Recorder
	progress func(Progress)
}

func NewWalker(params Params, mappers MapperFactory, evaluate Evaluator, sink RowSink, opts ...Option) (*Walker, error) {
	if params.Range == (genotype.Range{}) {
		params.Range = genotype.DefaultRange
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if mappers == nil {
		return nil, fmt.Errorf("%w: mapper factory is required", ErrConfiguration)
	}
	if evaluate == nil {
		return nil, fmt.Errorf("%w: evaluator is required", ErrConfiguration)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: row sink is required", ErrConfiguration)
	}
	w := &Walker{
		params:   params,
		mappers:  mappers,
		evaluate: evaluate,
		sink:     sink,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

type evaluation struct {
	fitness float64
	elapsed time.Duration
}

// sample is one submitted evaluation and the coordinates of its row.
type sample struct {
	segment  int
	trial    int
	fraction float64
	handle   *pool.Handle[evaluation]
	outcome  pool.Outcome[evaluation]
}

// Run walks every configuration in order. Configuration errors abort before
// sampling; a degenerate direction aborts the whole run; a sink error only
// abandons the configuration it happened in.
func (w *Walker) Run(ctx context.Context, configs []Configuration) (Summary, error) {
	targets, err := resolve(ctx, configs, w.mappers, w.params.Workers)
	if err != nil {
		return Summary{}, err
	}
	var sampler *genotype.Sampler
	if w.source != nil {
		sampler, err = genotype.NewSampler(w.source, w.params.Range)
	} else {
		sampler, err = genotype.NewSeededSampler(w.params.Seed, w.params.Range)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	runCtx := ctx
	if w.params.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.params.Deadline)
		defer cancel()
	}

	workers := pool.New[evaluation](runCtx, w.params.Workers)
	defer workers.Close()

	w.logger.Info("landscape walk started",
		zap.Int("configurations", len(targets)),
		zap.Int("points", w.params.Points),
		zap.Int("trials", w.params.Trials),
		zap.Int("fragmentations", w.params.Fragmentations),
		zap.Int("workers", workers.Workers()),
		zap.Int64("seed", w.params.Seed),
	)

	var summary Summary
	for _, target := range targets {
		cs, err := w.walkConfiguration(ctx, runCtx, workers, sampler, target)
		summary.Configurations = append(summary.Configurations, cs)
		summary.Samples += cs.Samples
		summary.Failures += cs.Failures
		summary.Cancelled += cs.Cancelled
		if err != nil {
			if errors.Is(err, genotype.ErrDegenerateDirection) || ctx.Err() != nil {
				summary.Pool = workers.Close()
				return summary, err
			}
			w.logger.Error("configuration abandoned", zap.String("key", target.key), zap.Error(err))
			w.metrics.ConfigurationDone(metrics.StatusError)
			continue
		}
		w.metrics.ConfigurationDone(metrics.StatusOK)
	}

	summary.Pool = workers.Shutdown()
	w.logger.Info("landscape walk finished",
		zap.String("samples", humanize.Comma(int64(summary.Samples))),
		zap.Int("failures", summary.Failures),
		zap.Int("cancelled", summary.Cancelled),
	)
	return summary, nil
}

func (w *Walker) walkConfiguration(
	ctx, runCtx context.Context,
	workers *pool.Pool[evaluation],
	sampler *genotype.Sampler,
	target resolved,
) (stats.ConfigurationSummary, error) {
	var acc stats.FitnessAccumulator
	cancelled := 0
	total := w.params.Points * w.params.SamplesPerPoint()
	fractions := genotype.Fractions(w.params.Fragmentations)

	fail := func(err error) (stats.ConfigurationSummary, error) {
		if abortErr := w.sink.Abort(); abortErr != nil {
			w.logger.Warn("partial configuration left in output", zap.String("key", target.key), zap.Error(abortErr))
		}
		cs := acc.Summarize(target.key, target.dim)
		cs.Cancelled = cancelled
		cs.Error = err.Error()
		return cs, err
	}

	if err := w.sink.BeginConfiguration(target.key); err != nil {
		return fail(fmt.Errorf("begin %s: %w", target.key, err))
	}
	w.logger.Info("configuration started",
		zap.String("key", target.key),
		zap.Int("dimension", target.dim),
		zap.String("samples", humanize.Comma(int64(total))),
	)

	for point := 0; point < w.params.Points; point++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		base, err := sampler.BasePoint(target.dim)
		if err != nil {
			return fail(err)
		}
		directions := make([][]float64, w.params.Trials)
		for trial := range directions {
			if directions[trial], err = sampler.Direction(target.dim, w.params.SegmentLength); err != nil {
				return fail(fmt.Errorf("%s point %d trial %d: %w", target.key, point, trial, err))
			}
		}

		samples := make([]sample, 0, w.params.SamplesPerPoint())
		samples = append(samples, sample{segment: stats.BaseSegment})
		for trial := range directions {
			for _, fraction := range fractions {
				samples = append(samples, sample{segment: trial, trial: trial, fraction: fraction})
			}
		}
		for i := range samples {
			s := &samples[i]
			if runCtx.Err() != nil {
				s.outcome = pool.Outcome[evaluation]{Err: fmt.Errorf("%w: %w", pool.ErrCancelled, runCtx.Err())}
				continue
			}
			task := w.task(target, base, directions, *s)
			if s.handle, err = workers.Submit(task); err != nil {
				s.outcome = pool.Outcome[evaluation]{Err: fmt.Errorf("%w: %w", pool.ErrCancelled, err)}
			}
		}

		pointCancelled := 0
		for i := range samples {
			s := &samples[i]
			if s.handle != nil {
				s.outcome = s.handle.Await()
			}
			row := stats.Row{Key: target.key, Point: point, Segment: s.segment, Fitness: s.outcome.Value.fitness}
			if s.segment == stats.BaseSegment {
				row.Genotype = base
			} else if row.Genotype, err = genotype.Interpolate(base, directions[s.trial], s.fraction); err != nil {
				return fail(err)
			}
			switch {
			case s.outcome.Cancelled():
				pointCancelled++
				row.Fitness = math.NaN()
				w.metrics.ObserveEvaluation(target.key, metrics.OutcomeCancelled, 0)
			case s.outcome.Failed():
				row.Fitness = math.NaN()
				w.logger.Warn("evaluation failed",
					zap.String("key", target.key),
					zap.Int("point", point),
					zap.Int("segment", s.segment),
					zap.Float64("fraction", s.fraction),
					zap.Error(s.outcome.Err),
				)
				w.metrics.ObserveEvaluation(target.key, metrics.OutcomeFailure, 0)
			default:
				w.metrics.ObserveEvaluation(target.key, metrics.OutcomeSuccess, s.outcome.Value.elapsed)
			}
			acc.Add(row.Fitness)
			if err := w.sink.Write(row); err != nil {
				return fail(fmt.Errorf("write %s point %d: %w", target.key, point, err))
			}
		}
		w.metrics.AddRows(len(samples))
		if pointCancelled > 0 {
			cancelled += pointCancelled
			w.logger.Warn("evaluations cancelled",
				zap.String("key", target.key),
				zap.Int("point", point),
				zap.Int("cancelled", pointCancelled),
				zap.NamedError("cause", runCtx.Err()),
			)
		}

		done := (point + 1) * w.params.SamplesPerPoint()
		w.logger.Debug("point joined",
			zap.String("key", target.key),
			zap.Int("point", point),
			zap.String("progress", humanize.Comma(int64(done))+"/"+humanize.Comma(int64(total))),
		)
		if w.progress != nil {
			w.progress(Progress{
				Key:      target.key,
				Point:    point,
				Points:   w.params.Points,
				Done:     done,
				Total:    total,
				Failures: acc.Failures(),
			})
		}
	}

	if err := w.sink.EndConfiguration(); err != nil {
		return fail(fmt.Errorf("flush %s: %w", target.key, err))
	}
	cs := acc.Summarize(target.key, target.dim)
	cs.Cancelled = cancelled
	w.logger.Info("configuration done",
		zap.String("key", target.key),
		zap.String("samples", humanize.Comma(int64(cs.Samples))),
		zap.Int("failures", cs.Failures),
		zap.Float64("mean", cs.Mean),
		zap.Float64("max", cs.Max),
	)
	return cs, nil
}

// task interpolates its genotype on the worker so only the base point and
// directions are retained per point.
func (w *Walker) task(target resolved, base []float64, directions [][]float64, s sample) pool.Task[evaluation] {
	return func(ctx context.Context) (evaluation, error) {
		g := base
		if s.segment != stats.BaseSegment {
			var err error
			if g, err = genotype.Interpolate(base, directions[s.trial], s.fraction); err != nil {
				return evaluation{}, err
			}
		}
		factory, err := target.mapper.Apply(g)
		if err != nil {
			return evaluation{}, err
		}
		start := time.Now()
		fitness, err := w.evaluate(ctx, factory)
		if err != nil {
			return evaluation{}, err
		}
		if math.IsNaN(fitness) {
			return evaluation{}, ErrNaNFitness
		}
		return evaluation{fitness: fitness, elapsed: time.Since(start)}, nil
	}
}
