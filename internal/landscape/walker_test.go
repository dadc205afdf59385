package landscape

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats"

	"vsrscape/internal/agent"
	"vsrscape/internal/genotype"
	"vsrscape/internal/metrics"
	"vsrscape/internal/morphology"
	"vsrscape/internal/scape"
	"vsrscape/internal/shape"
	"vsrscape/internal/stats"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type genotypeAgent struct {
	genotype []float64
}

func (genotypeAgent) Body() morphology.Body { return morphology.Body{} }

func (genotypeAgent) Act(float64, []float64) ([]float64, error) { return nil, nil }

type stubMapper struct {
	dim     int
	rejectN bool
}

func (m stubMapper) Dimension() int { return m.dim }

func (m stubMapper) Apply(g []float64) (scape.AgentFactory, error) {
	if len(g) != m.dim || m.rejectN {
		return nil, agent.ErrDimensionMismatch
	}
	g = append([]float64(nil), g...)
	return func() (scape.Agent, error) {
		return genotypeAgent{genotype: g}, nil
	}, nil
}

func stubMappers(dim int) MapperFactory {
	return func(Configuration) (agent.Mapper, error) {
		return stubMapper{dim: dim}, nil
	}
}

func sumEvaluator(ctx context.Context, factory scape.AgentFactory) (float64, error) {
	a, err := factory()
	if err != nil {
		return 0, err
	}
	return floats.Sum(a.(genotypeAgent).genotype), nil
}

func constantEvaluator(v float64) Evaluator {
	return func(context.Context, scape.AgentFactory) (float64, error) {
		return v, nil
	}
}

type memorySink struct {
	begun   []string
	rows    map[string][]stats.Row
	open    string
	pending []stats.Row
	failOn  string
	aborted int
}

func newMemorySink() *memorySink {
	return &memorySink{rows: make(map[string][]stats.Row)}
}

func (s *memorySink) BeginConfiguration(key string) error {
	if key == s.failOn {
		return errors.New("disk full")
	}
	s.begun = append(s.begun, key)
	s.open = key
	s.pending = nil
	return nil
}

func (s *memorySink) Write(row stats.Row) error {
	s.pending = append(s.pending, row)
	return nil
}

func (s *memorySink) EndConfiguration() error {
	s.rows[s.open] = s.pending
	s.pending = nil
	return nil
}

func (s *memorySink) Abort() error {
	s.aborted++
	s.pending = nil
	return nil
}

func testParams() Params {
	return Params{
		Points:         3,
		Trials:         2,
		Fragmentations: 4,
		SegmentLength:  0.5,
		Seed:           11,
		Workers:        4,
	}
}

func twoConfigs() []Configuration {
	return []Configuration{
		{Topology: shape.Biped, Sweep: ControllerSweep, Count: 0},
		{Topology: shape.Biped, Sweep: ControllerSweep, Count: 1},
	}
}

func TestWalkEmitsEveryRowInOrder(t *testing.T) {
	sink := newMemorySink()
	progress := 0
	w, err := NewWalker(testParams(), stubMappers(6), constantEvaluator(1), sink, WithProgress(func(Progress) { progress++ }))
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	summary, err := w.Run(context.Background(), twoConfigs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	const perConfig = 3 * (1 + 2*4)
	if summary.Samples != 2*perConfig || summary.Failures != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if progress != 6 {
		t.Fatalf("expected one progress call per point, got %d", progress)
	}
	for _, key := range []string{"biped:0", "biped:1"} {
		rows := sink.rows[key]
		if len(rows) != perConfig {
			t.Fatalf("%s: expected %d rows, got %d", key, perConfig, len(rows))
		}
		i := 0
		for point := 0; point < 3; point++ {
			if rows[i].Segment != stats.BaseSegment || rows[i].Point != point {
				t.Fatalf("%s: row %d should be base of point %d, got %+v", key, i, point, rows[i])
			}
			i++
			for trial := 0; trial < 2; trial++ {
				for step := 0; step < 4; step++ {
					if rows[i].Segment != trial || rows[i].Point != point || rows[i].Fitness != 1 {
						t.Fatalf("%s: row %d: unexpected %+v", key, i, rows[i])
					}
					i++
				}
			}
		}
		bases := 0
		for _, r := range rows {
			if r.Segment == stats.BaseSegment {
				bases++
			}
		}
		if bases != 3 {
			t.Fatalf("%s: expected 3 base rows, got %d", key, bases)
		}
	}
	if summary.Pool.Submitted != 2*perConfig || summary.Pool.Succeeded != 2*perConfig {
		t.Fatalf("unexpected pool stats: %+v", summary.Pool)
	}
}

func TestWalkGenotypesFollowDirections(t *testing.T) {
	sink := newMemorySink()
	params := testParams()
	w, err := NewWalker(params, stubMappers(5), sumEvaluator, sink)
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	if _, err := w.Run(context.Background(), twoConfigs()[:1]); err != nil {
		t.Fatalf("run: %v", err)
	}
	rows := sink.rows["biped:0"]
	per := params.SamplesPerPoint()
	for point := 0; point < params.Points; point++ {
		base := rows[point*per].Genotype
		for _, c := range base {
			if c < -1 || c >= 1 {
				t.Fatalf("base coordinate out of range: %f", c)
			}
		}
		for trial := 0; trial < params.Trials; trial++ {
			last := rows[point*per+1+trial*params.Fragmentations+params.Fragmentations-1]
			if d := floats.Distance(last.Genotype, base, 2); math.Abs(d-params.SegmentLength) > 1e-9 {
				t.Fatalf("point %d trial %d: end of segment at distance %f", point, trial, d)
			}
			if math.Abs(last.Fitness-floats.Sum(last.Genotype)) > 1e-12 {
				t.Fatalf("fitness does not belong to the row genotype: %+v", last)
			}
		}
	}
}

func TestWalkFailureInjection(t *testing.T) {
	var calls atomic.Int64
	failing := func(ctx context.Context, factory scape.AgentFactory) (float64, error) {
		if calls.Add(1) == 7 {
			return 0, errors.New("simulation diverged")
		}
		return 0.5, nil
	}
	core, logs := observer.New(zap.WarnLevel)
	sink := newMemorySink()
	w, err := NewWalker(testParams(), stubMappers(3), failing, sink, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	summary, err := w.Run(context.Background(), twoConfigs()[:1])
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rows := sink.rows["biped:0"]
	if len(rows) != 27 {
		t.Fatalf("expected 27 rows, got %d", len(rows))
	}
	failed := 0
	for _, r := range rows {
		switch {
		case r.Failed():
			failed++
		case r.Fitness != 0.5:
			t.Fatalf("unexpected fitness in row %+v", r)
		}
	}
	if failed != 1 || summary.Failures != 1 {
		t.Fatalf("expected exactly one failed row, got rows=%d summary=%d", failed, summary.Failures)
	}
	warnings := logs.FilterMessage("evaluation failed").All()
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(warnings))
	}
	if warnings[0].ContextMap()["key"] != "biped:0" {
		t.Fatalf("warning missing key: %+v", warnings[0].ContextMap())
	}
}

func TestWalkIsDeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) []byte {
		dir := t.TempDir()
		writer, err := stats.NewLandscapeWriter(stats.WriterOptions{
			Dir:    dir,
			Format: stats.Format{WriteGenotype: true, Encoding: genotype.EncodingText},
		})
		if err != nil {
			t.Fatalf("new writer: %v", err)
		}
		params := testParams()
		params.Workers = workers
		w, err := NewWalker(params, stubMappers(4), sumEvaluator, writer)
		if err != nil {
			t.Fatalf("new walker: %v", err)
		}
		if _, err := w.Run(context.Background(), twoConfigs()); err != nil {
			t.Fatalf("run: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("close writer: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "landscape.csv"))
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		return data
	}
	serial := run(1)
	parallel := run(8)
	if !bytes.Equal(serial, parallel) {
		t.Fatal("output differs between worker counts")
	}
	if !bytes.HasPrefix(serial, []byte("topologyKey;pointIndex;segmentIndex;genotype;fitness\n")) {
		t.Fatalf("unexpected header: %q", serial[:60])
	}
}

func TestWalkDeadlineCancelsButEmitsRows(t *testing.T) {
	blocking := func(ctx context.Context, factory scape.AgentFactory) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	params := testParams()
	params.Deadline = 30 * time.Millisecond
	sink := newMemorySink()
	w, err := NewWalker(params, stubMappers(2), blocking, sink)
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	summary, err := w.Run(context.Background(), twoConfigs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, key := range []string{"biped:0", "biped:1"} {
		rows := sink.rows[key]
		if len(rows) != 27 {
			t.Fatalf("%s: expected 27 rows, got %d", key, len(rows))
		}
		for _, r := range rows {
			if !r.Failed() {
				t.Fatalf("%s: expected every row failed, got %+v", key, r)
			}
		}
	}
	if summary.Failures != 54 || summary.Cancelled != 54 {
		t.Fatalf("unexpected summary: failures=%d cancelled=%d", summary.Failures, summary.Cancelled)
	}
}

func TestWalkRejectsConfigurationErrorsBeforeSampling(t *testing.T) {
	sink := newMemorySink()
	w, err := NewWalker(testParams(), stubMappers(2), constantEvaluator(0), sink)
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	configs := append(twoConfigs(), Configuration{Topology: "hexapod", Sweep: ControllerSweep})
	if _, err := w.Run(context.Background(), configs); !errors.Is(err, ErrConfiguration) || !errors.Is(err, shape.ErrUnknownTopology) {
		t.Fatalf("expected unknown topology configuration error, got %v", err)
	}
	if len(sink.begun) != 0 {
		t.Fatalf("expected no sampling, began %v", sink.begun)
	}

	rejecting := func(Configuration) (agent.Mapper, error) { return stubMapper{dim: 2, rejectN: true}, nil }
	w, err = NewWalker(testParams(), rejecting, constantEvaluator(0), sink)
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	if _, err := w.Run(context.Background(), twoConfigs()); !errors.Is(err, ErrConfiguration) || !errors.Is(err, agent.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch configuration error, got %v", err)
	}

	if _, err := w.Run(context.Background(), nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected error for empty configuration list, got %v", err)
	}
	dup := []Configuration{twoConfigs()[0], twoConfigs()[0]}
	if _, err := w.Run(context.Background(), dup); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected duplicate configuration error, got %v", err)
	}
}

func TestNewWalkerValidatesParams(t *testing.T) {
	bad := []Params{
		{Points: 0, Trials: 1, Fragmentations: 1, SegmentLength: 1},
		{Points: 1, Trials: 1, Fragmentations: 0, SegmentLength: 1},
		{Points: 1, Trials: 1, Fragmentations: 1, SegmentLength: 0},
		{Points: 1, Trials: -1},
		{Points: 1, Deadline: -time.Second},
	}
	for _, p := range bad {
		if _, err := NewWalker(p, stubMappers(1), constantEvaluator(0), newMemorySink()); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%+v: expected ErrConfiguration, got %v", p, err)
		}
	}
	if _, err := NewWalker(testParams(), nil, constantEvaluator(0), newMemorySink()); err == nil {
		t.Fatal("expected missing mapper factory error")
	}
}

func TestWalkContinuesAfterSinkFailure(t *testing.T) {
	sink := newMemorySink()
	sink.failOn = "biped:0"
	w, err := NewWalker(testParams(), stubMappers(2), constantEvaluator(1), sink, WithMetrics(metrics.New()))
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	summary, err := w.Run(context.Background(), twoConfigs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Configurations[0].Error == "" || summary.Configurations[0].Samples != 0 {
		t.Fatalf("expected failed first configuration, got %+v", summary.Configurations[0])
	}
	if len(sink.rows["biped:1"]) != 27 || summary.Configurations[1].Error != "" {
		t.Fatalf("expected second configuration to complete, got %d rows", len(sink.rows["biped:1"]))
	}
	if sink.aborted != 1 {
		t.Fatalf("expected one abort, got %d", sink.aborted)
	}
}

type zeroSource struct{}

func (zeroSource) Float64() float64     { return 0 }
func (zeroSource) NormFloat64() float64 { return 0 }

func TestWalkDegenerateDirectionAbortsRun(t *testing.T) {
	sink := newMemorySink()
	w, err := NewWalker(testParams(), stubMappers(3), constantEvaluator(1), sink, WithSource(zeroSource{}))
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	_, err = w.Run(context.Background(), twoConfigs())
	if !errors.Is(err, genotype.ErrDegenerateDirection) {
		t.Fatalf("expected ErrDegenerateDirection, got %v", err)
	}
	if len(sink.begun) != 1 || sink.aborted != 1 {
		t.Fatalf("expected run to stop in first configuration, began=%v aborted=%d", sink.begun, sink.aborted)
	}
}

func TestWalkStopsOnParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := newMemorySink()
	w, err := NewWalker(testParams(), stubMappers(2), constantEvaluator(1), sink, WithProgress(func(Progress) { cancel() }))
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	if _, err := w.Run(ctx, twoConfigs()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sink.begun) != 1 {
		t.Fatalf("expected walk to stop in the first configuration, began %v", sink.begun)
	}
}

func TestWalkWithSurrogateTask(t *testing.T) {
	task, err := scape.TaskByName(scape.LocomotionTask, 0.5)
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	extract, err := scape.ExtractorByName(scape.DefaultExtractorFor(scape.LocomotionTask))
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	params := Params{Points: 1, Trials: 1, Fragmentations: 2, SegmentLength: 0.5, Seed: 3, Workers: 2}
	sink := newMemorySink()
	w, err := NewWalker(params, DefaultMappers(MapperOptions{}), TaskEvaluator(task, scape.SurrogateFactory(scape.SurrogateConfig{}), extract), sink)
	if err != nil {
		t.Fatalf("new walker: %v", err)
	}
	configs := []Configuration{
		{Topology: shape.Worm, Sweep: ControllerSweep, Count: 2},
		{Topology: shape.T, Sweep: BodySweep, Count: 1},
	}
	summary, err := w.Run(context.Background(), configs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failures != 0 || summary.Samples != 6 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for _, cs := range summary.Configurations {
		if math.IsNaN(cs.Mean) || cs.Dimension == 0 {
			t.Fatalf("unexpected configuration summary: %+v", cs)
		}
	}
}
