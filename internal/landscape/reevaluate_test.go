package landscape

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/floats"

	"vsrscape/internal/scape"
	"vsrscape/internal/stats"
)

func TestReevaluateRecomputesFitness(t *testing.T) {
	rows := []stats.Row{
		{Key: "worm:0", Point: 0, Segment: stats.BaseSegment, Genotype: []float64{1, 2}, Fitness: 99},
		{Key: "worm:0", Point: 0, Segment: 0, Genotype: []float64{-1, 0.5}, Fitness: math.NaN()},
		{Key: "biped:3", Point: 1, Segment: 1, Genotype: []float64{0.25, 0.25}, Fitness: 0},
	}
	got, failures, err := Reevaluate(context.Background(), rows, stubMappers(2), sumEvaluator, ReevaluateOptions{Workers: 2})
	if err != nil {
		t.Fatalf("reevaluate: %v", err)
	}
	if failures != 0 || len(got) != len(rows) {
		t.Fatalf("unexpected result: failures=%d rows=%d", failures, len(got))
	}
	for i, r := range got {
		if r.Fitness != floats.Sum(rows[i].Genotype) || r.Key != rows[i].Key || r.Point != rows[i].Point {
			t.Fatalf("row %d: unexpected %+v", i, r)
		}
	}
	if rows[0].Fitness != 99 {
		t.Fatal("input rows must not be modified")
	}
}

func TestReevaluateReportsFailures(t *testing.T) {
	boom := func(ctx context.Context, factory scape.AgentFactory) (float64, error) {
		return 0, errors.New("boom")
	}
	core, logs := observer.New(zap.WarnLevel)
	rows := []stats.Row{{Key: "t:1", Genotype: []float64{0}}}
	got, failures, err := Reevaluate(context.Background(), rows, stubMappers(1), boom, ReevaluateOptions{Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("reevaluate: %v", err)
	}
	if failures != 1 || !got[0].Failed() {
		t.Fatalf("expected failed row, got failures=%d row=%+v", failures, got[0])
	}
	if logs.FilterMessage("re-evaluation failed").Len() != 1 {
		t.Fatalf("expected one warning, got %d", logs.Len())
	}
}

func TestReevaluateRejectsRowsWithoutGenotype(t *testing.T) {
	rows := []stats.Row{{Key: "t:1"}}
	if _, _, err := Reevaluate(context.Background(), rows, stubMappers(1), sumEvaluator, ReevaluateOptions{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	rows = []stats.Row{{Key: "bogus", Genotype: []float64{1}}}
	if _, _, err := Reevaluate(context.Background(), rows, stubMappers(1), sumEvaluator, ReevaluateOptions{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for bad key, got %v", err)
	}
}
