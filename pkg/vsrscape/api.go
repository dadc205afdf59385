package vsrscape

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vsrscape/internal/config"
	"vsrscape/internal/genotype"
	"vsrscape/internal/landscape"
	"vsrscape/internal/logging"
	"vsrscape/internal/metrics"
	"vsrscape/internal/model"
	"vsrscape/internal/morphology"
	"vsrscape/internal/scape"
	"vsrscape/internal/shape"
	"vsrscape/internal/stats"
	"vsrscape/internal/storage"
)

const (
	defaultOutputDir  = "landscapes"
	defaultExportsDir = "exports"
	defaultDBPath     = "vsrscape.db"

	metricsFile = "metrics.prom"

	// defaultBodyCounts are the neuron settings of a body sweep when none
	// are given.
	defaultBodyCounts = 10
)

type Options struct {
	StoreKind  string
	DBPath     string
	OutputDir  string
	ExportsDir string
	Logger     *zap.Logger
}

type Client struct {
	store  storage.Store
	logger *zap.Logger

	outputDir  string
	exportsDir string
}

// LandscapeRequest describes one sweep. Zero values select the defaults of
// config.Default, except Trials where zero samples base points only.
type LandscapeRequest struct {
	RunID string

	Sweep       string
	Topologies  []string
	Counts      []int
	Sensorizing string
	Activation  string
	StepT       float64

	Task      string
	Extractor string
	Duration  float64
	DT        float64

	Points         int
	Trials         int
	Fragmentations int
	SegmentLength  float64
	Seed           int64
	RangeMin       float64
	RangeMax       float64
	Workers        int
	Deadline       time.Duration

	Name          string
	Layout        string
	WriteGenotype bool
	Encoding      string
	Missing       string

	// MetricsTextfile receives a copy of the run metrics when set.
	MetricsTextfile string
	Progress        func(landscape.Progress)
}

type LandscapeSummary struct {
	RunID          string
	RunDir         string
	Paths          []string
	Samples        int
	Failures       int
	Cancelled      int
	Configurations []stats.ConfigurationSummary
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID          string
	CreatedAtUTC   string
	Sweep          string
	Task           string
	Seed           int64
	Configurations int
	Samples        int
	Failures       int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ShapeRequest struct {
	Topologies []string
	// Counts defaults to every rigid count of each topology.
	Counts []int
}

type ShapeItem struct {
	Topology   string
	Rigid      int
	Descriptor string
	Voxels     int
}

// ReevaluateRequest re-runs the genotypes stored in a landscape file. When
// RunID is set, unset mapper and task fields are taken from that run's
// recorded configuration.
type ReevaluateRequest struct {
	RunID  string
	Input  string
	Output string

	Sweep       string
	Sensorizing string
	Activation  string
	StepT       float64
	Task        string
	Extractor   string
	Duration    float64
	DT          float64
	Encoding    string
	Missing     string
	Workers     int
}

type ReevaluateSummary struct {
	Output   string
	Rows     int
	Failures int
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logging.OrNop(opts.Logger),
		outputDir:  outputDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// RequestFromConfig maps a run configuration onto a landscape request.
func RequestFromConfig(cfg config.Config) LandscapeRequest {
	return LandscapeRequest{
		Sweep:           cfg.Sweep.Kind,
		Topologies:      append([]string(nil), cfg.Sweep.Topologies...),
		Counts:          append([]int(nil), cfg.Sweep.Counts...),
		Sensorizing:     cfg.Sweep.Sensorizing,
		Activation:      cfg.Sweep.Activation,
		StepT:           cfg.Sweep.StepT,
		Task:            cfg.Task.Name,
		Extractor:       cfg.Task.Extractor,
		Duration:        cfg.Task.Duration,
		DT:              cfg.Task.DT,
		Points:          cfg.Sampling.Points,
		Trials:          cfg.Sampling.Trials,
		Fragmentations:  cfg.Sampling.Fragmentations,
		SegmentLength:   cfg.Sampling.SegmentLength,
		Seed:            cfg.Sampling.Seed,
		RangeMin:        cfg.Sampling.RangeMin,
		RangeMax:        cfg.Sampling.RangeMax,
		Workers:         cfg.Sampling.Workers,
		Deadline:        time.Duration(cfg.Sampling.Deadline),
		Name:            cfg.Output.Name,
		Layout:          cfg.Output.Layout,
		WriteGenotype:   cfg.Output.WriteGenotype,
		Encoding:        cfg.Output.Encoding,
		Missing:         cfg.Output.Missing,
		MetricsTextfile: cfg.Metrics.Textfile,
	}
}

// Landscape walks every configuration of the request and records the run:
// landscape files, run_config.json, summary.json and metrics.prom in the run
// directory, an entry in the run index and a record in the store.
func (c *Client) Landscape(ctx context.Context, req LandscapeRequest) (LandscapeSummary, error) {
	defaults := landscape.DefaultParams()
	if req.Points <= 0 {
		req.Points = defaults.Points
	}
	if req.Trials < 0 {
		req.Trials = defaults.Trials
	}
	if req.Fragmentations <= 0 {
		req.Fragmentations = defaults.Fragmentations
	}
	if req.SegmentLength <= 0 {
		req.SegmentLength = defaults.SegmentLength
	}
	if req.RangeMin == 0 && req.RangeMax == 0 {
		req.RangeMin, req.RangeMax = genotype.DefaultRange.Min, genotype.DefaultRange.Max
	}
	if req.Name == "" {
		req.Name = stats.DefaultName
	}
	if req.Missing == "" {
		req.Missing = stats.DefaultMissing
	}

	sweep, err := landscape.ParseSweep(req.Sweep)
	if err != nil {
		return LandscapeSummary{}, err
	}
	req.Sweep = string(sweep)
	configs, err := configurations(sweep, req.Topologies, req.Counts)
	if err != nil {
		return LandscapeSummary{}, err
	}
	mappers, err := mapperFactory(req.Sensorizing, req.Activation, req.StepT)
	if err != nil {
		return LandscapeSummary{}, err
	}
	evaluate, taskName, extractorName, err := evaluator(req.Task, req.Extractor, req.Duration, req.DT)
	if err != nil {
		return LandscapeSummary{}, err
	}
	req.Task, req.Extractor = taskName, extractorName
	layout, err := stats.ParseLayout(req.Layout)
	if err != nil {
		return LandscapeSummary{}, err
	}
	encoding, err := genotype.ParseEncoding(req.Encoding)
	if err != nil {
		return LandscapeSummary{}, err
	}

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	runDir := stats.RunDir(c.outputDir, runID)
	writer, err := stats.NewLandscapeWriter(stats.WriterOptions{
		Dir:    runDir,
		Name:   req.Name,
		Layout: layout,
		Format: stats.Format{WriteGenotype: req.WriteGenotype, Encoding: encoding, Missing: req.Missing},
	})
	if err != nil {
		return LandscapeSummary{}, err
	}

	recorder := metrics.New()
	logger := c.logger.With(zap.String("run_id", runID))
	params := landscape.Params{
		Points:         req.Points,
		Trials:         req.Trials,
		Fragmentations: req.Fragmentations,
		SegmentLength:  req.SegmentLength,
		Seed:           req.Seed,
		Range:          genotype.Range{Min: req.RangeMin, Max: req.RangeMax},
		Workers:        req.Workers,
		Deadline:       req.Deadline,
	}
	opts := []landscape.Option{landscape.WithLogger(logger), landscape.WithMetrics(recorder)}
	if req.Progress != nil {
		opts = append(opts, landscape.WithProgress(req.Progress))
	}
	walker, err := landscape.NewWalker(params, mappers, evaluate, writer, opts...)
	if err != nil {
		return LandscapeSummary{}, err
	}

	if err := stats.WriteRunConfig(c.outputDir, runID, runConfig(runID, req, configs)); err != nil {
		return LandscapeSummary{}, err
	}

	started := time.Now().UTC()
	logger.Info("landscape run started",
		zap.String("sweep", req.Sweep),
		zap.String("task", req.Task),
		zap.Int("configurations", len(configs)),
		zap.Int64("seed", req.Seed),
	)
	result, err := walker.Run(ctx, configs)
	closeErr := writer.Close()
	if err != nil {
		return LandscapeSummary{}, err
	}
	if closeErr != nil {
		return LandscapeSummary{}, fmt.Errorf("close landscape writer: %w", closeErr)
	}
	completed := time.Now().UTC()

	for i := range result.Configurations {
		if result.Configurations[i].Error == "" {
			result.Configurations[i].Path = writer.PathFor(result.Configurations[i].Key)
		}
	}
	runSummary := stats.RunSummary{
		RunID:          runID,
		StartedAtUTC:   started.Format(time.RFC3339Nano),
		CompletedAtUTC: completed.Format(time.RFC3339Nano),
		Samples:        result.Samples,
		Failures:       result.Failures,
		Configurations: result.Configurations,
	}
	if err := stats.WriteRunSummary(c.outputDir, runSummary); err != nil {
		return LandscapeSummary{}, err
	}
	if err := recorder.WriteTextfile(filepath.Join(runDir, metricsFile)); err != nil {
		return LandscapeSummary{}, err
	}
	if req.MetricsTextfile != "" {
		if err := recorder.WriteTextfile(req.MetricsTextfile); err != nil {
			return LandscapeSummary{}, err
		}
	}
	if err := stats.AppendRunIndex(c.outputDir, stats.RunIndexEntry{
		RunID:          runID,
		Sweep:          req.Sweep,
		Task:           req.Task,
		Configurations: len(result.Configurations),
		Samples:        result.Samples,
		Failures:       result.Failures,
		Seed:           req.Seed,
		Workers:        req.Workers,
		RunDir:         filepath.Clean(runDir),
		CreatedAtUTC:   runSummary.CompletedAtUTC,
	}); err != nil {
		return LandscapeSummary{}, err
	}
	if err := c.store.SaveRun(ctx, storage.Stamp(runRecord(req, runSummary, runDir))); err != nil {
		return LandscapeSummary{}, fmt.Errorf("save run %s: %w", runID, err)
	}

	logger.Info("landscape run finished",
		zap.Int("samples", result.Samples),
		zap.Int("failures", result.Failures),
		zap.Int("cancelled", result.Cancelled),
		zap.Duration("elapsed", completed.Sub(started)),
	)
	return LandscapeSummary{
		RunID:          runID,
		RunDir:         filepath.Clean(runDir),
		Paths:          writer.Paths(),
		Samples:        result.Samples,
		Failures:       result.Failures,
		Cancelled:      result.Cancelled,
		Configurations: result.Configurations,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.outputDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:          e.RunID,
			CreatedAtUTC:   e.CreatedAtUTC,
			Sweep:          e.Sweep,
			Task:           e.Task,
			Seed:           e.Seed,
			Configurations: e.Configurations,
			Samples:        e.Samples,
			Failures:       e.Failures,
		})
	}
	return out, nil
}

// RunRecord returns the stored record of a run.
func (c *Client) RunRecord(ctx context.Context, runID string) (model.RunRecord, error) {
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return record, nil
}

// History returns the mean fitness of a configuration key across stored runs,
// oldest first.
func (c *Client) History(ctx context.Context, key string) ([]float64, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("configuration key is required")
	}
	return c.store.ConfigurationHistory(ctx, key)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.outputDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRun(c.outputDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// Shapes encodes the requested topologies for every requested rigid count.
func (c *Client) Shapes(req ShapeRequest) ([]ShapeItem, error) {
	topologies, err := parseTopologies(req.Topologies)
	if err != nil {
		return nil, err
	}
	var out []ShapeItem
	for _, t := range topologies {
		counts := req.Counts
		if len(counts) == 0 {
			maxRigid, err := shape.MaxRigid(t)
			if err != nil {
				return nil, err
			}
			counts = countRange(0, maxRigid)
		}
		for _, n := range counts {
			descriptor, err := shape.Encode(t, n)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", t, n, err)
			}
			out = append(out, ShapeItem{
				Topology:   string(t),
				Rigid:      shape.CountRigid(descriptor),
				Descriptor: descriptor,
				Voxels:     shape.CountBody(descriptor),
			})
		}
	}
	return out, nil
}

// Reevaluate reads a landscape file that carries genotypes, evaluates every
// genotype again and writes the rows with their new fitness.
func (c *Client) Reevaluate(ctx context.Context, req ReevaluateRequest) (ReevaluateSummary, error) {
	if strings.TrimSpace(req.Input) == "" {
		return ReevaluateSummary{}, errors.New("input landscape file is required")
	}
	if req.RunID != "" {
		recorded, ok, err := stats.ReadRunConfig(c.outputDir, req.RunID)
		if err != nil {
			return ReevaluateSummary{}, err
		}
		if !ok {
			return ReevaluateSummary{}, fmt.Errorf("run config not found: %s", req.RunID)
		}
		req = fillFromRunConfig(req, recorded)
	}
	if req.Missing == "" {
		req.Missing = stats.DefaultMissing
	}
	if req.Output == "" {
		ext := filepath.Ext(req.Input)
		req.Output = strings.TrimSuffix(req.Input, ext) + "-reevaluated.csv"
	}
	if filepath.Ext(req.Output) != ".csv" {
		return ReevaluateSummary{}, fmt.Errorf("output must be a .csv file: %s", req.Output)
	}

	sweep, err := landscape.ParseSweep(req.Sweep)
	if err != nil {
		return ReevaluateSummary{}, err
	}
	encoding, err := genotype.ParseEncoding(req.Encoding)
	if err != nil {
		return ReevaluateSummary{}, err
	}
	mappers, err := mapperFactory(req.Sensorizing, req.Activation, req.StepT)
	if err != nil {
		return ReevaluateSummary{}, err
	}
	evaluate, _, _, err := evaluator(req.Task, req.Extractor, req.Duration, req.DT)
	if err != nil {
		return ReevaluateSummary{}, err
	}

	rows, err := stats.ReadLandscapeFile(req.Input, encoding, req.Missing)
	if err != nil {
		return ReevaluateSummary{}, err
	}
	c.logger.Info("re-evaluating landscape", zap.String("input", req.Input), zap.Int("rows", len(rows)))
	rows, failures, err := landscape.Reevaluate(ctx, rows, mappers, evaluate, landscape.ReevaluateOptions{
		Sweep:   sweep,
		Workers: req.Workers,
		Logger:  c.logger,
	})
	if err != nil {
		return ReevaluateSummary{}, err
	}

	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return ReevaluateSummary{}, err
	}
	writer, err := stats.NewLandscapeWriter(stats.WriterOptions{
		Dir:    filepath.Dir(req.Output),
		Name:   strings.TrimSuffix(filepath.Base(req.Output), ".csv"),
		Layout: stats.LayoutSingle,
		Format: stats.Format{WriteGenotype: true, Encoding: encoding, Missing: req.Missing},
	})
	if err != nil {
		return ReevaluateSummary{}, err
	}
	if err := writeRows(writer, rows); err != nil {
		_ = writer.Abort()
		return ReevaluateSummary{}, err
	}
	if err := writer.Close(); err != nil {
		return ReevaluateSummary{}, err
	}
	return ReevaluateSummary{Output: filepath.Clean(req.Output), Rows: len(rows), Failures: failures}, nil
}

func writeRows(writer *stats.LandscapeWriter, rows []stats.Row) error {
	open := ""
	for _, row := range rows {
		if row.Key != open {
			if open != "" {
				if err := writer.EndConfiguration(); err != nil {
					return err
				}
			}
			if err := writer.BeginConfiguration(row.Key); err != nil {
				return err
			}
			open = row.Key
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	if open == "" {
		return nil
	}
	return writer.EndConfiguration()
}

func fillFromRunConfig(req ReevaluateRequest, recorded stats.RunConfig) ReevaluateRequest {
	if req.Sweep == "" {
		req.Sweep = recorded.Sweep
	}
	if req.Sensorizing == "" {
		req.Sensorizing = recorded.Sensorizing
	}
	if req.Activation == "" {
		req.Activation = recorded.Activation
	}
	if req.StepT <= 0 {
		req.StepT = recorded.StepT
	}
	if req.Task == "" {
		req.Task = recorded.Task
	}
	if req.Extractor == "" {
		req.Extractor = recorded.Extractor
	}
	if req.Duration <= 0 {
		req.Duration = recorded.Duration
	}
	if req.DT <= 0 {
		req.DT = recorded.DT
	}
	if req.Encoding == "" {
		req.Encoding = recorded.Encoding
	}
	if req.Missing == "" {
		req.Missing = recorded.Missing
	}
	return req
}

// configurations expands the sweep. Without explicit counts a controller
// sweep covers every rigid count of each topology and a body sweep the
// neuron settings 1..10.
func configurations(sweep landscape.Sweep, names []string, counts []int) ([]landscape.Configuration, error) {
	topologies, err := parseTopologies(names)
	if err != nil {
		return nil, err
	}
	if len(counts) > 0 {
		return landscape.Expand(sweep, topologies, counts), nil
	}
	var out []landscape.Configuration
	for _, t := range topologies {
		switch sweep {
		case landscape.BodySweep:
			out = append(out, landscape.Expand(sweep, []shape.Topology{t}, countRange(1, defaultBodyCounts))...)
		default:
			maxRigid, err := shape.MaxRigid(t)
			if err != nil {
				return nil, err
			}
			out = append(out, landscape.Expand(sweep, []shape.Topology{t}, countRange(0, maxRigid))...)
		}
	}
	return out, nil
}

func parseTopologies(names []string) ([]shape.Topology, error) {
	if len(names) == 0 {
		return shape.Topologies(), nil
	}
	out := make([]shape.Topology, 0, len(names))
	for _, name := range names {
		t, err := shape.ParseTopology(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", landscape.ErrConfiguration, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func countRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, n)
	}
	return out
}

func mapperFactory(sensorizing, activation string, stepT float64) (landscape.MapperFactory, error) {
	sensors, err := morphology.SensorizingByName(sensorizing)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", landscape.ErrConfiguration, err)
	}
	return landscape.DefaultMappers(landscape.MapperOptions{
		Sensorizing: sensors,
		Activation:  activation,
		StepT:       stepT,
	}), nil
}

// evaluator pairs a task with its extractor on the surrogate engine and
// returns the resolved task and extractor names.
func evaluator(taskName, extractorName string, duration, dt float64) (landscape.Evaluator, string, string, error) {
	task, err := scape.TaskByName(taskName, duration)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %w", landscape.ErrConfiguration, err)
	}
	if strings.TrimSpace(extractorName) == "" {
		extractorName = scape.DefaultExtractorFor(task.Name())
	}
	extract, err := scape.ExtractorByName(extractorName)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %w", landscape.ErrConfiguration, err)
	}
	engines := scape.SurrogateFactory(scape.SurrogateConfig{DT: dt})
	return landscape.TaskEvaluator(task, engines, extract), task.Name(), extractorName, nil
}

func runConfig(runID string, req LandscapeRequest, configs []landscape.Configuration) stats.RunConfig {
	topologies := make([]string, 0, len(configs))
	counts := make([]int, 0, len(configs))
	seenTopology := make(map[shape.Topology]bool)
	seenCount := make(map[int]bool)
	for _, c := range configs {
		if !seenTopology[c.Topology] {
			seenTopology[c.Topology] = true
			topologies = append(topologies, string(c.Topology))
		}
		if !seenCount[c.Count] {
			seenCount[c.Count] = true
			counts = append(counts, c.Count)
		}
	}
	return stats.RunConfig{
		RunID:          runID,
		Sweep:          req.Sweep,
		Topologies:     topologies,
		Counts:         counts,
		Sensorizing:    req.Sensorizing,
		Activation:     req.Activation,
		StepT:          req.StepT,
		Task:           req.Task,
		Extractor:      req.Extractor,
		Duration:       req.Duration,
		DT:             req.DT,
		Points:         req.Points,
		Trials:         req.Trials,
		Fragmentations: req.Fragmentations,
		SegmentLength:  req.SegmentLength,
		Seed:           req.Seed,
		Workers:        req.Workers,
		Name:           req.Name,
		Layout:         req.Layout,
		WriteGenotype:  req.WriteGenotype,
		Encoding:       req.Encoding,
		Missing:        req.Missing,
		DeadlineMS:     req.Deadline.Milliseconds(),
	}
}

func runRecord(req LandscapeRequest, summary stats.RunSummary, runDir string) model.RunRecord {
	record := model.RunRecord{
		RunID:          summary.RunID,
		Sweep:          req.Sweep,
		Task:           req.Task,
		Seed:           req.Seed,
		Workers:        req.Workers,
		OutputDir:      filepath.Clean(runDir),
		StartedAtUTC:   summary.StartedAtUTC,
		CompletedAtUTC: summary.CompletedAtUTC,
		Samples:        summary.Samples,
		Failures:       summary.Failures,
	}
	for _, c := range summary.Configurations {
		record.Configurations = append(record.Configurations, model.ConfigurationRecord{
			Key:       c.Key,
			Dimension: c.Dimension,
			Samples:   c.Samples,
			Failures:  c.Failures,
			Cancelled: c.Cancelled,
			Min:       c.Min,
			Mean:      c.Mean,
			Max:       c.Max,
			Std:       c.Std,
			Path:      c.Path,
			Error:     c.Error,
		})
	}
	return record
}
