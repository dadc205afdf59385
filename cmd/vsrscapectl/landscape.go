package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"vsrscape/internal/config"
	"vsrscape/internal/landscape"
	vsrapi "vsrscape/pkg/vsrscape"
)

type landscapeFlags struct {
	runID          string
	sweep          string
	topologies     []string
	counts         []int
	sensorizing    string
	activation     string
	task           string
	extractor      string
	duration       float64
	points         int
	trials         int
	fragmentations int
	segmentLength  float64
	seed           int64
	workers        int
	deadline       time.Duration
	layout         string
	genotype       bool
	encoding       string
	missing        string
	name           string
	metrics        string
}

func newLandscapeCmd(c *cli) *cobra.Command {
	f := &landscapeFlags{}
	cmd := &cobra.Command{
		Use:   "landscape",
		Short: "Sample the fitness landscape of a sweep",
		Long: `Samples base points and fragmented directional walks for every configuration
of the sweep and writes one row per evaluated genotype.

Flags override the values of --config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg
			f.apply(cmd.Flags(), &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			client, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			req := vsrapi.RequestFromConfig(cfg)
			req.RunID = f.runID
			req.Progress = func(p landscape.Progress) {
				if p.Point+1 == p.Points {
					c.logger.Info("configuration sampled",
						zap.String("key", p.Key),
						zap.String("done", humanize.Comma(int64(p.Done))+"/"+humanize.Comma(int64(p.Total))),
					)
				}
			}
			summary, err := client.Landscape(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, cs := range summary.Configurations {
				if cs.Error != "" {
					fmt.Fprintf(out, "config=%s error=%q\n", cs.Key, cs.Error)
					continue
				}
				fmt.Fprintf(out, "config=%s dim=%d samples=%d failures=%d mean=%.6f min=%.6f max=%.6f\n",
					cs.Key, cs.Dimension, cs.Samples, cs.Failures, cs.Mean, cs.Min, cs.Max)
			}
			fmt.Fprintf(out, "run_id=%s samples=%s failures=%s cancelled=%s dir=%s\n",
				summary.RunID,
				humanize.Comma(int64(summary.Samples)),
				humanize.Comma(int64(summary.Failures)),
				humanize.Comma(int64(summary.Cancelled)),
				summary.RunDir,
			)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.runID, "run-id", "", "run id (default: random uuid)")
	fs.StringVar(&f.sweep, "sweep", "", "sweep kind (controller|body)")
	fs.StringSliceVar(&f.topologies, "topology", nil, "topologies to sweep (biped|worm|t|plus)")
	fs.IntSliceVar(&f.counts, "counts", nil, "rigid counts or neuron settings (default: full range)")
	fs.StringVar(&f.sensorizing, "sensorizing", "", "sensorizing function (standard|none)")
	fs.StringVar(&f.activation, "activation", "", "MLP activation function")
	fs.StringVar(&f.task, "task", "", "task (locomotion|jumping)")
	fs.StringVar(&f.extractor, "extractor", "", "fitness extractor (x-velocity|max-height)")
	fs.Float64Var(&f.duration, "duration", 0, "simulated seconds per evaluation")
	fs.IntVar(&f.points, "points", 0, "base points per configuration")
	fs.IntVar(&f.trials, "trials", 0, "directions per base point")
	fs.IntVar(&f.fragmentations, "fragmentations", 0, "steps per direction")
	fs.Float64Var(&f.segmentLength, "segment-length", 0, "euclidean length of each direction")
	fs.Int64Var(&f.seed, "seed", 0, "random seed")
	fs.IntVar(&f.workers, "workers", 0, "concurrent evaluations (0 = all CPUs)")
	fs.DurationVar(&f.deadline, "deadline", 0, "wall-clock budget for the run, e.g. 30m (0 = none)")
	fs.StringVar(&f.layout, "layout", "", "output layout (single|per-configuration)")
	fs.BoolVar(&f.genotype, "genotype", false, "write the genotype column")
	fs.StringVar(&f.encoding, "encoding", "", "genotype encoding (text|base64)")
	fs.StringVar(&f.missing, "missing", "", "marker written for failed evaluations")
	fs.StringVar(&f.name, "name", "", "landscape file name prefix")
	fs.StringVar(&f.metrics, "metrics-textfile", "", "also write prometheus metrics to this file")
	return cmd
}

// apply copies every flag the user set onto cfg.
func (f *landscapeFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	overrides := map[string]func(){
		"sweep":            func() { cfg.Sweep.Kind = f.sweep },
		"topology":         func() { cfg.Sweep.Topologies = f.topologies },
		"counts":           func() { cfg.Sweep.Counts = f.counts },
		"sensorizing":      func() { cfg.Sweep.Sensorizing = f.sensorizing },
		"activation":       func() { cfg.Sweep.Activation = f.activation },
		"task":             func() { cfg.Task.Name = f.task },
		"extractor":        func() { cfg.Task.Extractor = f.extractor },
		"duration":         func() { cfg.Task.Duration = f.duration },
		"points":           func() { cfg.Sampling.Points = f.points },
		"trials":           func() { cfg.Sampling.Trials = f.trials },
		"fragmentations":   func() { cfg.Sampling.Fragmentations = f.fragmentations },
		"segment-length":   func() { cfg.Sampling.SegmentLength = f.segmentLength },
		"seed":             func() { cfg.Sampling.Seed = f.seed },
		"workers":          func() { cfg.Sampling.Workers = f.workers },
		"deadline":         func() { cfg.Sampling.Deadline = config.Duration(f.deadline) },
		"layout":           func() { cfg.Output.Layout = f.layout },
		"genotype":         func() { cfg.Output.WriteGenotype = f.genotype },
		"encoding":         func() { cfg.Output.Encoding = f.encoding },
		"missing":          func() { cfg.Output.Missing = f.missing },
		"name":             func() { cfg.Output.Name = f.name },
		"metrics-textfile": func() { cfg.Metrics.Textfile = f.metrics },
	}
	fs.Visit(func(flag *pflag.Flag) {
		if set, ok := overrides[flag.Name]; ok {
			set()
		}
	})
}
