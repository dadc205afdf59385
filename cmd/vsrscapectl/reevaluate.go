package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	vsrapi "vsrscape/pkg/vsrscape"
)

func newReevaluateCmd(c *cli) *cobra.Command {
	var req vsrapi.ReevaluateRequest
	cmd := &cobra.Command{
		Use:   "reevaluate",
		Short: "Evaluate the genotypes of a landscape file again",
		Long: `Reads a landscape file written with the genotype column, evaluates every
stored genotype again and writes the rows with the new fitness.

With --run-id the sweep, task and encoding recorded for that run are used
unless given explicitly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Input == "" {
				return errors.New("reevaluate requires --in")
			}
			client, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Reevaluate(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reevaluated rows=%s failures=%s out=%s\n",
				humanize.Comma(int64(summary.Rows)),
				humanize.Comma(int64(summary.Failures)),
				summary.Output,
			)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&req.Input, "in", "", "landscape file to read")
	fs.StringVar(&req.Output, "out", "", "file to write (default: <in>-reevaluated.csv)")
	fs.StringVar(&req.RunID, "run-id", "", "take unset settings from this run's recorded configuration")
	fs.StringVar(&req.Sweep, "sweep", "", "sweep kind the file was sampled with (controller|body)")
	fs.StringVar(&req.Sensorizing, "sensorizing", "", "sensorizing function (standard|none)")
	fs.StringVar(&req.Activation, "activation", "", "MLP activation function")
	fs.StringVar(&req.Task, "task", "", "task (locomotion|jumping)")
	fs.StringVar(&req.Extractor, "extractor", "", "fitness extractor (x-velocity|max-height)")
	fs.Float64Var(&req.Duration, "duration", 0, "simulated seconds per evaluation")
	fs.StringVar(&req.Encoding, "encoding", "", "genotype encoding of the file (text|base64)")
	fs.StringVar(&req.Missing, "missing", "", "marker used for failed evaluations")
	fs.IntVar(&req.Workers, "workers", 0, "concurrent evaluations (0 = all CPUs)")
	return cmd
}
