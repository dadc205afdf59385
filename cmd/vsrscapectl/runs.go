package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	vsrapi "vsrscape/pkg/vsrscape"
)

func newRunsCmd(c *cli) *cobra.Command {
	var (
		limit   int
		jsonOut bool
		runID   string
		key     string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded landscape runs",
		Long: `Lists the run index, newest first. --run-id prints the stored record of
one run and --key the mean fitness of a configuration across stored runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := cmd.OutOrStdout()

			switch {
			case runID != "":
				record, err := client.RunRecord(cmd.Context(), runID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(record)
			case key != "":
				history, err := client.History(cmd.Context(), key)
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(history)
				}
				parts := make([]string, len(history))
				for i, mean := range history {
					parts[i] = fmt.Sprintf("%.6f", mean)
				}
				fmt.Fprintf(out, "config=%s runs=%d mean_fitness=[%s]\n", key, len(history), strings.Join(parts, " "))
				return nil
			}

			items, err := client.Runs(cmd.Context(), vsrapi.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				type runsItem struct {
					RunID          string `json:"run_id"`
					CreatedAtUTC   string `json:"created_at_utc"`
					Sweep          string `json:"sweep"`
					Task           string `json:"task"`
					Seed           int64  `json:"seed"`
					Configurations int    `json:"configurations"`
					Samples        int    `json:"samples"`
					Failures       int    `json:"failures"`
				}
				payload := make([]runsItem, 0, len(items))
				for _, item := range items {
					payload = append(payload, runsItem(item))
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(out, "run_id=%s created_at=%s sweep=%s task=%s seed=%d configurations=%d samples=%d failures=%d\n",
					item.RunID, item.CreatedAtUTC, item.Sweep, item.Task, item.Seed, item.Configurations, item.Samples, item.Failures)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON")
	cmd.Flags().StringVar(&runID, "run-id", "", "print the stored record of this run")
	cmd.Flags().StringVar(&key, "key", "", "print the mean fitness history of this configuration key")
	return cmd
}

func newExportCmd(c *cli) *cobra.Command {
	var req vsrapi.ExportRequest
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the files of a run to another directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.RunID != "" && req.Latest {
				return errors.New("use either --run-id or --latest, not both")
			}
			if req.RunID == "" && !req.Latest {
				return errors.New("export requires --run-id or --latest")
			}
			client, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", summary.RunID, summary.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RunID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&req.Latest, "latest", false, "export the most recent run from the run index")
	cmd.Flags().StringVar(&req.OutDir, "out", "exports", "export output directory")
	return cmd
}

func newInitConfigCmd(c *cli) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config to=%s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "vsrscape.yaml", "file to write")
	return cmd
}
