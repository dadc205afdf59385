package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	vsrapi "vsrscape/pkg/vsrscape"
)

func newShapeCmd(c *cli) *cobra.Command {
	var (
		req     vsrapi.ShapeRequest
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "shape",
		Short: "Print the body descriptors of topologies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.client(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Shapes(req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				type shapeItem struct {
					Topology   string `json:"topology"`
					Rigid      int    `json:"rigid"`
					Descriptor string `json:"descriptor"`
					Voxels     int    `json:"voxels"`
				}
				payload := make([]shapeItem, 0, len(items))
				for _, item := range items {
					payload = append(payload, shapeItem(item))
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}
			for _, item := range items {
				fmt.Fprintf(out, "topology=%s rigid=%d voxels=%d shape=%s\n", item.Topology, item.Rigid, item.Voxels, item.Descriptor)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&req.Topologies, "topology", nil, "topologies to encode (default: all)")
	cmd.Flags().IntSliceVar(&req.Counts, "counts", nil, "rigid counts (default: every count)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit JSON")
	return cmd
}
