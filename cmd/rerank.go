package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/georetail/siteselect/internal/pipeline"
)

var rerankOutDir string

var rerankCmd = &cobra.Command{
	Use:   "rerank <grid.geojson>",
	Short: "Re-rank a previously exported grid under the current weights",
	Long:  "Loads an exported suitability grid and re-applies weighted aggregation, ranking, and classification without touching the original input layers. Adjust weights in config.yaml or via SITESELECT_* environment variables before running.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if rerankOutDir != "" {
			cfg.Export.OutputDir = rerankOutDir
		}

		res, err := pipeline.Rerank(ctx, cfg, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rerankCmd.Flags().StringVar(&rerankOutDir, "out", "", "output directory (overrides config)")
	rootCmd.AddCommand(rerankCmd)
}
