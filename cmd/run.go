package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/georetail/siteselect/internal/pipeline"
)

var (
	runBoundary string
	runOutDir   string
	runCellSize float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full suitability analysis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if runBoundary != "" {
			cfg.Inputs.BoundaryPath = runBoundary
		}
		if runOutDir != "" {
			cfg.Export.OutputDir = runOutDir
		}
		if runCellSize > 0 {
			cfg.Grid.CellSizeM = runCellSize
		}

		res, err := pipeline.Run(ctx, cfg)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	runCmd.Flags().StringVar(&runBoundary, "boundary", "", "study area boundary file (overrides config)")
	runCmd.Flags().StringVar(&runOutDir, "out", "", "output directory (overrides config)")
	runCmd.Flags().Float64Var(&runCellSize, "cell-size", 0, "grid cell size in meters (overrides config)")
	rootCmd.AddCommand(runCmd)
}
