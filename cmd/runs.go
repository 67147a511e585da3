package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/georetail/siteselect/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect analysis run history",
	Long:  "Commands for listing past analysis runs and their top-ranked cells.",
}

// -- runs list --

var runsListLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, runsListLimit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs top --

var runsTopN int

var runsTopCmd = &cobra.Command{
	Use:   "top <run-id>",
	Short: "Show the top-ranked cells of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		cells, err := st.TopCells(ctx, args[0], runsTopN)
		if err != nil {
			return eris.Wrap(err, "runs top")
		}
		if len(cells) == 0 {
			fmt.Fprintln(os.Stderr, "No cells found for that run.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tCELL\tSCORE\tCLASS\tUNDERSERVED")
		for _, c := range cells {
			fmt.Fprintf(w, "%d\t%d\t%.2f\t%s\t%v\n",
				c.Rank, c.CellID, c.Score, c.Class, c.Underserved)
		}
		return w.Flush()
	},
}

func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTUDY AREA\tCELLS\tMEAN\tMAX\tGAPS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%d\t%s\n",
			r.ID, r.StudyArea, r.CellCount, r.MeanScore, r.MaxScore,
			r.Underserved, r.CreatedAt.Local().Format(time.RFC3339))
	}
	w.Flush()
}

func init() {
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 20, "maximum runs to list")
	runsTopCmd.Flags().IntVar(&runsTopN, "n", 10, "number of cells to show")
	runsCmd.AddCommand(runsListCmd, runsTopCmd)
	rootCmd.AddCommand(runsCmd)
}
