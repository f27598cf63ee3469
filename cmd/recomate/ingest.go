package main

import (
	"fmt"
	"os"

	"github.com/sandevgo/recomate/internal/service/catalog"
	"github.com/sandevgo/recomate/internal/service/ui"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:          "ingest [catalog.yaml]",
	Short:        "Load products, relations and reviews from a catalog file",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx, os.Stderr)
		defer flushLog()

		file, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}

		c, err := newComponents(ctx)
		if err != nil {
			return err
		}
		defer c.close(ctx)

		report, err := c.ingester().Ingest(ctx, file)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.TitleStyle.Render("Catalog ingested"))
		fmt.Fprintf(out, "  products   %d\n  relations  %d\n  reviews    %d\n  chunks     %d\n",
			report.Products, report.Relations, report.Reviews, report.Chunks)
		if report.Skipped > 0 {
			fmt.Fprintln(out, ui.FlagStyle.Render(fmt.Sprintf("  skipped    %d unreadable reviews", report.Skipped)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
