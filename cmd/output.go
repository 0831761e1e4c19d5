package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/export"
	"github.com/sells-group/gmv-tracker/internal/slides"
	"github.com/sells-group/gmv-tracker/internal/store"
)

var slidesCmd = &cobra.Command{
	Use:   "slides <report-id>",
	Short: "Generate a Markdown slide deck for a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deck, err := slides.Render(ctx, st, args[0], cfg.Insight.TrendWeeks)
		if err != nil {
			return eris.Wrap(err, "slides")
		}

		if toStdout, _ := cmd.Flags().GetBool("stdout"); toStdout {
			_, err := fmt.Fprint(os.Stdout, deck)
			return err
		}
		dir, _ := cmd.Flags().GetString("out")
		if dir == "" {
			dir = cfg.Report.SlidesDir
		}
		path, err := slides.Save(dir, args[0], deck)
		if err != nil {
			return eris.Wrap(err, "slides")
		}
		zap.L().Info("slides written", zap.String("path", path))
		fmt.Println(path)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export reports and top products to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		year, _ := cmd.Flags().GetInt("year")
		limit, _ := cmd.Flags().GetInt("limit")
		path, _ := cmd.Flags().GetString("out")

		reports, top, err := export.Load(ctx, st, store.ReportFilter{Year: year, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}
		if err := export.WriteXLSX(path, reports, top); err != nil {
			return eris.Wrap(err, "export")
		}
		zap.L().Info("export written", zap.String("path", path), zap.Int("reports", len(reports)))
		return nil
	},
}

func init() {
	slidesCmd.Flags().String("out", "", "output directory (default from config)")
	slidesCmd.Flags().Bool("stdout", false, "print the deck instead of writing a file")

	exportCmd.Flags().String("out", "gmv-reports.xlsx", "output workbook path")
	exportCmd.Flags().Int("year", 0, "only reports for this ISO year")
	exportCmd.Flags().Int("limit", 0, "max number of reports (default 100)")

	rootCmd.AddCommand(slidesCmd)
	rootCmd.AddCommand(exportCmd)
}
