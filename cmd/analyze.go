package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <report-id>",
	Short: "Generate AI insights for a report",
	Long:  "Asks every configured provider for trends, recommendations and a next-week forecast, then stores the answers with the report.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "analyze")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		regenerate, _ := cmd.Flags().GetBool("regenerate")
		rawTypes, _ := cmd.Flags().GetStringSlice("type")
		types := make([]model.AnalysisType, 0, len(rawTypes))
		for _, t := range rawTypes {
			switch at := model.AnalysisType(t); at {
			case model.AnalysisTrends, model.AnalysisRecommendations, model.AnalysisPrediction:
				types = append(types, at)
			default:
				return eris.Errorf("unknown analysis type %q", t)
			}
		}

		recs, err := initAnalyzer(st).Analyze(ctx, args[0], regenerate, types...)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		zap.L().Info("analysis complete", zap.String("report_id", args[0]), zap.Int("recommendations", len(recs)))
		formatRecommendations(os.Stdout, recs)
		return nil
	},
}

// formatRecommendations prints each recommendation under a heading.
func formatRecommendations(out io.Writer, recs []model.Recommendation) {
	for i, r := range recs {
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		_, _ = fmt.Fprintf(out, "## %s [%s]\n\n%s\n", r.Title, r.Provider, r.Content)
	}
}

func init() {
	analyzeCmd.Flags().Bool("regenerate", false, "discard stored insights and ask the providers again")
	analyzeCmd.Flags().StringSlice("type", nil, "analysis types to run: trends, recommendations, prediction (default all)")
	rootCmd.AddCommand(analyzeCmd)
}
