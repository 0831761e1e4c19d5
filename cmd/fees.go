package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/metrics"
	"github.com/sells-group/gmv-tracker/internal/model"
)

var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Manage named fee schedules",
}

var feesSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save a fee schedule from config, a fee file and rate flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fees, err := resolveFees(cmd, st)
		if err != nil {
			return err
		}
		if err := st.SaveFeeSchedule(ctx, args[0], fees); err != nil {
			return eris.Wrap(err, "fees save")
		}
		zap.L().Info("fee schedule saved", zap.String("name", args[0]))
		formatFees(os.Stdout, args[0], fees)
		return nil
	},
}

var feesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a saved fee schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fees, err := st.GetFeeSchedule(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "fees show")
		}
		formatFees(os.Stdout, args[0], *fees)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context(), "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func formatFees(out io.Writer, name string, f model.FeeSchedule) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Schedule\t%s\n", name)
	_, _ = fmt.Fprintf(w, "Commission\t%s\n", metrics.FormatPercent(f.CommissionRate, 2))
	_, _ = fmt.Fprintf(w, "Transaction\t%s\n", metrics.FormatPercent(f.TransactionRate, 2))
	_, _ = fmt.Fprintf(w, "Payment\t%s\n", metrics.FormatPercent(f.PaymentRate, 2))
	_, _ = fmt.Fprintf(w, "Target margin\t%s\n", metrics.FormatPercent(f.TargetMargin, 1))
	_ = w.Flush()
}

func init() {
	feesSaveCmd.Flags().String("fee-schedule", "", "start from another saved schedule")
	feesSaveCmd.Flags().String("fee-file", "", "start from a YAML fee schedule file")
	addFeeFlags(feesSaveCmd.Flags())

	feesCmd.AddCommand(feesSaveCmd)
	feesCmd.AddCommand(feesShowCmd)
	rootCmd.AddCommand(feesCmd)
	rootCmd.AddCommand(migrateCmd)
}
