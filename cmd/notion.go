package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Publish reports to the Notion database",
}

var notionSyncCmd = &cobra.Command{
	Use:   "sync <report-id>",
	Short: "Create or update the Notion page for one report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "notion")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entry, err := initSyncer(st).SyncReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "notion sync")
		}
		fmt.Printf("%s page %s\n", entry.SyncType, entry.NotionPageID)
		return nil
	},
}

var notionSyncAllCmd = &cobra.Command{
	Use:   "sync-all",
	Short: "Sync every report, continuing past failures",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "notion")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sum, err := initSyncer(st).SyncAll(ctx)
		if err != nil {
			return eris.Wrap(err, "notion sync-all")
		}
		zap.L().Info("notion sync-all complete",
			zap.Int("succeeded", sum.Succeeded),
			zap.Int("failed", sum.Failed),
		)
		fmt.Printf("%d succeeded, %d failed\n", sum.Succeeded, sum.Failed)
		for id, msg := range sum.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", shortID(id), msg)
		}
		if sum.Failed > 0 {
			return eris.Errorf("%d report(s) failed to sync", sum.Failed)
		}
		return nil
	},
}

var notionStatusCmd = &cobra.Command{
	Use:   "status <report-id>",
	Short: "Show the last sync attempt for a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetReport(ctx, args[0]); err != nil {
			return eris.Wrap(err, "notion status")
		}
		status, err := initSyncer(st).Status(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "notion status")
		}
		fmt.Println(status)
		return nil
	},
}

func init() {
	notionCmd.AddCommand(notionSyncCmd)
	notionCmd.AddCommand(notionSyncAllCmd)
	notionCmd.AddCommand(notionStatusCmd)
	rootCmd.AddCommand(notionCmd)
}
