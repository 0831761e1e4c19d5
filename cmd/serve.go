package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gmv-tracker/internal/api"
	"github.com/sells-group/gmv-tracker/internal/insight"
	"github.com/sells-group/gmv-tracker/internal/notionsync"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		st, err := openStore(ctx, "serve")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		policy, err := defaultPolicy()
		if err != nil {
			return err
		}

		// Insight and Notion routes stay disabled until their credentials are set.
		var analyzer *insight.Analyzer
		if cfg.Anthropic.Key != "" {
			analyzer = initAnalyzer(st)
		}
		var syncer *notionsync.Syncer
		if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
			syncer = initSyncer(st)
		}

		handler := api.New(st, initService(st), analyzer, syncer, api.Options{
			Fees:        cfg.Fees.FeeSchedule,
			Policy:      policy,
			TopN:        cfg.Report.TopN,
			TrendWeeks:  cfg.Insight.TrendWeeks,
			SlidesDir:   cfg.Report.SlidesDir,
			CORSOrigins: cfg.Server.CORSOrigins,
		}).Handler()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.Bool("insights", analyzer != nil),
			zap.Bool("notion", syncer != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
