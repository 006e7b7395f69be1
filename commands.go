package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/quality-check/internal/config"
	"github.com/example/quality-check/internal/logging"
	"github.com/example/quality-check/internal/metrics"
)

// runFunc is the body of a command once configuration, logging and the
// shared collaborators are in place.
type runFunc func(ctx context.Context, cmd *cobra.Command, a *app) error

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quality-check",
		Short:         "Classify stored product images and keep a history of the results.",
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.AddCommand(newServeCmd(), newAnalyzeCmd(), newHistoryCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, _ *cobra.Command, a *app) error {
			if !a.cfg.AuthEnabled() {
				a.logger.Warn("AUTH_JWT_SECRET not set, API routes are unauthenticated")
			}
			gin.SetMode(gin.ReleaseMode)

			server := &http.Server{
				Addr:    a.cfg.HTTPAddr,
				Handler: newRouter(a, metrics.New()),
			}
			a.logger.Info("quality check API listening", zap.String("addr", a.cfg.HTTPAddr))
			return serveHTTPServer(server, a.cfg.ShutdownTimeout, a.logger)
		}),
	}
}

func newAnalyzeCmd() *cobra.Command {
	var imageKey string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify one stored image and record the result",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app) error {
			_, record, err := a.analysis.Analyze(ctx, imageKey)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"imageKey":   record.ImageKey,
				"status":     record.Status,
				"confidence": record.Confidence.String(),
				"imageUrl":   record.ImageURL,
			})
		}),
	}
	cmd.Flags().StringVar(&imageKey, "image-key", "", "object key of the image to classify")
	_ = cmd.MarkFlagRequired("image-key")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		summary bool
		output  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print every recorded analysis, newest first",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			var err error
			output, err = validateOutput(output)
			return err
		},
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app) error {
			w := cmd.OutOrStdout()
			if summary {
				s, err := a.history.Summary(ctx)
				if err != nil {
					return err
				}
				if output == outputTable {
					return writeSummaryTable(w, s)
				}
				return writeJSON(w, s)
			}

			items, err := a.history.History(ctx)
			if err != nil {
				return err
			}
			if output == outputTable {
				return writeHistoryTable(w, items)
			}
			return writeJSON(w, map[string]any{"items": items})
		}),
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print aggregate counts instead of the records")
	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "output format: json or table")
	return cmd
}

// withApp loads configuration, builds the logger and the collaborators, runs
// fn and releases everything afterwards.
func withApp(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := logging.NewLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			logger.Error("startup failed", zap.Error(err))
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("failed to close connections", zap.Error(err))
			}
		}()

		return fn(ctx, cmd, a)
	}
}
