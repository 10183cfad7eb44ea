package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/scrapeflow/internal/config"
	"github.com/petrijr/scrapeflow/internal/engine"
	"github.com/petrijr/scrapeflow/internal/persistence"
	"github.com/petrijr/scrapeflow/internal/scraper"
	"github.com/petrijr/scrapeflow/internal/server"
	"github.com/petrijr/scrapeflow/pkg/api"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the workflow engine",
		Long: `Start the HTTP API and the workflow engine.

Routes:
  POST /scrape                   start a ScraperWorkflow run
  GET  /message/{id}             stream a run as Server-Sent Events
  GET  /message/{id}/ws          stream a run over WebSocket
  GET  /message/{id}/history     recorded events of a run
  GET  /runs/{id}                run snapshot
  GET  /metrics                  engine counters`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, app)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides http.addr)")
	_ = app.Loader.Viper().BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, cfg config.Config, app *App) error {
	logger, err := newLogger(cfg.Log, app.Err)
	if err != nil {
		return err
	}

	store, closeStore, err := persistence.Open(ctx, cfg.History.Backend, cfg.History.DSN)
	if err != nil {
		return fmt.Errorf("open history backend: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("close history backend", slog.Any("error", err))
		}
	}()

	metrics := &api.BasicMetrics{}
	eng := engine.NewEngine(engine.Config{
		Observer:     api.NewCompositeObserver(api.NewLoggingObserver(logger), metrics),
		Events:       store,
		Workers:      cfg.Engine.Workers,
		BufferSize:   cfg.Engine.BufferSize,
		RunRetention: cfg.Engine.RunRetention,
		Logger:       logger,
	})

	err = scraper.Register(eng, scraper.Config{
		TechCrunchURL: cfg.Scraper.TechCrunchURL,
		GoogleNewsURL: cfg.Scraper.GoogleNewsURL,
		Timeout:       cfg.Scraper.Timeout,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("register workflows: %w", err)
	}

	srv := server.New(eng, server.Options{
		Addr:           cfg.HTTP.Addr,
		TriggerRate:    cfg.HTTP.TriggerRate,
		TriggerBurst:   cfg.HTTP.TriggerBurst,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        metrics,
		Logger:         logger,
	})

	logger.Info("starting scrapeflow",
		slog.String("version", Version),
		slog.String("addr", cfg.HTTP.Addr),
		slog.String("history", cfg.History.Backend),
		slog.Int("workers", cfg.Engine.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := eng.Close(shutdownCtx); err != nil {
			logger.Warn("engine did not drain before shutdown", slog.Any("error", err))
		}
		return nil
	})

	err = g.Wait()
	logger.Info("scrapeflow stopped")
	return err
}
