package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"RefurbTracker/internal/config"
	"RefurbTracker/internal/extraction"
	"RefurbTracker/internal/infrastructure/fetcher"
	"RefurbTracker/internal/infrastructure/parser"
	"RefurbTracker/internal/infrastructure/storage"
	"RefurbTracker/internal/infrastructure/webhook"
	"RefurbTracker/internal/logging"
	"RefurbTracker/internal/normalize"
	"RefurbTracker/internal/ports"
	"RefurbTracker/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	pipeline *usecase.Pipeline
	pool     *pgxpool.Pool
	logger   *slog.Logger
}

// New builds a runnable application. The Postgres mirror is attached only
// when a DSN is configured; a failed connection disables it with a warning.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	sites := make([]usecase.Site, 0, len(cfg.Sites))
	for _, sc := range cfg.Sites {
		target, err := extraction.CompileTarget(sc.ProductType, sc.ProductPattern)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", sc.Name, err)
		}
		extractor, err := parser.NewSiteExtractor(target, sc.BootstrapVariable, sc.Strategies, baseLogger.With("component", "extractor", "site", sc.Name))
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", sc.Name, err)
		}
		sites = append(sites, usecase.Site{
			Name:      sc.Name,
			URL:       sc.URL,
			Source:    sc.Source,
			Label:     sc.Label,
			Extractor: extractor,
			Store:     storage.NewJSONStore(sc.HistoryPath, sc.Source, baseLogger.With("component", "store", "site", sc.Name)),
		})
	}

	application := &Application{cfg: cfg, logger: baseLogger}

	var mirror ports.HistoryMirror
	if cfg.Database.DSN != "" {
		pool, err := storage.ConnectPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			baseLogger.Warn("postgres mirror disabled", "error", err)
		} else {
			pm := storage.NewPostgresMirror(pool, baseLogger.With("component", "mirror"))
			if err := pm.EnsureSchema(ctx); err != nil {
				baseLogger.Warn("postgres mirror disabled", "error", err)
				pool.Close()
			} else {
				application.pool = pool
				mirror = pm
			}
		}
	}

	application.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Sites: sites,
		Fetcher: fetcher.NewHTTPFetcher(nil, fetcher.Options{
			Timeout:           cfg.HTTP.Timeout,
			UserAgent:         cfg.HTTP.UserAgent,
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		}, baseLogger.With("component", "fetcher")),
		Observer: normalize.NewDefault(),
		Mirror:   mirror,
		Notifier: webhook.NewNotifier(cfg.Notifications.Webhook.URL, os.Stdout, baseLogger.With("component", "notifier")),
		Location: cfg.Location(),
		Out:      os.Stdout,
		Logger:   baseLogger.With("component", "pipeline"),
	})

	return application, nil
}

// Run performs a single tracking pass over every configured site.
func (a *Application) Run(ctx context.Context) error {
	if a.pipeline == nil {
		return nil
	}
	_, err := a.pipeline.Run(ctx, time.Now())
	return err
}

// Close releases the database pool, if any.
func (a *Application) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
