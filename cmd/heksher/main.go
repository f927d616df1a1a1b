package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/biocatchltd/heksher/migrations"
	"github.com/biocatchltd/heksher/modules/contextfeatures"
	"github.com/biocatchltd/heksher/modules/rules"
	"github.com/biocatchltd/heksher/modules/settings"
	"github.com/biocatchltd/heksher/pkg/config"
	"github.com/biocatchltd/heksher/pkg/httpserver"
	"github.com/biocatchltd/heksher/pkg/logger"
	"github.com/biocatchltd/heksher/pkg/pg"
	"github.com/biocatchltd/heksher/pkg/requestid"
)

type appConfig struct {
	Env string `env:"APP_ENV" envDefault:"development"`

	// ExpectedContextFeatures is the comma-separated hierarchy the registry
	// is reconciled against at startup. ExpectedFeaturesFile points at a
	// YAML file with the same list and takes precedence when set.
	ExpectedContextFeatures []string `env:"EXPECTED_CONTEXT_FEATURES"`
	ExpectedFeaturesFile    string   `env:"EXPECTED_FEATURES_FILE"`
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var appCfg appConfig
	var pgCfg pg.Config
	var httpCfg httpserver.Config
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&httpCfg)

	log := logger.New(
		logger.WithEnvironment(appCfg.Env, "heksher"),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, migrations.FS, log); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	expected, err := expectedFeatures(appCfg)
	if err != nil {
		return fmt.Errorf("load expected context features: %w", err)
	}

	features := contextfeatures.NewStore(pool)
	if len(expected) > 0 {
		if err := features.ReconcileStartup(ctx, expected); err != nil {
			if errors.Is(err, contextfeatures.ErrConfigurationMismatch) {
				log.ErrorContext(ctx, "registry does not match expected context features", logger.Error(err))
			}
			return fmt.Errorf("reconcile context features: %w", err)
		}
		log.InfoContext(ctx, "context feature registry ready", "features", len(expected))
	}

	settingStore := settings.NewStore(pool)
	ruleStore := rules.NewStore(pool)
	reconciler := settings.NewReconciler(settingStore, ruleStore, features, log)
	ruleService := rules.NewService(ruleStore, settingStore, features, log)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log, pg.Healthcheck(pool)))
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/context-features", contextfeatures.Router(features, log))
		r.Mount("/settings", settings.Router(reconciler, settingStore, log))
		r.Mount("/rules", rules.Router(ruleService, ruleStore, log))
	})

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	log.InfoContext(ctx, "starting http server", "addr", httpCfg.Addr)
	return srv.Run(ctx, r)
}

// expectedFeatures resolves the startup hierarchy. A YAML file wins over the
// env list; an empty result skips startup reconciliation entirely.
func expectedFeatures(cfg appConfig) ([]string, error) {
	if cfg.ExpectedFeaturesFile == "" {
		return cfg.ExpectedContextFeatures, nil
	}
	raw, err := os.ReadFile(cfg.ExpectedFeaturesFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfg.ExpectedFeaturesFile, err)
	}
	var doc struct {
		ContextFeatures []string `yaml:"context_features"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfg.ExpectedFeaturesFile, err)
	}
	return doc.ContextFeatures, nil
}
