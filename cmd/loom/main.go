package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/loomworks/loom/internal/catalog"
	"github.com/loomworks/loom/internal/codec"
	"github.com/loomworks/loom/internal/composer"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/expressions"
	"github.com/loomworks/loom/internal/logging"
	"github.com/loomworks/loom/internal/schedule"
	"github.com/loomworks/loom/internal/server"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/validation"
	"github.com/loomworks/loom/pkg/mcp"
)

func main() {
	// .env is optional; real env vars still win inside loadConfig.
	_ = godotenv.Load()
	cfg := loadConfig()

	logger := slog.New(logging.NewCorrelationHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}),
	))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("loom exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	conditions, err := expressions.ForDialect(cfg.ConditionDialect)
	if err != nil {
		return err
	}

	validator, err := validation.NewWorkflowValidator(
		validation.WithConditionChecker(expressions.NewConditionChecker(conditions)),
		validation.WithTemplateChecker(expressions.NewTemplateLinter()),
		validation.WithScheduleChecker(schedule.NewChecker()),
	)
	if err != nil {
		return err
	}

	deps := composer.Deps{
		Store:  st,
		Codec:  codec.New(validator),
		Logger: logger,
	}
	if cfg.EngineURL != "" {
		deps.Runner = engine.NewClient(cfg.EngineURL, logger)
	}
	if cfg.CatalogURL != "" {
		deps.Catalogs = catalog.NewClient(cfg.CatalogURL, logger)
	}
	svc := composer.NewService(deps)

	if cfg.MCP {
		logger.Info("loom serving MCP over stdio", "db", cfg.DBPath)
		return mcp.NewLoomServer(mcp.LoomServerDeps{Service: svc, Logger: logger}).Serve(ctx)
	}

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.NewServer(svc, logger).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("loom listening", "addr", cfg.ListenAddr, "db", cfg.DBPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpSrv.Shutdown(shutdownCtx)
}
