package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/contracts-desk/internal/archive"
	"github.com/joseph-ayodele/contracts-desk/internal/classify"
	"github.com/joseph-ayodele/contracts-desk/internal/common"
	"github.com/joseph-ayodele/contracts-desk/internal/convergence"
	"github.com/joseph-ayodele/contracts-desk/internal/docstore"
	"github.com/joseph-ayodele/contracts-desk/internal/export"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/extract/openai"
	"github.com/joseph-ayodele/contracts-desk/internal/render"
	"github.com/joseph-ayodele/contracts-desk/internal/schema"
	"github.com/joseph-ayodele/contracts-desk/internal/server"
	"github.com/joseph-ayodele/contracts-desk/internal/session"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("main.config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := archive.Open(ctx, cfg.Archive, logger)
	if err != nil {
		logger.Error("main.archive_open_failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("main.archive_close_failed", "error", err)
		}
	}()
	if err := store.Init(); err != nil {
		logger.Error("main.archive_init_failed", "error", err)
		os.Exit(1)
	}
	if err := store.HealthCheck(ctx, cfg.Archive.DialTimeout); err != nil {
		logger.Error("main.archive_health_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("main.archive_ok", "driver", cfg.Archive.Driver)

	validator := schema.NewValidator(schema.DefaultRegistry())

	capability := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, validator, logger)

	adapter := extract.NewAdapter(capability, validator, extract.Config{
		Retries:        cfg.Workflow.ExtractRetries,
		Timeout:        cfg.Workflow.ExtractTimeout,
		BackoffInitial: cfg.Workflow.BackoffInitial,
	}, logger)

	classifier := classify.NewLLMClassifier(classify.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	renderer := render.NewHTTPRenderer(render.Config{
		BaseURL: cfg.Render.BaseURL,
		Timeout: cfg.Render.Timeout,
		OutDir:  cfg.Docs.RootDir,
	}, logger)

	tracker := convergence.NewTracker(convergence.Config{MaxIterations: cfg.Workflow.MaxIterations})

	docs := docstore.NewStore(logger)
	registry := session.NewRegistry(docs, session.Deps{
		Adapter:    adapter,
		Validator:  validator,
		Classifier: classifier,
		Renderer:   renderer,
		Tracker:    tracker,
		Archive:    store,
		Log:        logger,
	})

	svc := server.NewService(registry, docs, validator, export.NewService(logger), logger)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: svc.Router(),
	}

	go func() {
		logger.Info("main.http_serving", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("main.http_serve_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("main.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("main.shutdown_failed", "error", err)
	}
	logger.Info("main.stopped")
}
