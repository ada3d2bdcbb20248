package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/echohq/echo-agent/internal/agent"
	"github.com/echohq/echo-agent/internal/analysis"
	"github.com/echohq/echo-agent/internal/config"
	"github.com/echohq/echo-agent/internal/dispatch"
	"github.com/echohq/echo-agent/internal/feed"
	"github.com/echohq/echo-agent/internal/gitcli"
	"github.com/echohq/echo-agent/internal/llm"
	"github.com/echohq/echo-agent/internal/logging"
	"github.com/echohq/echo-agent/internal/server"
	"github.com/echohq/echo-agent/internal/storage/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline and HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ring := logging.Setup(slog.LevelInfo)
	logger := slog.Default()

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s echo-agent starting (backend: %s)\n", green("→"), cfg.LLM.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, &postgres.Config{ConnString: cfg.Database.ConnString()})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	logger.Info("database connected")

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	svc := llm.NewService(provider)
	encoder := llm.NewHTTPEncoder(cfg.Embeddings.BaseURL, cfg.Embeddings.Model)

	dispatcher := dispatch.New(store, cfg.RunnerURL, logger)
	worker := analysis.NewWorker(store, encoder, svc, dispatcher, cfg.Feed.Workers, logger)

	git, err := gitcli.New(ctx, gitcli.Options{
		CloneTimeout: cfg.Agent.CloneTimeout,
		CommitName:   cfg.Agent.CommitName,
		CommitEmail:  cfg.Agent.CommitEmail,
	})
	if err != nil {
		return fmt.Errorf("git is required: %w", err)
	}
	pr, err := gitcli.NewPRCreator()
	if err != nil {
		logger.Warn("gh CLI not found, pull request creation disabled", "error", err)
		pr = nil
	}

	orchestrator := agent.New(store, svc, git, pr, worker, agent.Config{
		WorkspaceRoot:    cfg.Agent.WorkspaceRoot,
		MaxTreeFiles:     cfg.Agent.MaxTreeFiles,
		SynthesisTimeout: cfg.LLM.SynthesisTimeout,
		StaleTaskAge:     cfg.Agent.StaleTaskAge,
	}, logger)

	subscriber := feed.NewSubscriber(cfg.Database.ConnString(), cfg.Feed.Channel, logger)
	supervisor := feed.NewSupervisor(subscriber, cfg.Feed.RestartDelay, cfg.Feed.QueueSize, logger)
	events := supervisor.Start(ctx)

	reaper := agent.NewReaper(store, cfg.Agent.StaleTaskAge, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx, events)
	}()
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	srv := server.New(server.Config{
		Addr:        cfg.HTTP.Addr,
		GenerateRPM: cfg.HTTP.GenerateRPM,
	}, store, svc, encoder, worker, orchestrator, ring, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested, draining")
	case err := <-errCh:
		stop()
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	// In-flight comment processing finishes before exit.
	wg.Wait()
	logger.Info("echo-agent stopped")
	return nil
}

// buildProvider selects the inference backend from configuration.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Backend {
	case llm.BackendLocal:
		return llm.NewLocalClient(llm.LocalConfig{
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.SynthesisTimeout,
		}), nil
	case llm.BackendAnthropic:
		client, err := llm.NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLM.AnthropicModel)
		if err != nil {
			return nil, fmt.Errorf("anthropic backend: %w", err)
		}
		return client, nil
	case llm.BackendNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown inference backend: %s", cfg.LLM.Backend)
	}
}
