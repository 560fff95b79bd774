// Command sgragent runs the agent runtime behind the OpenAI-compatible HTTP
// surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"

	"github.com/sgrlabs/sgragent/agent"
	"github.com/sgrlabs/sgragent/config"
	"github.com/sgrlabs/sgragent/core"
	"github.com/sgrlabs/sgragent/logging"
	"github.com/sgrlabs/sgragent/model"
	"github.com/sgrlabs/sgragent/model/anthropic"
	"github.com/sgrlabs/sgragent/model/openai"
	"github.com/sgrlabs/sgragent/runner"
	"github.com/sgrlabs/sgragent/server"
	"github.com/sgrlabs/sgragent/session"
	"github.com/sgrlabs/sgragent/tool"
)

const defaultInstructions = `You are a research assistant working in {{.WorkingDirectory}} on {{.Date}}.
Reason before every action. Ask for clarification at most once, and only when
the task cannot proceed without it. Cite the sources you used in your final
answer.`

func main() {
	configPath := flag.String("config", "sgragent.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is a development convenience; a missing file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logLevel(cfg.Logging.Level),
		Format:    "json",
		Output:    os.Stdout,
		Component: "sgragent",
	})

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		logger.Error("store init failed", "error", err.Error())
		os.Exit(1)
	}
	defer closeStore()

	agents, err := buildAgents(cfg, buildGateway(cfg), logger)
	if err != nil {
		logger.Error("agent init failed", "error", err.Error())
		os.Exit(1)
	}

	run := runner.New(store, agents, func(o *runner.Options) { o.Logger = logger })
	srv := server.New(run, func(o *server.Options) { o.Logger = logger })

	httpSrv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     srv.Routes(),
		ReadTimeout: 30 * time.Second,
		// streaming responses stay open for the whole run
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr, "provider", cfg.Gateway.Provider, "model", cfg.Gateway.Model)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err.Error())
	}
}

func buildStore(cfg *config.Config) (core.SessionStore, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		store, err := session.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return session.NewInMemoryStore(), func() {}, nil
	}
}

func buildGateway(cfg *config.Config) model.Gateway {
	switch cfg.Gateway.Provider {
	case "anthropic":
		return anthropic.NewGateway(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Gateway.Model)
			o.Temperature = cfg.Gateway.Temperature
			o.MaxTokens = int64(cfg.Gateway.MaxTokens)
			o.APIKey = cfg.Gateway.APIKey
		})
	default:
		return openai.NewGateway(func(o *openai.Options) {
			o.Model = cfg.Gateway.Model
			o.Temperature = cfg.Gateway.Temperature
			o.MaxCompletionTokens = int64(cfg.Gateway.MaxTokens)
			o.BaseURL = cfg.Gateway.BaseURL
			o.APIKey = cfg.Gateway.APIKey
		})
	}
}

func buildAgents(cfg *config.Config, gateway model.Gateway, logger logging.Logger) (map[string]*agent.Agent, error) {
	registry, err := tool.NewRegistry(
		tool.NewReasoningTool(),
		tool.NewClarificationTool(),
		tool.NewFinalAnswerTool(),
		tool.NewSessionStatusTool(),
	)
	if err != nil {
		return nil, err
	}

	agents := make(map[string]*agent.Agent, 2)
	for _, variant := range []string{agent.VariantResearch, agent.VariantCoding} {
		ac, err := cfg.AgentConfig(variant)
		if err != nil {
			return nil, err
		}
		if ac.Instructions == "" {
			ac.Instructions = defaultInstructions
		}
		if ac.WorkingDirectory == "" {
			ac.WorkingDirectory, _ = os.Getwd()
		}

		a, err := agent.New(ac, gateway, registry, agent.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		agents[variant] = a
	}
	return agents, nil
}

func logLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
