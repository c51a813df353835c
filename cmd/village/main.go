// Command village boots the simulation: it loads a village definition,
// recovers or initializes durable state, starts the tick loop, and
// serves the observer API over HTTP/WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeready-toolchain/tarsy/internal/adapters/llm"
	"github.com/codeready-toolchain/tarsy/internal/api"
	"github.com/codeready-toolchain/tarsy/internal/config"
	"github.com/codeready-toolchain/tarsy/internal/domain"
	"github.com/codeready-toolchain/tarsy/internal/engine"
	"github.com/codeready-toolchain/tarsy/internal/fsync"
	"github.com/codeready-toolchain/tarsy/internal/observer"
	"github.com/codeready-toolchain/tarsy/internal/runtime/interpreter"
	"github.com/codeready-toolchain/tarsy/internal/runtime/phases"
	"github.com/codeready-toolchain/tarsy/internal/tracer"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	dataDir := flag.String("data-dir", getEnv("DATA_DIR", "./data"), "Path to durable state directory")
	traceDir := flag.String("trace-dir", getEnv("TRACE_DIR", "./data/traces"), "Path to per-agent trace log directory")
	addr := flag.String("addr", getEnv("HTTP_ADDR", ":8080"), "HTTP listen address")
	offline := flag.Bool("offline", getEnv("VILLAGE_OFFLINE", "") != "", "run with stub LLM adapters instead of calling Anthropic")
	flag.Parse()

	if err := run(*configDir, *dataDir, *traceDir, *addr, *offline); err != nil {
		slog.Error("village exited", "error", err)
		os.Exit(1)
	}
}

func run(configDir, dataDir, traceDir, addr string, offline bool) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	villageFiles := fsync.New(cfg.VillageRoot)
	if err := villageFiles.EnsureSharedDirectories(); err != nil {
		return err
	}
	for _, agent := range cfg.Agents {
		if err := villageFiles.EnsureAgentDirectory(domain.AgentName(agent.Name)); err != nil {
			return err
		}
	}

	tr, err := tracer.New(traceDir)
	if err != nil {
		return err
	}
	defer tr.Close()

	llmProvider, interpreterClient := buildLLMAdapters(offline)

	eng, err := engine.New(dataDir, engine.Dependencies{
		LLMProvider:       llmProvider,
		InterpreterClient: interpreterClient,
		Syncer:            villageFiles,
		Journal:           villageFiles,
		Dreams:            villageFiles,
		RNG:               rand.New(rand.NewSource(time.Now().UnixNano())),
	})
	if err != nil {
		return err
	}

	recovered, err := eng.Recover()
	if err != nil {
		return err
	}
	if !recovered {
		slog.Info("no prior snapshot found, initializing fresh village")
		if err := eng.InitializeDefault(cfg); err != nil {
			return err
		}
	} else {
		slog.Info("recovered village from durable state")
	}

	conns := api.NewConnectionManager(5 * time.Second)
	observerAPI := observer.New(eng)
	server := api.NewServer(observerAPI, conns)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamStop := make(chan struct{})
	go api.StreamTraceEvents(tr, conns, streamStop)
	defer close(streamStop)

	errCh := make(chan error, 2)
	go func() {
		slog.Info("tick loop starting")
		if runErr := eng.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			errCh <- runErr
		}
	}()
	go func() {
		slog.Info("http server listening", "addr", addr)
		if runErr := server.Run(ctx, addr); runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
			errCh <- runErr
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		if err != nil {
			slog.Error("component failed, shutting down", "error", err)
		}
	}

	if err := eng.Shutdown(); err != nil {
		return err
	}
	return nil
}

func buildLLMAdapters(offline bool) (phases.LLMProvider, interpreter.Client) {
	if offline {
		slog.Info("running with stub LLM adapters")
		return llm.NewStubProvider(), llm.NewStubInterpreterClient()
	}

	client := llm.NewClient(llm.Config{})
	return llm.NewProvider(client), llm.NewInterpreterClient(client)
}
