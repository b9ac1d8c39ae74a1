package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mnemohq/mnemo-mcp/internal/config"
	"github.com/mnemohq/mnemo-mcp/internal/embed"
	"github.com/mnemohq/mnemo-mcp/internal/indexer"
	"github.com/mnemohq/mnemo-mcp/internal/logger"
	"github.com/mnemohq/mnemo-mcp/internal/mcp"
	"github.com/mnemohq/mnemo-mcp/internal/reader"
	"github.com/mnemohq/mnemo-mcp/internal/session"
	"github.com/mnemohq/mnemo-mcp/internal/store"
	"github.com/mnemohq/mnemo-mcp/internal/tools"
	memorytools "github.com/mnemohq/mnemo-mcp/internal/tools/memory"
	"github.com/mnemohq/mnemo-mcp/internal/trigger"
	"github.com/mnemohq/mnemo-mcp/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		logger.Error("failed to create data directories", "error", err)
		os.Exit(1)
	}

	// stdout carries JSON-RPC; everything else goes to stderr.
	logger.Init(logger.Config{
		Level:           parseLevel(cfg.LogLevel),
		Format:          cfg.LogFormat,
		Output:          os.Stderr,
		ComponentLevels: componentLevels(cfg.LogComponentLevels),
	})
	log := logger.ForComponent("main")

	engine := buildEngine(cfg, log)

	dims := 0
	if engine != nil {
		dims = engine.Dimensions()
	}

	st, err := store.Open(store.Options{
		Path:       cfg.DatabasePath,
		Dimensions: dims,
	})
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if st.LexicalOnly() {
		log.Warn("no embedding backend available, running in lexical-only mode")
	}

	contentReader, err := reader.New()
	if err != nil {
		log.Error("failed to create content reader", "error", err)
		os.Exit(1)
	}

	matcher := trigger.NewMatcher(st, cfg.Trigger.CacheTTL, cfg.Trigger.MaxPromptLength)

	sessions, err := session.NewManager(cfg.Session.SnapshotDir, cfg.Session.TTL, cfg.Session.DefaultPageSize)
	if err != nil {
		log.Error("failed to create session manager", "error", err)
		os.Exit(1)
	}

	var worker *indexer.Worker
	if engine != nil {
		worker = indexer.NewWorker(st, engine, contentReader, indexer.WorkerConfig{
			WorkerCount:  cfg.Indexer.WorkerCount,
			MaxQueueSize: cfg.Indexer.MaxQueueSize,
			RetryCeiling: cfg.Indexer.RetryCeiling,
		})
		worker.Start()
		defer worker.Stop()
	}

	if cfg.Watcher.Enabled && worker != nil {
		fw, err := watcher.New(watcher.Config{
			Enabled:        true,
			DebounceWindow: cfg.Watcher.DebounceWindow,
			MaxBatchSize:   cfg.Watcher.MaxBatchSize,
			IgnorePatterns: cfg.Watcher.IgnorePatterns,
		}, st, worker, contentReader, matcher)
		if err != nil {
			log.Warn("failed to create file watcher", "error", err)
		} else {
			if err := fw.Start(context.Background()); err != nil {
				log.Warn("failed to start file watcher", "error", err)
			} else {
				if err := fw.AddRoot(cfg.MemoryRoot); err != nil {
					log.Warn("failed to watch memory root", "path", cfg.MemoryRoot, "error", err)
				}
				defer fw.Stop()
			}
		}
	}

	registry := tools.NewRegistry()
	for _, tool := range memorytools.GetTools(memorytools.Deps{
		Store:    st,
		Engine:   engine,
		Reader:   contentReader,
		Matcher:  matcher,
		Sessions: sessions,
		Worker:   worker,
	}) {
		if err := registry.Register(tool); err != nil {
			log.Error("failed to register tool", "tool", tool.Name(), "error", err)
			os.Exit(1)
		}
	}

	server := mcp.NewServer(registry)

	done := make(chan error, 1)
	go func() {
		done <- server.ProcessStream(os.Stdin, os.Stdout)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil {
			log.Error("stream processing failed", "error", err)
		}
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	}

	if engine != nil {
		engine.Close()
	}
}

// buildEngine returns nil when no backend can be constructed; the store
// then opens lexical-only and vector operations refuse with a clear error.
func buildEngine(cfg *config.Config, log *slog.Logger) embed.Engine {
	switch cfg.Embedding.Backend {
	case "openai":
		engine, err := embed.NewOpenAIEngine(embed.OpenAIConfig{
			Model:      cfg.Embedding.OpenAIModel,
			BaseURL:    cfg.Embedding.OpenAIBaseURL,
			APIKeyEnv:  cfg.Embedding.APIKeyEnv,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			log.Warn("openai embedding backend unavailable", "error", err)
			return nil
		}
		return engine
	case "onnx", "":
		if _, err := os.Stat(cfg.Embedding.ModelPath); err != nil {
			log.Warn("onnx model not found", "path", cfg.Embedding.ModelPath, "error", err)
			return nil
		}
		return embed.NewONNXEngine(cfg.Embedding.ModelPath, cfg.Embedding.TokenizerPath, cfg.Embedding.Dimensions)
	default:
		log.Warn("unknown embedding backend", "backend", cfg.Embedding.Backend)
		return nil
	}
}

func componentLevels(raw map[string]string) map[string]slog.Level {
	if len(raw) == 0 {
		return nil
	}
	levels := make(map[string]slog.Level, len(raw))
	for component, level := range raw {
		levels[component] = parseLevel(level)
	}
	return levels
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
