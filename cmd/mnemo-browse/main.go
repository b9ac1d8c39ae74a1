package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mnemohq/mnemo-mcp/internal/config"
	"github.com/mnemohq/mnemo-mcp/internal/embed"
	"github.com/mnemohq/mnemo-mcp/internal/logger"
	"github.com/mnemohq/mnemo-mcp/internal/reader"
	"github.com/mnemohq/mnemo-mcp/internal/session"
	"github.com/mnemohq/mnemo-mcp/internal/store"
	"github.com/mnemohq/mnemo-mcp/internal/tui"
)

// searchStack adapts the store, engine, and reader to the TUI port.
type searchStack struct {
	store  *store.Store
	engine embed.Engine
	reader *reader.Reader
}

func (s *searchStack) Search(query string) ([]store.SearchHit, error) {
	vec, err := s.engine.Embed(context.Background(), query, embed.ModeQuery)
	if err != nil {
		return nil, err
	}
	return s.store.VectorSearch(vec, store.SearchOptions{Limit: 100})
}

func (s *searchStack) Preview(hit store.SearchHit) (string, error) {
	return s.reader.ReadSection(hit.FilePath, hit.AnchorID)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to create data directories:", err)
		os.Exit(1)
	}

	// Logs would corrupt the terminal UI; send only warnings to stderr.
	logger.Init(logger.Config{Level: slog.LevelWarn, Output: os.Stderr})

	engine := buildEngine(cfg)
	if engine == nil {
		fmt.Fprintln(os.Stderr, "no embedding backend available; browsing requires semantic search")
		os.Exit(1)
	}
	defer engine.Close()

	st, err := store.Open(store.Options{
		Path:       cfg.DatabasePath,
		Dimensions: engine.Dimensions(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open store:", err)
		os.Exit(1)
	}
	defer st.Close()

	contentReader, err := reader.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create content reader:", err)
		os.Exit(1)
	}

	sessions, err := session.NewManager(cfg.Session.SnapshotDir, cfg.Session.TTL, cfg.Session.DefaultPageSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create session manager:", err)
		os.Exit(1)
	}

	stack := &searchStack{store: st, engine: engine, reader: contentReader}
	program := tea.NewProgram(tui.New(stack, sessions), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "terminal UI failed:", err)
		os.Exit(1)
	}
}

func buildEngine(cfg *config.Config) embed.Engine {
	switch cfg.Embedding.Backend {
	case "openai":
		engine, err := embed.NewOpenAIEngine(embed.OpenAIConfig{
			Model:      cfg.Embedding.OpenAIModel,
			BaseURL:    cfg.Embedding.OpenAIBaseURL,
			APIKeyEnv:  cfg.Embedding.APIKeyEnv,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil
		}
		return engine
	case "onnx", "":
		if _, err := os.Stat(cfg.Embedding.ModelPath); err != nil {
			return nil
		}
		return embed.NewONNXEngine(cfg.Embedding.ModelPath, cfg.Embedding.TokenizerPath, cfg.Embedding.Dimensions)
	default:
		return nil
	}
}
