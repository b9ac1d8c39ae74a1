package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type EmbeddingConfig struct {
	// Backend selects the embedding engine: "onnx" or "openai".
	Backend       string `yaml:"backend"`
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	Dimensions    int    `yaml:"dimensions"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
}

type IndexerConfig struct {
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`
	RetryCeiling int `yaml:"retry_ceiling"`
}

type WatcherConfig struct {
	Enabled        bool          `yaml:"enabled"`
	DebounceWindow time.Duration `yaml:"debounce_window"`
	MaxBatchSize   int           `yaml:"max_batch_size"`
	IgnorePatterns []string      `yaml:"ignore_patterns"`
}

type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	DefaultPageSize int           `yaml:"default_page_size"`
	SnapshotDir     string        `yaml:"snapshot_dir"`
}

type TriggerConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	MaxPromptLength int           `yaml:"max_prompt_length"`
}

type Config struct {
	DatabasePath string `yaml:"db_path"`
	MemoryRoot   string `yaml:"memory_root"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	// LogComponentLevels overrides the log level per component,
	// e.g. {store: debug, watcher: warn}.
	LogComponentLevels map[string]string `yaml:"log_component_levels"`
	Embedding          EmbeddingConfig   `yaml:"embedding"`
	Indexer            IndexerConfig     `yaml:"indexer"`
	Watcher            WatcherConfig     `yaml:"watcher"`
	Session            SessionConfig     `yaml:"session"`
	Trigger            TriggerConfig     `yaml:"trigger"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	mnemoDir := filepath.Join(homeDir, ".mnemo")

	return &Config{
		DatabasePath: filepath.Join(mnemoDir, "mnemo.db"),
		MemoryRoot:   filepath.Join(mnemoDir, "memories"),
		LogLevel:     "info",
		LogFormat:    "text",
		Embedding: EmbeddingConfig{
			Backend:       "onnx",
			ModelPath:     filepath.Join(mnemoDir, "models", "model.onnx"),
			TokenizerPath: filepath.Join(mnemoDir, "models", "tokenizer.json"),
			Dimensions:    768,
			OpenAIModel:   "text-embedding-3-small",
			APIKeyEnv:     "OPENAI_API_KEY",
		},
		Indexer: IndexerConfig{
			WorkerCount:  2,
			MaxQueueSize: 1000,
			RetryCeiling: 5,
		},
		Watcher: WatcherConfig{
			Enabled:        true,
			DebounceWindow: 300 * time.Millisecond,
			MaxBatchSize:   100,
			IgnorePatterns: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/*.tmp",
				"**/.#*",
			},
		},
		Session: SessionConfig{
			TTL:             time.Hour,
			DefaultPageSize: 5,
			SnapshotDir:     filepath.Join(mnemoDir, "sessions"),
		},
		Trigger: TriggerConfig{
			CacheTTL:        60 * time.Second,
			MaxPromptLength: 2000,
		},
	}
}

// Load returns the defaults overlaid with ~/.mnemo/config.yaml when present.
func Load() (*Config, error) {
	cfg := Default()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil
	}

	path := filepath.Join(homeDir, ".mnemo", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		filepath.Dir(c.DatabasePath),
		c.MemoryRoot,
		c.Session.SnapshotDir,
	} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}
