package watcher

import "time"

type EventType string

const (
	EventCreate EventType = "create"
	EventModify EventType = "modify"
	EventDelete EventType = "delete"
	EventRename EventType = "rename"
)

type FileEvent struct {
	Path      string
	Type      EventType
	Timestamp time.Time
}

type Config struct {
	Enabled        bool
	DebounceWindow time.Duration
	MaxBatchSize   int
	IgnorePatterns []string
	WatchHidden    bool
}

func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		DebounceWindow: 300 * time.Millisecond,
		MaxBatchSize:   100,
		IgnorePatterns: []string{
			"**/node_modules/**",
			"**/.git/**",
			"**/*.tmp",
			"**/*.swp",
		},
	}
}
