package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mnemohq/mnemo-mcp/internal/logger"
	"github.com/mnemohq/mnemo-mcp/internal/store"
)

var log = logger.ForComponent("session")

const (
	DefaultTTL        = time.Hour
	maxCachedSessions = 64
)

type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.ID)
}

type ExpiredError struct {
	ID  string
	Age time.Duration
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("session %s expired %s ago", e.ID, e.Age.Round(time.Second))
}

// Manager creates, persists, and restores sessions. Live sessions sit in
// an expirable LRU; every mutation is also snapshotted to disk so a
// session survives process restarts until its TTL runs out.
type Manager struct {
	dir      string
	ttl      time.Duration
	pageSize int
	cache    *expirable.LRU[string, *Session]
}

func NewManager(dir string, ttl time.Duration, defaultPageSize int) (*Manager, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Manager{
		dir:      dir,
		ttl:      ttl,
		pageSize: defaultPageSize,
		cache:    expirable.NewLRU[string, *Session](maxCachedSessions, nil, ttl),
	}, nil
}

// Create starts a new session around a result set and persists the first
// snapshot.
func (m *Manager) Create(query string, results []store.SearchHit, pageSize int) (*Session, error) {
	if pageSize == 0 {
		pageSize = m.pageSize
	}
	s, err := New(uuid.NewString(), query, results, pageSize)
	if err != nil {
		return nil, err
	}
	if err := m.Save(s); err != nil {
		return nil, err
	}
	m.cache.Add(s.ID, s)
	log.Debug("session created", "id", s.ID, "results", len(results))
	return s, nil
}

// Save snapshots the session to disk.
func (m *Manager) Save(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	path := m.snapshotPath(s.ID)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write session snapshot: %w", err)
	}
	m.cache.Add(s.ID, s)
	return nil
}

// Load restores a session by id. Unknown ids and expired sessions fail
// with distinct errors so callers can suggest the right recovery.
func (m *Manager) Load(id string) (*Session, error) {
	if s, ok := m.cache.Get(id); ok {
		if age := time.Since(s.CreatedAt); age > m.ttl {
			return nil, &ExpiredError{ID: id, Age: age - m.ttl}
		}
		return s, nil
	}

	data, err := os.ReadFile(m.snapshotPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("read session snapshot: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}

	if age := time.Since(s.CreatedAt); age > m.ttl {
		return nil, &ExpiredError{ID: id, Age: age - m.ttl}
	}

	m.cache.Add(id, &s)
	return &s, nil
}

// Quit ends the session and persists the final snapshot for later resume
// inspection.
func (m *Manager) Quit(s *Session) error {
	s.Quit()
	return m.Save(s)
}

func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) snapshotPath(id string) string {
	return filepath.Join(m.dir, id+".json")
}
