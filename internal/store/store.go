package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mnemohq/mnemo-mcp/internal/logger"
)

var log = logger.ForComponent("store")

type Options struct {
	Path string

	// Dimensions is the embedding dimension. Zero opens the store in
	// lexical-only mode: metadata and trigger matching work, vector
	// search does not.
	Dimensions int
}

// Store pairs memory metadata with embedding vectors in one sqlite
// database. WAL mode lets readers proceed while a single writer commits;
// writers serialize on the mutex.
type Store struct {
	db          *sql.DB
	mu          sync.RWMutex
	dim         int
	lexicalOnly bool
}

func Open(opts Options) (*Store, error) {
	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, err
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}

	if err := s.resolveDimension(opts.Dimensions); err != nil {
		return nil, err
	}

	if s.lexicalOnly {
		log.Warn("vector capability unavailable, store degraded to lexical-only mode")
	}

	return s, nil
}

func (s *Store) initSchema() error {
	lines := strings.Split(GetSchema(), "\n")
	var cleanLines []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "--") && trimmed != "" {
			cleanLines = append(cleanLines, line)
		}
	}

	if _, err := s.db.Exec(strings.Join(cleanLines, "\n")); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	_, _ = s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, GetSchemaVersion())
	return nil
}

// resolveDimension fixes the store-wide embedding dimension at creation
// time. A later mismatch between configured and stored dimension requires
// an explicit MigrateDimension; the stored value stays authoritative.
func (s *Store) resolveDimension(configured int) error {
	var stored string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'embedding_dim'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if configured <= 0 {
			s.lexicalOnly = true
			return nil
		}
		if _, err := s.db.Exec(`INSERT INTO store_meta (key, value) VALUES ('embedding_dim', ?)`, strconv.Itoa(configured)); err != nil {
			return fmt.Errorf("persist embedding dimension: %w", err)
		}
		s.dim = configured
		return nil
	case err != nil:
		return fmt.Errorf("read embedding dimension: %w", err)
	}

	dim, err := strconv.Atoi(stored)
	if err != nil || dim <= 0 {
		return fmt.Errorf("corrupt embedding dimension %q", stored)
	}
	s.dim = dim
	if configured > 0 && configured != dim {
		log.Warn("configured embedding dimension differs from store, run migration",
			"configured", configured, "store", dim)
	}
	return nil
}

func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Dimensions returns the fixed vector dimension, 0 in lexical-only mode.
func (s *Store) Dimensions() int { return s.dim }

// LexicalOnly reports whether vector operations are unavailable.
func (s *Store) LexicalOnly() bool { return s.lexicalOnly }

// IndexMemory inserts a memory record and, when embedding is non-nil, its
// vector row under the same id. The insert is atomic: afterwards either
// both rows exist or neither does. A nil embedding leaves the record
// pending for the background indexer.
func (s *Store) IndexMemory(rec *MemoryRecord, embedding []float32) (int64, error) {
	if rec.SpecFolder == "" {
		return 0, &ValidationError{Field: "specFolder", Message: "required"}
	}
	if rec.Title == "" {
		return 0, &ValidationError{Field: "title", Message: "required"}
	}
	if rec.ImportanceWeight < 0 || rec.ImportanceWeight > 1 {
		return 0, &ValidationError{Field: "importanceWeight", Message: "must be between 0 and 1"}
	}
	if embedding != nil {
		if s.lexicalOnly {
			return 0, &StoreUnavailableError{Op: "vector indexing"}
		}
		if len(embedding) != s.dim {
			return 0, &ValidationError{
				Field:   "embedding",
				Message: fmt.Sprintf("has %d dimensions, store expects %d", len(embedding), s.dim),
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	phrasesJSON, err := json.Marshal(nonNil(rec.TriggerPhrases))
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	status := StatusPending
	var generatedAt *time.Time
	if embedding != nil {
		status = StatusSuccess
		generatedAt = &now
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO memories (spec_folder, file_path, anchor_id, title, trigger_phrases,
			importance_weight, embedding_status, retry_count, failure_reason,
			created_at, updated_at, embedding_generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?, ?)
	`, rec.SpecFolder, rec.FilePath, nullString(rec.AnchorID), rec.Title, string(phrasesJSON),
		rec.ImportanceWeight, status, now, now, generatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get memory id: %w", err)
	}

	if embedding != nil {
		if _, err := tx.Exec(`INSERT INTO memory_vectors (id, embedding) VALUES (?, ?)`,
			id, EncodeVector(embedding)); err != nil {
			return 0, fmt.Errorf("insert vector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit index: %w", err)
	}

	rec.ID = id
	rec.EmbeddingStatus = status
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.EmbeddingGeneratedAt = generatedAt
	return id, nil
}

const recordColumns = `id, spec_folder, file_path, anchor_id, title, trigger_phrases,
	importance_weight, embedding_status, retry_count, failure_reason,
	created_at, updated_at, embedding_generated_at`

func (s *Store) GetMemory(id int64) (*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return rec, nil
}

// GetByFolder returns the most important, most recent record of a folder.
func (s *Store) GetByFolder(specFolder string) (*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM memories
		WHERE spec_folder = ?
		ORDER BY importance_weight DESC, updated_at DESC, id ASC LIMIT 1`, specFolder)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory by folder: %w", err)
	}
	return rec, nil
}

// ListRecords returns all records ordered by id. Used by the trigger
// matcher to rebuild its phrase index.
func (s *Store) ListRecords() ([]*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT ` + recordColumns + ` FROM memories ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByStatus returns up to limit records in a status, oldest first.
func (s *Store) ListByStatus(status EmbeddingStatus, limit int) ([]*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+recordColumns+` FROM memories
		WHERE embedding_status = ? ORDER BY updated_at ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListFailed returns failed records still under the retry ceiling.
func (s *Store) ListFailed(retryCeiling int) ([]*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+recordColumns+` FROM memories
		WHERE embedding_status = ? AND retry_count < ?
		ORDER BY updated_at ASC`, StatusFailed, retryCeiling)
	if err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// MarkEmbeddingSuccess stores the vector and flips the record to success
// in one transaction.
func (s *Store) MarkEmbeddingSuccess(id int64, embedding []float32) error {
	if s.lexicalOnly {
		return &StoreUnavailableError{Op: "vector indexing"}
	}
	if len(embedding) != s.dim {
		return &ValidationError{
			Field:   "embedding",
			Message: fmt.Sprintf("has %d dimensions, store expects %d", len(embedding), s.dim),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE memories
		SET embedding_status = ?, failure_reason = NULL, updated_at = ?, embedding_generated_at = ?
		WHERE id = ?`, StatusSuccess, now, now, id)
	if err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(`INSERT INTO memory_vectors (id, embedding) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`,
		id, EncodeVector(embedding)); err != nil {
		return fmt.Errorf("store vector: %w", err)
	}

	return tx.Commit()
}

// MarkEmbeddingFailed records a failure and bumps the retry count. A
// vector left over from an earlier success is dropped in the same
// transaction, so only success records ever carry one.
func (s *Store) MarkEmbeddingFailed(id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE memories
		SET embedding_status = ?, failure_reason = ?, retry_count = retry_count + 1,
			updated_at = ?, embedding_generated_at = NULL
		WHERE id = ?`, StatusFailed, reason, now, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM memory_vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("drop stale vector: %w", err)
	}
	return tx.Commit()
}

// MarkPending re-queues a record for embedding, keeping its retry count.
// Any existing vector is dropped with the status flip.
func (s *Store) MarkPending(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`UPDATE memories
		SET embedding_status = ?, updated_at = ?, embedding_generated_at = NULL
		WHERE id = ?`, StatusPending, now, id)
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM memory_vectors WHERE id = ?`, id); err != nil {
		return fmt.Errorf("drop stale vector: %w", err)
	}
	return tx.Commit()
}

// FindByPath returns records whose source file matches path.
func (s *Store) FindByPath(filePath string) ([]*MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT `+recordColumns+` FROM memories WHERE file_path = ?`, filePath)
	if err != nil {
		return nil, fmt.Errorf("find by path: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *Store) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	var lastIndexed sql.NullTime
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN embedding_status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN embedding_status = 'success' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN embedding_status = 'failed' THEN 1 ELSE 0 END), 0),
			MAX(embedding_generated_at)
		FROM memories
	`).Scan(&stats.TotalMemories, &stats.PendingRecords, &stats.SuccessRecords, &stats.FailedRecords, &lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	if lastIndexed.Valid {
		stats.LastIndexedAt = &lastIndexed.Time
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memory_vectors`).Scan(&stats.TotalVectors); err != nil {
		return nil, fmt.Errorf("get vector count: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*MemoryRecord, error) {
	rec := &MemoryRecord{}
	var anchorID, failureReason sql.NullString
	var phrasesJSON string
	var generatedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.SpecFolder, &rec.FilePath, &anchorID, &rec.Title, &phrasesJSON,
		&rec.ImportanceWeight, &rec.EmbeddingStatus, &rec.RetryCount, &failureReason,
		&rec.CreatedAt, &rec.UpdatedAt, &generatedAt,
	)
	if err != nil {
		return nil, err
	}

	if anchorID.Valid {
		rec.AnchorID = anchorID.String
	}
	if failureReason.Valid {
		rec.FailureReason = failureReason.String
	}
	if generatedAt.Valid {
		rec.EmbeddingGeneratedAt = &generatedAt.Time
	}
	if err := json.Unmarshal([]byte(phrasesJSON), &rec.TriggerPhrases); err != nil {
		rec.TriggerPhrases = []string{}
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]*MemoryRecord, error) {
	var records []*MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNil(phrases []string) []string {
	if phrases == nil {
		return []string{}
	}
	return phrases
}
