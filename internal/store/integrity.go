package store

import (
	"context"
	"fmt"
	"strconv"
)

// VerifyIntegrity scans both tables and reports identity mismatches
// between records and vectors. It never repairs anything; the report is a
// health signal for an external operator.
func (s *Store) VerifyIntegrity() (*IntegrityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &IntegrityReport{
		OrphanedVectors: []int64{},
		MissingVectors:  []int64{},
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&report.TotalMemories); err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memory_vectors`).Scan(&report.TotalVectors); err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}

	// Vectors without a success-status owner. Covers both missing rows
	// and rows whose status contradicts having a vector.
	rows, err := s.db.Query(`
		SELECT v.id FROM memory_vectors v
		LEFT JOIN memories m ON v.id = m.id
		WHERE m.id IS NULL OR m.embedding_status != 'success'
		ORDER BY v.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("scan orphaned vectors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		report.OrphanedVectors = append(report.OrphanedVectors, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Success-status records without a vector row.
	rows, err = s.db.Query(`
		SELECT m.id FROM memories m
		LEFT JOIN memory_vectors v ON m.id = v.id
		WHERE m.embedding_status = 'success' AND v.id IS NULL
		ORDER BY m.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("scan missing vectors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		report.MissingVectors = append(report.MissingVectors, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsConsistent = len(report.OrphanedVectors) == 0 && len(report.MissingVectors) == 0
	return report, nil
}

// ReadContentFunc supplies the source text of a record for re-embedding.
type ReadContentFunc func(rec *MemoryRecord) (string, error)

// EmbedFunc produces a document embedding for re-indexing.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// MigrateDimension drops the vector table and re-embeds every record at
// the new dimension. The batch continues past per-record failures and can
// be interrupted via ctx; per-record atomicity keeps the store valid even
// when incomplete. Metadata is never deleted.
func (s *Store) MigrateDimension(ctx context.Context, newDim int, read ReadContentFunc, embedText EmbedFunc) (*MigrationReport, error) {
	if newDim <= 0 {
		return nil, &ValidationError{Field: "dimensions", Message: "must be positive"}
	}
	if read == nil || embedText == nil {
		return nil, &ValidationError{Field: "migration", Message: "content reader and embedder are required"}
	}

	log.Info("starting dimension migration", "from", s.dim, "to", newDim)

	s.mu.Lock()
	tx, err := s.db.Begin()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("begin migration tx: %w", err)
	}
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS memory_vectors`,
		`CREATE TABLE memory_vectors (id INTEGER PRIMARY KEY, embedding BLOB NOT NULL)`,
		`UPDATE memories SET embedding_status = 'pending' WHERE embedding_status = 'success'`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			s.mu.Unlock()
			return nil, fmt.Errorf("rebuild vector table: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO store_meta (key, value) VALUES ('embedding_dim', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(newDim)); err != nil {
		tx.Rollback()
		s.mu.Unlock()
		return nil, fmt.Errorf("update embedding dimension: %w", err)
	}
	if err := tx.Commit(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("commit vector rebuild: %w", err)
	}
	s.dim = newDim
	s.lexicalOnly = false
	s.mu.Unlock()

	records, err := s.ListRecords()
	if err != nil {
		return nil, err
	}

	report := &MigrationReport{NewDimensions: newDim}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			log.Warn("migration interrupted", "reembedded", report.Reembedded, "remaining", len(records)-report.Reembedded-report.Failed-report.Skipped)
			return report, err
		}

		content, err := read(rec)
		if err != nil {
			report.Failed++
			if markErr := s.MarkEmbeddingFailed(rec.ID, fmt.Sprintf("migration: read content: %v", err)); markErr != nil {
				log.Error("failed to record migration failure", "id", rec.ID, "error", markErr)
			}
			continue
		}
		if content == "" {
			report.Skipped++
			continue
		}

		embedding, err := embedText(ctx, content)
		if err != nil {
			report.Failed++
			if markErr := s.MarkEmbeddingFailed(rec.ID, fmt.Sprintf("migration: %v", err)); markErr != nil {
				log.Error("failed to record migration failure", "id", rec.ID, "error", markErr)
			}
			continue
		}

		if err := s.MarkEmbeddingSuccess(rec.ID, embedding); err != nil {
			report.Failed++
			log.Error("failed to store migrated vector", "id", rec.ID, "error", err)
			continue
		}
		report.Reembedded++
	}

	log.Info("dimension migration finished",
		"reembedded", report.Reembedded, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}
