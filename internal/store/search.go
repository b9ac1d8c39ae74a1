package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	DefaultSearchLimit = 10
	minConcepts        = 2
	maxConcepts        = 5
)

// similarityFromDistance maps cosine distance (1 - cosine, range [0,2]) to
// the 0-100 similarity scale: similarity = 100 * (1 - distance/2), so 100
// means identical direction and 0 means opposite.
func similarityFromDistance(distance float64) float64 {
	sim := 100 * (1 - distance/2)
	if sim < 0 {
		return 0
	}
	if sim > 100 {
		return 100
	}
	return sim
}

type candidate struct {
	rec       *MemoryRecord
	embedding []float32
}

// VectorSearch ranks all successfully embedded records by similarity to
// the query vector. Ties break on importance weight, then id, so the
// ordering is deterministic.
func (s *Store) VectorSearch(query []float32, opts SearchOptions) ([]SearchHit, error) {
	if s.lexicalOnly {
		return nil, &StoreUnavailableError{Op: "vector search"}
	}
	if len(query) != s.dim {
		return nil, &ValidationError{
			Field:   "query",
			Message: fmt.Sprintf("has %d dimensions, store expects %d", len(query), s.dim),
		}
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}

	candidates, err := s.loadCandidates(opts.SpecFolder)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(candidates))
	for _, c := range candidates {
		distance := 1 - CosineSimilarity(query, c.embedding)
		similarity := similarityFromDistance(distance)
		if similarity < opts.MinSimilarity {
			continue
		}
		hits = append(hits, newHit(c.rec, distance, similarity))
	}

	sortHits(hits)
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// MultiConceptSearch requires a candidate to clear MinSimilarity against
// every concept (AND semantics) and ranks by the arithmetic mean of the
// per-concept similarities. Each hit keeps the full breakdown so callers
// can see which concept drove the match.
func (s *Store) MultiConceptSearch(concepts [][]float32, opts SearchOptions) ([]ConceptHit, error) {
	if len(concepts) < minConcepts || len(concepts) > maxConcepts {
		return nil, &ValidationError{
			Field:   "concepts",
			Message: fmt.Sprintf("requires between %d and %d concept vectors, got %d", minConcepts, maxConcepts, len(concepts)),
		}
	}
	if s.lexicalOnly {
		return nil, &StoreUnavailableError{Op: "multi-concept search"}
	}
	for i, c := range concepts {
		if len(c) != s.dim {
			return nil, &ValidationError{
				Field:   "concepts",
				Message: fmt.Sprintf("concept %d has %d dimensions, store expects %d", i+1, len(c), s.dim),
			}
		}
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}

	candidates, err := s.loadCandidates(opts.SpecFolder)
	if err != nil {
		return nil, err
	}

	hits := make([]ConceptHit, 0, len(candidates))
	for _, c := range candidates {
		sims := make([]float64, len(concepts))
		mean := 0.0
		passed := true
		for i, concept := range concepts {
			distance := 1 - CosineSimilarity(concept, c.embedding)
			sims[i] = similarityFromDistance(distance)
			if sims[i] < opts.MinSimilarity {
				passed = false
				break
			}
			mean += sims[i]
		}
		if !passed {
			continue
		}
		mean /= float64(len(concepts))

		hit := ConceptHit{
			SearchHit:           newHit(c.rec, 1-mean/50, mean),
			ConceptSimilarities: sims,
			MeanSimilarity:      mean,
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].MeanSimilarity != hits[j].MeanSimilarity {
			return hits[i].MeanSimilarity > hits[j].MeanSimilarity
		}
		if hits[i].ImportanceWeight != hits[j].ImportanceWeight {
			return hits[i].ImportanceWeight > hits[j].ImportanceWeight
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// loadCandidates reads every success-status record with its vector,
// optionally restricted to one spec folder.
func (s *Store) loadCandidates(specFolder string) ([]candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT m.id, m.spec_folder, m.file_path, m.anchor_id, m.title,
			m.trigger_phrases, m.importance_weight, m.created_at, v.embedding
		FROM memories m
		INNER JOIN memory_vectors v ON m.id = v.id
		WHERE m.embedding_status = 'success'`
	var args []any
	if specFolder != "" {
		query += ` AND m.spec_folder = ?`
		args = append(args, specFolder)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load search candidates: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		rec := &MemoryRecord{EmbeddingStatus: StatusSuccess}
		var anchorID sql.NullString
		var phrasesJSON string
		var blob []byte

		if err := rows.Scan(&rec.ID, &rec.SpecFolder, &rec.FilePath, &anchorID, &rec.Title,
			&phrasesJSON, &rec.ImportanceWeight, &rec.CreatedAt, &blob); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if anchorID.Valid {
			rec.AnchorID = anchorID.String
		}
		if err := json.Unmarshal([]byte(phrasesJSON), &rec.TriggerPhrases); err != nil {
			rec.TriggerPhrases = []string{}
		}

		embedding := DecodeVector(blob)
		if len(embedding) != s.dim {
			// Dimension drift is an integrity problem, not a search result
			continue
		}
		candidates = append(candidates, candidate{rec: rec, embedding: embedding})
	}
	return candidates, rows.Err()
}

func newHit(rec *MemoryRecord, distance, similarity float64) SearchHit {
	return SearchHit{
		ID:               rec.ID,
		SpecFolder:       rec.SpecFolder,
		FilePath:         rec.FilePath,
		AnchorID:         rec.AnchorID,
		Title:            rec.Title,
		TriggerPhrases:   rec.TriggerPhrases,
		ImportanceWeight: rec.ImportanceWeight,
		Distance:         distance,
		Similarity:       similarity,
		CreatedAt:        rec.CreatedAt,
	}
}

func sortHits(hits []SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if hits[i].ImportanceWeight != hits[j].ImportanceWeight {
			return hits[i].ImportanceWeight > hits[j].ImportanceWeight
		}
		return hits[i].ID < hits[j].ID
	})
}
