package store

import "time"

type EmbeddingStatus string

const (
	StatusPending EmbeddingStatus = "pending"
	StatusSuccess EmbeddingStatus = "success"
	StatusFailed  EmbeddingStatus = "failed"
)

// MemoryRecord is one indexed document's metadata row. A record with
// StatusSuccess always has a vector row sharing its id.
type MemoryRecord struct {
	ID                   int64           `json:"id"`
	SpecFolder           string          `json:"spec_folder"`
	FilePath             string          `json:"file_path"`
	AnchorID             string          `json:"anchor_id,omitempty"`
	Title                string          `json:"title"`
	TriggerPhrases       []string        `json:"trigger_phrases"`
	ImportanceWeight     float64         `json:"importance_weight"`
	EmbeddingStatus      EmbeddingStatus `json:"embedding_status"`
	RetryCount           int             `json:"retry_count"`
	FailureReason        string          `json:"failure_reason,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	EmbeddingGeneratedAt *time.Time      `json:"embedding_generated_at,omitempty"`
}

type SearchOptions struct {
	Limit         int
	MinSimilarity float64
	SpecFolder    string
}

// SearchHit is one ranked vector-search result. Similarity is 0-100 where
// 100 means identical.
type SearchHit struct {
	Rank             int       `json:"rank"`
	ID               int64     `json:"id"`
	SpecFolder       string    `json:"spec_folder"`
	FilePath         string    `json:"file_path"`
	AnchorID         string    `json:"anchor_id,omitempty"`
	Title            string    `json:"title"`
	TriggerPhrases   []string  `json:"trigger_phrases"`
	ImportanceWeight float64   `json:"importance_weight"`
	Distance         float64   `json:"distance"`
	Similarity       float64   `json:"similarity"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConceptHit extends SearchHit with the per-concept similarity breakdown of
// a multi-concept search, so callers can see which concept drove the match.
type ConceptHit struct {
	SearchHit
	ConceptSimilarities []float64 `json:"concept_similarities"`
	MeanSimilarity      float64   `json:"mean_similarity"`
}

type IntegrityReport struct {
	TotalMemories   int     `json:"total_memories"`
	TotalVectors    int     `json:"total_vectors"`
	OrphanedVectors []int64 `json:"orphaned_vectors"`
	MissingVectors  []int64 `json:"missing_vectors"`
	IsConsistent    bool    `json:"is_consistent"`
}

// MigrationReport tallies a dimension migration. Failed records keep their
// metadata; only the vector side is rebuilt.
type MigrationReport struct {
	NewDimensions int `json:"new_dimensions"`
	Reembedded    int `json:"reembedded"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
}

type Stats struct {
	TotalMemories  int        `json:"total_memories"`
	PendingRecords int        `json:"pending"`
	SuccessRecords int        `json:"success"`
	FailedRecords  int        `json:"failed"`
	TotalVectors   int        `json:"total_vectors"`
	LastIndexedAt  *time.Time `json:"last_indexed_at,omitempty"`
}
