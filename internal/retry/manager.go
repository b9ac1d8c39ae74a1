// Package retry tracks memory records whose embedding generation failed.
// It is pure bookkeeping: an external scheduler decides when to retry.
package retry

import (
	"github.com/mnemohq/mnemo-mcp/internal/store"
)

const DefaultRetryCeiling = 5

type Outcome struct {
	Embedding     []float32
	FailureReason string
}

type Manager struct {
	store   *store.Store
	ceiling int
}

func NewManager(s *store.Store, ceiling int) *Manager {
	if ceiling <= 0 {
		ceiling = DefaultRetryCeiling
	}
	return &Manager{store: s, ceiling: ceiling}
}

// ListFailed returns failed records still eligible for another attempt.
// Records at or beyond the ceiling stay failed and are excluded.
func (m *Manager) ListFailed() ([]*store.MemoryRecord, error) {
	return m.store.ListFailed(m.ceiling)
}

// MarkRetried records the outcome of a retry attempt. A non-nil embedding
// flips the record to success; otherwise the failure reason is recorded
// and the retry count incremented.
func (m *Manager) MarkRetried(id int64, outcome Outcome) error {
	if outcome.Embedding != nil {
		return m.store.MarkEmbeddingSuccess(id, outcome.Embedding)
	}
	reason := outcome.FailureReason
	if reason == "" {
		reason = "retry failed"
	}
	return m.store.MarkEmbeddingFailed(id, reason)
}

func (m *Manager) Ceiling() int { return m.ceiling }
