package trigger

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mnemohq/mnemo-mcp/internal/logger"
	"github.com/mnemohq/mnemo-mcp/internal/store"
)

var log = logger.ForComponent("trigger")

const (
	DefaultMatchLimit = 3
	DefaultCacheTTL   = 60 * time.Second
	// DefaultMaxPromptLength bounds matching latency on huge prompts.
	DefaultMaxPromptLength = 2000
)

// Hit is one lexically matched record with the phrases that fired.
type Hit struct {
	ID               int64    `json:"id"`
	SpecFolder       string   `json:"spec_folder"`
	Title            string   `json:"title"`
	MatchedPhrases   []string `json:"matched_phrases"`
	ImportanceWeight float64  `json:"importance_weight"`
}

type phraseEntry struct {
	phrase string
	record *store.MemoryRecord
}

// phraseIndex is the full phrase-to-record index plus the wall-clock
// instant it was built; staleness is judged at read time against the TTL,
// not by any GC-driven eviction.
type phraseIndex struct {
	entries []phraseEntry
	builtAt time.Time
}

// RecordSource is the subset of the store the matcher reads.
type RecordSource interface {
	ListRecords() ([]*store.MemoryRecord, error)
}

// Matcher answers "which indexed documents' trigger phrases appear in this
// prompt" without touching the embedding model. The index is cached
// in-process with a short TTL, so a store write becomes visible within one
// TTL window.
type Matcher struct {
	source          RecordSource
	ttl             time.Duration
	maxPromptLength int

	mu    sync.Mutex
	cache *phraseIndex
}

func NewMatcher(source RecordSource, ttl time.Duration, maxPromptLength int) *Matcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxPromptLength <= 0 {
		maxPromptLength = DefaultMaxPromptLength
	}
	return &Matcher{source: source, ttl: ttl, maxPromptLength: maxPromptLength}
}

// Match returns up to limit records whose trigger phrases occur in the
// prompt, ranked by matched-phrase count with importance weight as the
// tiebreaker.
func (m *Matcher) Match(prompt string, limit int) ([]Hit, error) {
	return m.MatchFolder(prompt, "", limit)
}

// MatchFolder is Match restricted to one spec folder. An empty folder
// matches everything. The restriction applies before the limit, so a
// folder search is never starved by matches elsewhere.
func (m *Matcher) MatchFolder(prompt, specFolder string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultMatchLimit
	}
	if len(prompt) > m.maxPromptLength {
		prompt = prompt[:m.maxPromptLength]
	}
	prompt = strings.ToLower(prompt)

	index, err := m.index()
	if err != nil {
		return nil, err
	}

	type accum struct {
		record  *store.MemoryRecord
		phrases []string
	}
	matches := make(map[int64]*accum)
	for _, entry := range index.entries {
		if specFolder != "" && entry.record.SpecFolder != specFolder {
			continue
		}
		if !strings.Contains(prompt, entry.phrase) {
			continue
		}
		acc, ok := matches[entry.record.ID]
		if !ok {
			acc = &accum{record: entry.record}
			matches[entry.record.ID] = acc
		}
		acc.phrases = append(acc.phrases, entry.phrase)
	}

	hits := make([]Hit, 0, len(matches))
	for _, acc := range matches {
		hits = append(hits, Hit{
			ID:               acc.record.ID,
			SpecFolder:       acc.record.SpecFolder,
			Title:            acc.record.Title,
			MatchedPhrases:   acc.phrases,
			ImportanceWeight: acc.record.ImportanceWeight,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if len(hits[i].MatchedPhrases) != len(hits[j].MatchedPhrases) {
			return len(hits[i].MatchedPhrases) > len(hits[j].MatchedPhrases)
		}
		if hits[i].ImportanceWeight != hits[j].ImportanceWeight {
			return hits[i].ImportanceWeight > hits[j].ImportanceWeight
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Invalidate forces the next Match to rebuild from the store.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	m.cache = nil
	m.mu.Unlock()
}

func (m *Matcher) index() (*phraseIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cache != nil && time.Since(m.cache.builtAt) <= m.ttl {
		return m.cache, nil
	}

	records, err := m.source.ListRecords()
	if err != nil {
		return nil, err
	}

	var entries []phraseEntry
	for _, rec := range records {
		for _, phrase := range rec.TriggerPhrases {
			phrase = strings.ToLower(strings.TrimSpace(phrase))
			if phrase == "" {
				continue
			}
			entries = append(entries, phraseEntry{phrase: phrase, record: rec})
		}
	}

	m.cache = &phraseIndex{entries: entries, builtAt: time.Now()}
	log.Debug("trigger index rebuilt", "phrases", len(entries), "records", len(records))
	return m.cache, nil
}
