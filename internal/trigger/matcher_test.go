package trigger

import (
	"strings"
	"testing"
	"time"

	"github.com/mnemohq/mnemo-mcp/internal/store"
)

type fakeSource struct {
	records []*store.MemoryRecord
	calls   int
}

func (f *fakeSource) ListRecords() ([]*store.MemoryRecord, error) {
	f.calls++
	return f.records, nil
}

func authRecords() []*store.MemoryRecord {
	return []*store.MemoryRecord{
		{
			ID:               1,
			SpecFolder:       "api-auth",
			Title:            "Auth middleware",
			TriggerPhrases:   []string{"oauth refresh", "jwt validation"},
			ImportanceWeight: 0.5,
		},
		{
			ID:               2,
			SpecFolder:       "billing",
			Title:            "Billing flows",
			TriggerPhrases:   []string{"invoice generation", "oauth refresh"},
			ImportanceWeight: 0.8,
		},
		{
			ID:               3,
			SpecFolder:       "frontend",
			Title:            "Component styling",
			TriggerPhrases:   []string{"css grid layout"},
			ImportanceWeight: 0.9,
		},
	}
}

func TestMatchRanksByPhraseCount(t *testing.T) {
	source := &fakeSource{records: authRecords()}
	m := NewMatcher(source, time.Minute, 2000)

	hits, err := m.Match("How should OAuth refresh work together with JWT validation?", 3)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}

	// Two matched phrases beat one, despite the lower weight.
	if hits[0].ID != 1 {
		t.Errorf("Expected record 1 first, got %d", hits[0].ID)
	}
	if len(hits[0].MatchedPhrases) != 2 {
		t.Errorf("Expected 2 matched phrases, got %v", hits[0].MatchedPhrases)
	}
	if hits[1].ID != 2 {
		t.Errorf("Expected record 2 second, got %d", hits[1].ID)
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	source := &fakeSource{records: authRecords()}
	m := NewMatcher(source, time.Minute, 2000)

	hits, err := m.Match("CSS GRID LAYOUT problems", 3)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 3 {
		t.Fatalf("Expected the styling record, got %v", hits)
	}
}

func TestMatchLimit(t *testing.T) {
	source := &fakeSource{records: authRecords()}
	m := NewMatcher(source, time.Minute, 2000)

	hits, err := m.Match("oauth refresh", 1)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Expected limit to apply, got %d hits", len(hits))
	}
	// Equal phrase count, so the higher weight wins.
	if hits[0].ID != 2 {
		t.Errorf("Expected the heavier record, got %d", hits[0].ID)
	}
}

func TestMatchFolderRestricts(t *testing.T) {
	source := &fakeSource{records: authRecords()}
	m := NewMatcher(source, time.Minute, 2000)

	// "oauth refresh" fires in two folders; the restriction keeps one.
	hits, err := m.MatchFolder("oauth refresh tokens", "billing", 3)
	if err != nil {
		t.Fatalf("MatchFolder failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 2 {
		t.Fatalf("Expected only the billing record, got %v", hits)
	}

	// The restriction applies before the limit, so a low limit cannot
	// starve the requested folder.
	hits, err = m.MatchFolder("oauth refresh tokens", "api-auth", 1)
	if err != nil {
		t.Fatalf("MatchFolder failed: %v", err)
	}
	if len(hits) != 1 || hits[0].SpecFolder != "api-auth" {
		t.Fatalf("Expected the api-auth record at limit 1, got %v", hits)
	}

	hits, err = m.MatchFolder("oauth refresh tokens", "frontend", 3)
	if err != nil {
		t.Fatalf("MatchFolder failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Expected no hits in an unmatched folder, got %v", hits)
	}
}

func TestMatchNoHits(t *testing.T) {
	source := &fakeSource{records: authRecords()}
	m := NewMatcher(source, time.Minute, 2000)

	hits, err := m.Match("completely unrelated kubernetes topic", 3)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Expected no hits, got %v", hits)
	}
}

func TestMatchTruncatesLongPrompts(t *testing.T) {
	source := &fakeSource{records: authRecords()}
	m := NewMatcher(source, time.Minute, 2000)

	prompt := strings.Repeat("padding ", 300) + "oauth refresh"
	if len(prompt) <= 2000 {
		t.Fatal("Test prompt must exceed the truncation limit")
	}

	hits, err := m.Match(prompt, 3)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Expected phrase beyond the truncation point to be ignored, got %v", hits)
	}
}

func TestIndexCacheAndInvalidate(t *testing.T) {
	source := &fakeSource{records: authRecords()}
	m := NewMatcher(source, time.Minute, 2000)

	if _, err := m.Match("oauth refresh", 3); err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if _, err := m.Match("jwt validation", 3); err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if source.calls != 1 {
		t.Errorf("Expected one index build within the TTL, got %d", source.calls)
	}

	m.Invalidate()
	if _, err := m.Match("oauth refresh", 3); err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("Expected rebuild after Invalidate, got %d calls", source.calls)
	}
}

func TestIndexRebuildsAfterTTL(t *testing.T) {
	source := &fakeSource{records: authRecords()}
	m := NewMatcher(source, 10*time.Millisecond, 2000)

	if _, err := m.Match("oauth refresh", 3); err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if _, err := m.Match("oauth refresh", 3); err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("Expected rebuild after TTL expiry, got %d calls", source.calls)
	}
}
