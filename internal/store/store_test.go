package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, dims int) *Store {
	t.Helper()

	s, err := Open(Options{
		Path:       filepath.Join(t.TempDir(), "test.db"),
		Dimensions: dims,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(folder, title string) *MemoryRecord {
	return &MemoryRecord{
		SpecFolder:     folder,
		FilePath:       "/memories/" + folder + "/overview.md",
		Title:          title,
		TriggerPhrases: []string{"oauth refresh", "token rotation"},
	}
}

func TestIndexMemoryWithEmbedding(t *testing.T) {
	s := openTestStore(t, 4)

	rec := testRecord("auth-spec", "OAuth overview")
	id, err := s.IndexMemory(rec, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected non-zero id")
	}

	got, err := s.GetMemory(id)
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if got.EmbeddingStatus != StatusSuccess {
		t.Errorf("Expected status success, got %s", got.EmbeddingStatus)
	}
	if got.EmbeddingGeneratedAt == nil {
		t.Error("Expected embedding_generated_at to be set")
	}
	if len(got.TriggerPhrases) != 2 {
		t.Errorf("Expected 2 trigger phrases, got %d", len(got.TriggerPhrases))
	}

	report, err := s.VerifyIntegrity()
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if !report.IsConsistent {
		t.Errorf("Expected consistent store, got %+v", report)
	}
	if report.TotalMemories != 1 || report.TotalVectors != 1 {
		t.Errorf("Expected 1 memory and 1 vector, got %d/%d", report.TotalMemories, report.TotalVectors)
	}
}

func TestIndexMemoryPendingWithoutEmbedding(t *testing.T) {
	s := openTestStore(t, 4)

	id, err := s.IndexMemory(testRecord("auth-spec", "Pending doc"), nil)
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}

	got, err := s.GetMemory(id)
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if got.EmbeddingStatus != StatusPending {
		t.Errorf("Expected status pending, got %s", got.EmbeddingStatus)
	}

	// Pending records have no vector and the store is still consistent.
	report, err := s.VerifyIntegrity()
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if !report.IsConsistent {
		t.Errorf("Expected consistent store, got %+v", report)
	}
}

func TestIndexMemoryValidation(t *testing.T) {
	s := openTestStore(t, 4)

	if _, err := s.IndexMemory(&MemoryRecord{Title: "no folder"}, nil); !IsValidation(err) {
		t.Errorf("Expected ValidationError for missing folder, got %v", err)
	}
	if _, err := s.IndexMemory(&MemoryRecord{SpecFolder: "x"}, nil); !IsValidation(err) {
		t.Errorf("Expected ValidationError for missing title, got %v", err)
	}
	if _, err := s.IndexMemory(testRecord("x", "y"), []float32{1, 0}); !IsValidation(err) {
		t.Errorf("Expected ValidationError for wrong dimensions, got %v", err)
	}
}

func TestLexicalOnlyStore(t *testing.T) {
	s := openTestStore(t, 0)

	if !s.LexicalOnly() {
		t.Fatal("Expected lexical-only store when no dimension is configured")
	}

	// Metadata writes still work.
	id, err := s.IndexMemory(testRecord("auth-spec", "Lexical doc"), nil)
	if err != nil {
		t.Fatalf("IndexMemory without embedding failed: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected non-zero id")
	}

	// Vector operations refuse loudly instead of returning empty results.
	if _, err := s.IndexMemory(testRecord("auth-spec", "v"), []float32{1}); !IsUnavailable(err) {
		t.Errorf("Expected StoreUnavailableError, got %v", err)
	}
	if _, err := s.VectorSearch([]float32{1}, SearchOptions{}); !IsUnavailable(err) {
		t.Errorf("Expected StoreUnavailableError from VectorSearch, got %v", err)
	}
	if err := s.MarkEmbeddingSuccess(id, []float32{1}); !IsUnavailable(err) {
		t.Errorf("Expected StoreUnavailableError from MarkEmbeddingSuccess, got %v", err)
	}
}

func TestDimensionPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(Options{Path: path, Dimensions: 4})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	s.Close()

	// The stored dimension wins over a conflicting configuration.
	s, err = Open(Options{Path: path, Dimensions: 8})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	if s.Dimensions() != 4 {
		t.Errorf("Expected stored dimension 4, got %d", s.Dimensions())
	}
}

func TestMarkEmbeddingLifecycle(t *testing.T) {
	s := openTestStore(t, 4)

	id, err := s.IndexMemory(testRecord("auth-spec", "Lifecycle doc"), nil)
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}

	if err := s.MarkEmbeddingFailed(id, "model not loaded"); err != nil {
		t.Fatalf("MarkEmbeddingFailed failed: %v", err)
	}
	rec, _ := s.GetMemory(id)
	if rec.EmbeddingStatus != StatusFailed || rec.RetryCount != 1 {
		t.Errorf("Expected failed/retry=1, got %s/%d", rec.EmbeddingStatus, rec.RetryCount)
	}
	if rec.FailureReason != "model not loaded" {
		t.Errorf("Expected failure reason recorded, got %q", rec.FailureReason)
	}

	if err := s.MarkEmbeddingSuccess(id, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("MarkEmbeddingSuccess failed: %v", err)
	}
	rec, _ = s.GetMemory(id)
	if rec.EmbeddingStatus != StatusSuccess {
		t.Errorf("Expected success after retry, got %s", rec.EmbeddingStatus)
	}
	if rec.FailureReason != "" {
		t.Errorf("Expected failure reason cleared, got %q", rec.FailureReason)
	}

	report, _ := s.VerifyIntegrity()
	if !report.IsConsistent {
		t.Errorf("Expected consistent store after retry, got %+v", report)
	}
}

func TestMarkPendingDropsStaleVector(t *testing.T) {
	s := openTestStore(t, 4)

	id, err := s.IndexMemory(testRecord("auth-spec", "Changed doc"), []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}

	// A file change re-queues the record; the old vector must go with it.
	if err := s.MarkPending(id); err != nil {
		t.Fatalf("MarkPending failed: %v", err)
	}

	rec, _ := s.GetMemory(id)
	if rec.EmbeddingStatus != StatusPending {
		t.Errorf("Expected status pending, got %s", rec.EmbeddingStatus)
	}
	if rec.EmbeddingGeneratedAt != nil {
		t.Error("Expected embedding_generated_at cleared")
	}

	report, err := s.VerifyIntegrity()
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if !report.IsConsistent {
		t.Errorf("Expected consistent store after MarkPending, got %+v", report)
	}
	if report.TotalVectors != 0 {
		t.Errorf("Expected stale vector removed, got %d vectors", report.TotalVectors)
	}
}

func TestMarkEmbeddingFailedDropsStaleVector(t *testing.T) {
	s := openTestStore(t, 4)

	id, err := s.IndexMemory(testRecord("auth-spec", "Re-embed doc"), []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}

	if err := s.MarkEmbeddingFailed(id, "re-embed failed"); err != nil {
		t.Fatalf("MarkEmbeddingFailed failed: %v", err)
	}

	report, err := s.VerifyIntegrity()
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if !report.IsConsistent {
		t.Errorf("Expected consistent store after failure, got %+v", report)
	}

	hits, err := s.VectorSearch([]float32{1, 0, 0, 0}, SearchOptions{})
	if err != nil {
		t.Fatalf("VectorSearch failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("Expected no hits for a failed record, got %d", len(hits))
	}
}

func TestIndexMemoryWeightBounds(t *testing.T) {
	s := openTestStore(t, 4)

	// An explicit weight of zero is a legal value, not "unset".
	zero := testRecord("auth-spec", "Zero weight")
	zero.ImportanceWeight = 0
	id, err := s.IndexMemory(zero, nil)
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}
	got, _ := s.GetMemory(id)
	if got.ImportanceWeight != 0 {
		t.Errorf("Expected weight 0 preserved, got %v", got.ImportanceWeight)
	}

	heavy := testRecord("auth-spec", "Too heavy")
	heavy.ImportanceWeight = 1.5
	if _, err := s.IndexMemory(heavy, nil); !IsValidation(err) {
		t.Errorf("Expected ValidationError for weight above 1, got %v", err)
	}

	negative := testRecord("auth-spec", "Negative")
	negative.ImportanceWeight = -0.1
	if _, err := s.IndexMemory(negative, nil); !IsValidation(err) {
		t.Errorf("Expected ValidationError for negative weight, got %v", err)
	}
}

func TestListFailedHonorsRetryCeiling(t *testing.T) {
	s := openTestStore(t, 4)

	id, err := s.IndexMemory(testRecord("auth-spec", "Flaky doc"), nil)
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := s.MarkEmbeddingFailed(id, "transient"); err != nil {
			t.Fatalf("MarkEmbeddingFailed failed: %v", err)
		}
	}

	failed, err := s.ListFailed(5)
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected 1 retryable record at 4 attempts, got %d", len(failed))
	}

	if err := s.MarkEmbeddingFailed(id, "transient"); err != nil {
		t.Fatalf("MarkEmbeddingFailed failed: %v", err)
	}

	failed, err = s.ListFailed(5)
	if err != nil {
		t.Fatalf("ListFailed failed: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("Expected no retryable records at the ceiling, got %d", len(failed))
	}

	// The record stays failed; it is excluded from retries, not deleted.
	rec, _ := s.GetMemory(id)
	if rec.EmbeddingStatus != StatusFailed || rec.RetryCount != 5 {
		t.Errorf("Expected failed/retry=5, got %s/%d", rec.EmbeddingStatus, rec.RetryCount)
	}
}

func TestGetByFolderPrefersImportance(t *testing.T) {
	s := openTestStore(t, 4)

	low := testRecord("auth-spec", "Low weight")
	low.ImportanceWeight = 0.3
	if _, err := s.IndexMemory(low, nil); err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}

	high := testRecord("auth-spec", "High weight")
	high.ImportanceWeight = 0.9
	if _, err := s.IndexMemory(high, nil); err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}

	got, err := s.GetByFolder("auth-spec")
	if err != nil {
		t.Fatalf("GetByFolder failed: %v", err)
	}
	if got.Title != "High weight" {
		t.Errorf("Expected highest-weight record, got %q", got.Title)
	}

	if _, err := s.GetByFolder("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown folder, got %v", err)
	}
}

func TestVerifyIntegrityDetectsMismatches(t *testing.T) {
	s := openTestStore(t, 4)

	id, err := s.IndexMemory(testRecord("auth-spec", "Doc"), []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}

	// Orphaned vector: a vector row with no owning record.
	if _, err := s.db.Exec(`INSERT INTO memory_vectors (id, embedding) VALUES (999, ?)`,
		EncodeVector([]float32{0, 1, 0, 0})); err != nil {
		t.Fatalf("Failed to insert orphan vector: %v", err)
	}

	// Missing vector: a success record whose vector row is gone.
	if _, err := s.db.Exec(`DELETE FROM memory_vectors WHERE id = ?`, id); err != nil {
		t.Fatalf("Failed to delete vector: %v", err)
	}

	report, err := s.VerifyIntegrity()
	if err != nil {
		t.Fatalf("VerifyIntegrity failed: %v", err)
	}
	if report.IsConsistent {
		t.Fatal("Expected inconsistent report")
	}
	if len(report.OrphanedVectors) != 1 || report.OrphanedVectors[0] != 999 {
		t.Errorf("Expected orphaned vector 999, got %v", report.OrphanedVectors)
	}
	if len(report.MissingVectors) != 1 || report.MissingVectors[0] != id {
		t.Errorf("Expected missing vector for record %d, got %v", id, report.MissingVectors)
	}

	// The report never repairs anything.
	second, _ := s.VerifyIntegrity()
	if second.IsConsistent {
		t.Error("Expected inconsistency to persist after reporting")
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t, 4)

	if _, err := s.IndexMemory(testRecord("a", "One"), []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}
	if _, err := s.IndexMemory(testRecord("b", "Two"), nil); err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}
	id, err := s.IndexMemory(testRecord("c", "Three"), nil)
	if err != nil {
		t.Fatalf("IndexMemory failed: %v", err)
	}
	if err := s.MarkEmbeddingFailed(id, "boom"); err != nil {
		t.Fatalf("MarkEmbeddingFailed failed: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalMemories != 3 || stats.SuccessRecords != 1 || stats.PendingRecords != 1 || stats.FailedRecords != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.TotalVectors != 1 {
		t.Errorf("Expected 1 vector, got %d", stats.TotalVectors)
	}
}
