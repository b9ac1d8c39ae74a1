package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemohq/mnemo-mcp/internal/embed"
	"github.com/mnemohq/mnemo-mcp/internal/embed/mock"
	"github.com/mnemohq/mnemo-mcp/internal/reader"
	"github.com/mnemohq/mnemo-mcp/internal/session"
	"github.com/mnemohq/mnemo-mcp/internal/store"
	"github.com/mnemohq/mnemo-mcp/internal/trigger"
)

func newTestDeps(t *testing.T, engine embed.Engine) Deps {
	t.Helper()

	dims := 0
	if engine != nil {
		dims = engine.Dimensions()
	}
	s, err := store.Open(store.Options{
		Path:       filepath.Join(t.TempDir(), "test.db"),
		Dimensions: dims,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	r, err := reader.New()
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}

	sessions, err := session.NewManager(t.TempDir(), time.Hour, session.DefaultPageSize)
	if err != nil {
		t.Fatalf("Failed to create session manager: %v", err)
	}

	return Deps{
		Store:    s,
		Engine:   engine,
		Reader:   r,
		Matcher:  trigger.NewMatcher(s, time.Millisecond, 2000),
		Sessions: sessions,
	}
}

func execute(t *testing.T, tool interface {
	Execute(ctx context.Context, input json.RawMessage) (interface{}, error)
}, args map[string]interface{}) map[string]interface{} {
	t.Helper()

	input, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("Failed to marshal args: %v", err)
	}
	result, err := tool.Execute(context.Background(), input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	resp, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("Unexpected result type %T", result)
	}
	return resp
}

func saveMemory(t *testing.T, deps Deps, folder, title, content string) int64 {
	t.Helper()

	resp := execute(t, NewSaveTool(deps), map[string]interface{}{
		"specFolder": folder,
		"filePath":   filepath.Join(t.TempDir(), title+".md"),
		"title":      title,
		"content":    content,
	})
	id, ok := resp["id"].(int64)
	if !ok {
		t.Fatalf("Expected int64 id, got %T", resp["id"])
	}
	return id
}

const hooksDoc = `# React hooks

React hooks let components manage state. The useEffect cleanup function
prevents leaks. Always return a cleanup function from useEffect hooks.
React hooks compose well with custom hooks.`

func TestSaveExtractsPhrasesAndQueuesEmbedding(t *testing.T) {
	deps := newTestDeps(t, mock.New(64))

	id := saveMemory(t, deps, "react-patterns", "hooks", hooksDoc)

	rec, err := deps.Store.GetMemory(id)
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if rec.EmbeddingStatus != store.StatusPending {
		t.Errorf("Expected pending until the worker runs, got %s", rec.EmbeddingStatus)
	}
	if len(rec.TriggerPhrases) == 0 {
		t.Error("Expected trigger phrases extracted synchronously")
	}
}

func TestSaveValidation(t *testing.T) {
	deps := newTestDeps(t, nil)
	tool := NewSaveTool(deps)

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"title":"x"}`)); err == nil {
		t.Error("Expected error for missing required fields")
	}

	input, _ := json.Marshal(map[string]interface{}{
		"specFolder":       "a",
		"filePath":         "/tmp/x.md",
		"title":            "x",
		"content":          "body",
		"importanceWeight": 1.5,
	})
	if _, err := tool.Execute(context.Background(), input); err == nil {
		t.Error("Expected error for out-of-range importanceWeight")
	}
}

func TestMatchTriggersAfterSave(t *testing.T) {
	deps := newTestDeps(t, nil)

	saveMemory(t, deps, "react-patterns", "hooks", hooksDoc)

	resp := execute(t, NewMatchTriggersTool(deps), map[string]interface{}{
		"prompt": "why does my useEffect cleanup run twice with react hooks",
	})
	hits, ok := resp["hits"].([]trigger.Hit)
	if !ok {
		t.Fatalf("Unexpected hits type %T", resp["hits"])
	}
	if len(hits) == 0 {
		t.Fatal("Expected a trigger match for overlapping phrases")
	}
	if hits[0].SpecFolder != "react-patterns" {
		t.Errorf("Expected the saved memory, got %s", hits[0].SpecFolder)
	}
}

func TestSearchLexicalFallback(t *testing.T) {
	deps := newTestDeps(t, nil)

	saveMemory(t, deps, "react-patterns", "hooks", hooksDoc)

	resp := execute(t, NewSearchTool(deps), map[string]interface{}{
		"query": "react hooks cleanup",
	})
	// Degraded mode is explicit, never silent empty results.
	if resp["mode"] != "lexical" {
		t.Errorf("Expected lexical fallback mode, got %v", resp["mode"])
	}
}

func TestSearchLexicalFallbackHonorsFolder(t *testing.T) {
	deps := newTestDeps(t, nil)

	saveMemory(t, deps, "react-patterns", "hooks", hooksDoc)
	saveMemory(t, deps, "vue-patterns", "composition", hooksDoc)

	resp := execute(t, NewSearchTool(deps), map[string]interface{}{
		"query":      "react hooks cleanup",
		"specFolder": "vue-patterns",
	})
	if resp["mode"] != "lexical" {
		t.Fatalf("Expected lexical mode, got %v", resp["mode"])
	}
	if resp["specFolder"] != "vue-patterns" {
		t.Errorf("Expected the folder restriction echoed, got %v", resp["specFolder"])
	}
	hits, ok := resp["hits"].([]trigger.Hit)
	if !ok {
		t.Fatalf("Unexpected hits type %T", resp["hits"])
	}
	if len(hits) == 0 {
		t.Fatal("Expected a hit in the restricted folder")
	}
	for _, hit := range hits {
		if hit.SpecFolder != "vue-patterns" {
			t.Errorf("Expected only vue-patterns hits, got %s", hit.SpecFolder)
		}
	}
}

func TestSearchSemantic(t *testing.T) {
	engine := mock.New(64)
	deps := newTestDeps(t, engine)

	id := saveMemory(t, deps, "react-patterns", "hooks", hooksDoc)
	vec, err := engine.Embed(context.Background(), hooksDoc, embed.ModeDocument)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if err := deps.Store.MarkEmbeddingSuccess(id, vec); err != nil {
		t.Fatalf("MarkEmbeddingSuccess failed: %v", err)
	}

	resp := execute(t, NewSearchTool(deps), map[string]interface{}{
		"query": "cleanup function for react hooks",
	})
	if resp["mode"] != "semantic" {
		t.Fatalf("Expected semantic mode, got %v", resp["mode"])
	}
	hits := resp["hits"].([]store.SearchHit)
	if len(hits) != 1 || hits[0].ID != id {
		t.Fatalf("Expected the saved memory back, got %d hits", len(hits))
	}
	if hits[0].Similarity <= 50 {
		t.Errorf("Expected similarity above 50, got %.2f", hits[0].Similarity)
	}
}

func TestSearchConceptCountValidation(t *testing.T) {
	deps := newTestDeps(t, mock.New(64))
	tool := NewSearchTool(deps)

	input, _ := json.Marshal(map[string]interface{}{
		"query":    "x",
		"concepts": []string{"only one"},
	})
	if _, err := tool.Execute(context.Background(), input); err == nil {
		t.Error("Expected error for a single concept")
	}

	input, _ = json.Marshal(map[string]interface{}{
		"query":    "x",
		"concepts": []string{"a", "b", "c", "d", "e", "f"},
	})
	if _, err := tool.Execute(context.Background(), input); err == nil {
		t.Error("Expected error for six concepts")
	}
}

func TestLoadBySpecFolder(t *testing.T) {
	deps := newTestDeps(t, nil)
	saveMemory(t, deps, "react-patterns", "hooks", hooksDoc)

	resp := execute(t, NewLoadTool(deps), map[string]interface{}{
		"specFolder": "react-patterns",
	})
	content, _ := resp["content"].(string)
	if content == "" {
		t.Fatal("Expected memory content")
	}
}

func TestLoadUnknownMemory(t *testing.T) {
	deps := newTestDeps(t, nil)
	tool := NewLoadTool(deps)

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"memoryId": 42}`)); err == nil {
		t.Error("Expected error for unknown memory id")
	}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Error("Expected error when neither id nor folder is given")
	}
}

func TestBrowseSessionFlow(t *testing.T) {
	engine := mock.New(64)
	deps := newTestDeps(t, engine)

	for _, title := range []string{"hooks", "state", "effects"} {
		id := saveMemory(t, deps, "react-patterns", title, hooksDoc)
		vec, err := engine.Embed(context.Background(), hooksDoc+" "+title, embed.ModeDocument)
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		if err := deps.Store.MarkEmbeddingSuccess(id, vec); err != nil {
			t.Fatalf("MarkEmbeddingSuccess failed: %v", err)
		}
	}

	tool := NewBrowseTool(deps)

	resp := execute(t, tool, map[string]interface{}{
		"action":   "start",
		"query":    "react hooks cleanup",
		"pageSize": 2,
	})
	sessionID, _ := resp["sessionId"].(string)
	if sessionID == "" {
		t.Fatal("Expected a session id")
	}
	if resp["state"] != string(session.StateResults) {
		t.Fatalf("Expected RESULTS state, got %v", resp["state"])
	}
	if resp["totalPages"] != 2 {
		t.Errorf("Expected 2 pages of 3 results at size 2, got %v", resp["totalPages"])
	}

	resp = execute(t, tool, map[string]interface{}{
		"action": "next", "sessionId": sessionID,
	})
	if resp["page"] != 2 {
		t.Errorf("Expected page 2, got %v", resp["page"])
	}

	// Next past the last page is a no-op with a message.
	resp = execute(t, tool, map[string]interface{}{
		"action": "next", "sessionId": sessionID,
	})
	if resp["page"] != 2 {
		t.Errorf("Expected page still 2, got %v", resp["page"])
	}
	if resp["message"] == nil {
		t.Error("Expected an explanatory no-op message")
	}

	resp = execute(t, tool, map[string]interface{}{
		"action": "cluster", "sessionId": sessionID,
	})
	if resp["state"] != string(session.StateClustered) {
		t.Errorf("Expected CLUSTERED state, got %v", resp["state"])
	}

	resp = execute(t, tool, map[string]interface{}{
		"action": "quit", "sessionId": sessionID,
	})
	if resp["state"] != string(session.StateExit) {
		t.Errorf("Expected EXIT state, got %v", resp["state"])
	}
}

func TestBrowseUnknownSession(t *testing.T) {
	deps := newTestDeps(t, mock.New(64))
	tool := NewBrowseTool(deps)

	input, _ := json.Marshal(map[string]interface{}{
		"action": "next", "sessionId": "missing",
	})
	if _, err := tool.Execute(context.Background(), input); err == nil {
		t.Error("Expected error for unknown session")
	}
}

func TestBrowseRequiresSemanticStore(t *testing.T) {
	deps := newTestDeps(t, nil)
	tool := NewBrowseTool(deps)

	input, _ := json.Marshal(map[string]interface{}{
		"action": "start", "query": "anything",
	})
	_, err := tool.Execute(context.Background(), input)
	if !store.IsUnavailable(err) {
		t.Errorf("Expected StoreUnavailableError on a lexical-only store, got %v", err)
	}
}

func TestStatusReportsModeAndIntegrity(t *testing.T) {
	deps := newTestDeps(t, nil)
	saveMemory(t, deps, "react-patterns", "hooks", hooksDoc)

	resp := execute(t, NewStatusTool(deps), map[string]interface{}{})
	if resp["mode"] != "lexical" {
		t.Errorf("Expected lexical mode reported, got %v", resp["mode"])
	}
	report, ok := resp["integrity"].(*store.IntegrityReport)
	if !ok {
		t.Fatalf("Unexpected integrity type %T", resp["integrity"])
	}
	if !report.IsConsistent {
		t.Errorf("Expected consistent store, got %+v", report)
	}
}
