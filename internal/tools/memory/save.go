package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mnemohq/mnemo-mcp/internal/store"
	"github.com/mnemohq/mnemo-mcp/internal/tools"
	"github.com/mnemohq/mnemo-mcp/internal/trigger"
)

const defaultImportanceWeight = 0.5

type SaveTool struct {
	deps Deps
}

func NewSaveTool(deps Deps) *SaveTool {
	return &SaveTool{deps: deps}
}

func (t *SaveTool) Name() string {
	return "memory_save"
}

func (t *SaveTool) Description() string {
	return `Save a memory for later semantic retrieval.

Writes the markdown content to filePath (or indexes an existing file
when content is omitted), extracts trigger phrases immediately, and
queues embedding generation in the background. The memory is lexically
matchable right away; semantic search picks it up once its embedding
lands.`
}

func (t *SaveTool) Title() string {
	return "Save Memory"
}

func (t *SaveTool) Annotations() map[string]bool {
	return tools.NonIdempotentWriteAnnotations()
}

func (t *SaveTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"specFolder": {
				"type": "string",
				"description": "Spec folder this memory belongs to"
			},
			"filePath": {
				"type": "string",
				"description": "Markdown file backing this memory"
			},
			"title": {
				"type": "string",
				"description": "Human-readable memory title"
			},
			"content": {
				"type": "string",
				"description": "Markdown content; omitted means index the existing file"
			},
			"anchorId": {
				"type": "string",
				"description": "Heading anchor when the memory is one section of the file"
			},
			"importanceWeight": {
				"type": "number",
				"description": "Ranking tiebreaker weight, 0-1 (default 0.5)"
			}
		},
		"required": ["specFolder", "filePath", "title"]
	}`)
}

func (t *SaveTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req struct {
		SpecFolder       string   `json:"specFolder"`
		FilePath         string   `json:"filePath"`
		Title            string   `json:"title"`
		Content          string   `json:"content"`
		AnchorID         string   `json:"anchorId"`
		ImportanceWeight *float64 `json:"importanceWeight"`
	}
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, err
	}
	if req.SpecFolder == "" || req.FilePath == "" || req.Title == "" {
		return nil, tools.NewInvalidParamsError("specFolder, filePath, and title are required")
	}

	weight := defaultImportanceWeight
	if req.ImportanceWeight != nil {
		if *req.ImportanceWeight < 0 || *req.ImportanceWeight > 1 {
			return nil, tools.NewInvalidParamsError("importanceWeight must be between 0 and 1")
		}
		weight = *req.ImportanceWeight
	}

	content := req.Content
	if content != "" {
		if err := os.MkdirAll(filepath.Dir(req.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("create memory directory: %w", err)
		}
		if err := os.WriteFile(req.FilePath, []byte(content), 0644); err != nil {
			return nil, fmt.Errorf("write memory file: %w", err)
		}
		t.deps.Reader.Invalidate(req.FilePath)
	} else {
		var err error
		content, err = t.deps.Reader.Read(req.FilePath)
		if err != nil {
			return nil, fmt.Errorf("read memory file: %w", err)
		}
	}

	phrases := trigger.ExtractPhrases(content)

	rec := &store.MemoryRecord{
		SpecFolder:       req.SpecFolder,
		FilePath:         req.FilePath,
		AnchorID:         req.AnchorID,
		Title:            req.Title,
		TriggerPhrases:   phrases,
		ImportanceWeight: weight,
	}

	id, err := t.deps.Store.IndexMemory(rec, nil)
	if err != nil {
		return nil, err
	}

	if t.deps.Worker != nil {
		t.deps.Worker.Enqueue(id)
	}
	t.deps.Matcher.Invalidate()

	log.Info("memory saved", "id", id, "folder", req.SpecFolder, "phrases", len(phrases))

	return map[string]interface{}{
		"id":             id,
		"specFolder":     req.SpecFolder,
		"title":          req.Title,
		"triggerPhrases": phrases,
		"status":         string(store.StatusPending),
	}, nil
}
