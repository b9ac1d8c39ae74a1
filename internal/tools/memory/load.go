package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mnemohq/mnemo-mcp/internal/store"
	"github.com/mnemohq/mnemo-mcp/internal/tools"
)

type LoadTool struct {
	deps Deps
}

func NewLoadTool(deps Deps) *LoadTool {
	return &LoadTool{deps: deps}
}

func (t *LoadTool) Name() string {
	return "memory_load"
}

func (t *LoadTool) Description() string {
	return `Load the full content of one memory.

Identify the memory by memoryId, or by specFolder to get that folder's
most important memory. An anchorId narrows the content to one markdown
section (heading anchor through the next same-level heading).`
}

func (t *LoadTool) Title() string {
	return "Load Memory Content"
}

func (t *LoadTool) Annotations() map[string]bool {
	return tools.ReadOnlyAnnotations()
}

func (t *LoadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"memoryId": {
				"type": "integer",
				"description": "Memory record id"
			},
			"specFolder": {
				"type": "string",
				"description": "Spec folder; loads its highest-weight memory"
			},
			"anchorId": {
				"type": "string",
				"description": "Heading anchor to slice the content to"
			}
		}
	}`)
}

func (t *LoadTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req struct {
		MemoryID   int64  `json:"memoryId"`
		SpecFolder string `json:"specFolder"`
		AnchorID   string `json:"anchorId"`
	}
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, err
	}
	if req.MemoryID == 0 && req.SpecFolder == "" {
		return nil, tools.NewInvalidParamsError("memoryId or specFolder is required")
	}

	var (
		rec *store.MemoryRecord
		err error
	)
	if req.MemoryID != 0 {
		rec, err = t.deps.Store.GetMemory(req.MemoryID)
	} else {
		rec, err = t.deps.Store.GetByFolder(req.SpecFolder)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, tools.NewInvalidParamsError(fmt.Sprintf("memory not found: %v", err))
		}
		return nil, err
	}

	anchor := req.AnchorID
	if anchor == "" {
		anchor = rec.AnchorID
	}

	content, err := t.deps.Reader.ReadSection(rec.FilePath, anchor)
	if err != nil {
		return nil, fmt.Errorf("load memory %d: %w", rec.ID, err)
	}

	return map[string]interface{}{
		"id":         rec.ID,
		"specFolder": rec.SpecFolder,
		"title":      rec.Title,
		"filePath":   rec.FilePath,
		"anchorId":   anchor,
		"content":    content,
	}, nil
}
