package memory

import (
	"context"
	"encoding/json"

	"github.com/mnemohq/mnemo-mcp/internal/tools"
)

type StatusTool struct {
	deps Deps
}

func NewStatusTool(deps Deps) *StatusTool {
	return &StatusTool{deps: deps}
}

func (t *StatusTool) Name() string {
	return "memory_status"
}

func (t *StatusTool) Description() string {
	return `Report store health: record counts by embedding status, vector
count, capability mode, and a metadata/vector integrity check. The check
only reports inconsistencies; it never repairs them.`
}

func (t *StatusTool) Title() string {
	return "Memory Store Status"
}

func (t *StatusTool) Annotations() map[string]bool {
	return tools.ReadOnlyAnnotations()
}

func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {}
	}`)
}

func (t *StatusTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	stats, err := t.deps.Store.Stats()
	if err != nil {
		return nil, err
	}

	integrity, err := t.deps.Store.VerifyIntegrity()
	if err != nil {
		return nil, err
	}

	mode := "semantic"
	if !t.deps.semanticReady() {
		mode = "lexical"
	}

	resp := map[string]interface{}{
		"mode":       mode,
		"dimensions": t.deps.Store.Dimensions(),
		"stats":      stats,
		"integrity":  integrity,
	}
	if t.deps.Worker != nil {
		resp["indexer"] = t.deps.Worker.GetStats()
	}
	return resp, nil
}
