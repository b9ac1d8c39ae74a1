package memory

import (
	"context"
	"encoding/json"

	"github.com/mnemohq/mnemo-mcp/internal/tools"
	"github.com/mnemohq/mnemo-mcp/internal/trigger"
)

type MatchTriggersTool struct {
	deps Deps
}

func NewMatchTriggersTool(deps Deps) *MatchTriggersTool {
	return &MatchTriggersTool{deps: deps}
}

func (t *MatchTriggersTool) Name() string {
	return "memory_match_triggers"
}

func (t *MatchTriggersTool) Description() string {
	return `Find memories whose trigger phrases appear in a prompt.

Pure lexical matching against the cached phrase index; no embedding
model involved, so it answers in milliseconds. Use it to decide whether
a full memory_search is worth running for an incoming prompt.`
}

func (t *MatchTriggersTool) Title() string {
	return "Match Trigger Phrases"
}

func (t *MatchTriggersTool) Annotations() map[string]bool {
	return tools.ReadOnlyAnnotations()
}

func (t *MatchTriggersTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {
				"type": "string",
				"description": "Prompt text to scan for trigger phrases"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum matches (default 3)"
			}
		},
		"required": ["prompt"]
	}`)
}

func (t *MatchTriggersTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req struct {
		Prompt string `json:"prompt"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, err
	}
	if req.Prompt == "" {
		return nil, tools.NewInvalidParamsError("prompt is required")
	}
	if req.Limit <= 0 {
		req.Limit = trigger.DefaultMatchLimit
	}

	hits, err := t.deps.Matcher.Match(req.Prompt, req.Limit)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"count": len(hits),
		"hits":  hits,
	}, nil
}
