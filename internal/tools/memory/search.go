package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mnemohq/mnemo-mcp/internal/embed"
	"github.com/mnemohq/mnemo-mcp/internal/store"
	"github.com/mnemohq/mnemo-mcp/internal/tools"
)

const (
	minConcepts = 2
	maxConcepts = 5
)

type SearchTool struct {
	deps Deps
}

func NewSearchTool(deps Deps) *SearchTool {
	return &SearchTool{deps: deps}
}

func (t *SearchTool) Name() string {
	return "memory_search"
}

func (t *SearchTool) Description() string {
	return `Search stored memories by meaning.

Embeds the query and ranks all indexed memories by cosine similarity
(0-100 scale, 100 = identical meaning). Pass 2-5 concepts to require
every concept to match (AND semantics, ranked by mean similarity).

When no embedding model is available the search falls back to lexical
trigger-phrase matching and the response carries mode "lexical".`
}

func (t *SearchTool) Title() string {
	return "Search Memories"
}

func (t *SearchTool) Annotations() map[string]bool {
	return tools.ReadOnlyAnnotations()
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "Natural-language search query"
			},
			"concepts": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 2,
				"maxItems": 5,
				"description": "Independent concepts that must ALL match"
			},
			"specFolder": {
				"type": "string",
				"description": "Restrict results to one spec folder"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum results (default 10)"
			},
			"minSimilarity": {
				"type": "number",
				"description": "Drop hits below this similarity (0-100)"
			}
		},
		"required": ["query"]
	}`)
}

type searchRequest struct {
	Query         string   `json:"query"`
	Concepts      []string `json:"concepts"`
	SpecFolder    string   `json:"specFolder"`
	Limit         int      `json:"limit"`
	MinSimilarity float64  `json:"minSimilarity"`
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req searchRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, tools.NewInvalidParamsError("query is required")
	}
	if len(req.Concepts) > 0 && (len(req.Concepts) < minConcepts || len(req.Concepts) > maxConcepts) {
		return nil, tools.NewInvalidParamsError(
			fmt.Sprintf("concepts requires between %d and %d entries, got %d", minConcepts, maxConcepts, len(req.Concepts)))
	}
	if req.Limit <= 0 {
		req.Limit = store.DefaultSearchLimit
	}

	if !t.deps.semanticReady() {
		return t.lexicalFallback(req)
	}

	opts := store.SearchOptions{
		Limit:         req.Limit,
		MinSimilarity: req.MinSimilarity,
		SpecFolder:    req.SpecFolder,
	}

	if len(req.Concepts) > 0 {
		return t.conceptSearch(ctx, req, opts)
	}

	queryVec, err := t.deps.Engine.Embed(ctx, req.Query, embed.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := t.deps.Store.VectorSearch(queryVec, opts)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"mode":  "semantic",
		"query": req.Query,
		"count": len(hits),
		"hits":  hits,
	}, nil
}

func (t *SearchTool) conceptSearch(ctx context.Context, req searchRequest, opts store.SearchOptions) (interface{}, error) {
	vectors := make([][]float32, 0, len(req.Concepts))
	for _, concept := range req.Concepts {
		vec, err := t.deps.Engine.Embed(ctx, concept, embed.ModeQuery)
		if err != nil {
			return nil, fmt.Errorf("embed concept %q: %w", concept, err)
		}
		vectors = append(vectors, vec)
	}

	hits, err := t.deps.Store.MultiConceptSearch(vectors, opts)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"mode":     "semantic",
		"query":    req.Query,
		"concepts": req.Concepts,
		"count":    len(hits),
		"hits":     hits,
	}, nil
}

// lexicalFallback answers via trigger-phrase matching when no embedding
// engine is available. The mode field tells callers the results are not
// similarity-ranked. The folder restriction still applies, and concepts
// are folded into the matched text since AND ranking needs vectors.
func (t *SearchTool) lexicalFallback(req searchRequest) (interface{}, error) {
	log.Warn("semantic search unavailable, answering lexically", "query", req.Query)

	matchText := req.Query
	if len(req.Concepts) > 0 {
		matchText += " " + strings.Join(req.Concepts, " ")
	}

	hits, err := t.deps.Matcher.MatchFolder(matchText, req.SpecFolder, req.Limit)
	if err != nil {
		return nil, err
	}

	resp := map[string]interface{}{
		"mode":  "lexical",
		"query": req.Query,
		"count": len(hits),
		"hits":  hits,
	}
	if req.SpecFolder != "" {
		resp["specFolder"] = req.SpecFolder
	}
	if len(req.Concepts) > 0 {
		resp["concepts"] = req.Concepts
	}
	return resp, nil
}
