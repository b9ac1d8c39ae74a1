package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mnemohq/mnemo-mcp/internal/embed"
	"github.com/mnemohq/mnemo-mcp/internal/session"
	"github.com/mnemohq/mnemo-mcp/internal/store"
	"github.com/mnemohq/mnemo-mcp/internal/tools"
)

const previewLimit = 2000

type BrowseTool struct {
	deps Deps
}

func NewBrowseTool(deps Deps) *BrowseTool {
	return &BrowseTool{deps: deps}
}

func (t *BrowseTool) Name() string {
	return "memory_browse"
}

func (t *BrowseTool) Description() string {
	return `Browse search results interactively across multiple calls.

action=start runs a search and opens a session; every later call passes
the returned sessionId plus one action: next, prev, filter, clear,
cluster, uncluster, view, back, resume, or quit. Invalid actions for the
current view are no-ops with an explanatory message.`
}

func (t *BrowseTool) Title() string {
	return "Browse Search Results"
}

func (t *BrowseTool) Annotations() map[string]bool {
	return tools.SafeWriteAnnotations()
}

func (t *BrowseTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["start", "resume", "next", "prev", "filter", "clear", "cluster", "uncluster", "view", "back", "quit"],
				"description": "Session action"
			},
			"sessionId": {
				"type": "string",
				"description": "Session id (required for every action except start)"
			},
			"query": {
				"type": "string",
				"description": "Search query (start only)"
			},
			"specFolder": {
				"type": "string",
				"description": "Restrict the initial search to one folder (start only)"
			},
			"pageSize": {
				"type": "integer",
				"description": "Results per page, 1-20 (start only, default 5)"
			},
			"n": {
				"type": "integer",
				"description": "1-indexed result number on the current page (view only)"
			},
			"filterKind": {
				"type": "string",
				"enum": ["folder", "phrase", "after"],
				"description": "Filter dimension (filter only)"
			},
			"filterValue": {
				"type": "string",
				"description": "Filter value (filter only)"
			}
		},
		"required": ["action"]
	}`)
}

type browseRequest struct {
	Action      string `json:"action"`
	SessionID   string `json:"sessionId"`
	Query       string `json:"query"`
	SpecFolder  string `json:"specFolder"`
	PageSize    int    `json:"pageSize"`
	N           int    `json:"n"`
	FilterKind  string `json:"filterKind"`
	FilterValue string `json:"filterValue"`
}

func (t *BrowseTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req browseRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, err
	}

	if req.Action == "start" {
		return t.start(ctx, req)
	}

	if req.SessionID == "" {
		return nil, tools.NewInvalidParamsError("sessionId is required for action " + req.Action)
	}
	s, err := t.deps.Sessions.Load(req.SessionID)
	if err != nil {
		return nil, err
	}

	var (
		message string
		ok      bool
	)
	switch req.Action {
	case "resume":
		message, ok = "", true
	case "next":
		message, ok = s.Next()
	case "prev":
		message, ok = s.Prev()
	case "cluster":
		message, ok = s.Cluster()
	case "uncluster":
		message, ok = s.Uncluster()
	case "view":
		if req.N < 1 {
			return nil, tools.NewInvalidParamsError("view requires n >= 1")
		}
		message, ok = s.View(req.N)
	case "back":
		message, ok = s.Back()
	case "filter":
		if req.FilterKind == "" {
			return nil, tools.NewInvalidParamsError("filter requires filterKind")
		}
		message, ok = s.Filter(req.FilterKind, req.FilterValue)
	case "clear":
		message, ok = s.ClearFilters()
	case "quit":
		message, ok = s.Quit()
	default:
		return nil, tools.NewInvalidParamsError("unknown action: " + req.Action)
	}

	if ok {
		if err := t.deps.Sessions.Save(s); err != nil {
			return nil, err
		}
	}

	return t.render(s, message), nil
}

func (t *BrowseTool) start(ctx context.Context, req browseRequest) (interface{}, error) {
	if req.Query == "" {
		return nil, tools.NewInvalidParamsError("start requires a query")
	}
	if !t.deps.semanticReady() {
		return nil, &store.StoreUnavailableError{Op: "browse"}
	}

	queryVec, err := t.deps.Engine.Embed(ctx, req.Query, embed.ModeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := t.deps.Store.VectorSearch(queryVec, store.SearchOptions{
		Limit:      store.DefaultSearchLimit * 10,
		SpecFolder: req.SpecFolder,
	})
	if err != nil {
		return nil, err
	}

	s, err := t.deps.Sessions.Create(req.Query, hits, req.PageSize)
	if err != nil {
		return nil, err
	}

	return t.render(s, ""), nil
}

// render builds the state-dependent response shared by every action.
func (t *BrowseTool) render(s *session.Session, message string) map[string]interface{} {
	resp := map[string]interface{}{
		"sessionId":    s.ID,
		"state":        string(s.State),
		"query":        s.Query,
		"page":         s.Page,
		"totalPages":   s.TotalPages(),
		"totalResults": len(s.FilteredResults()),
		"filters":      s.Filters,
	}
	if message != "" {
		resp["message"] = message
	}

	switch s.State {
	case session.StateResults:
		resp["hits"] = s.PageHits()
	case session.StateClustered:
		clusters := make([]map[string]interface{}, 0, len(s.ClusteredResults))
		for _, folder := range s.ClusterFolders() {
			hits := s.ClusteredResults[folder]
			clusters = append(clusters, map[string]interface{}{
				"folder": folder,
				"count":  len(hits),
				"hits":   hits,
			})
		}
		resp["clusters"] = clusters
	case session.StatePreview:
		resp["selected"] = s.SelectedResult
		if s.SelectedResult != nil {
			content, err := t.deps.Reader.ReadSection(s.SelectedResult.FilePath, s.SelectedResult.AnchorID)
			if err != nil {
				resp["previewError"] = err.Error()
			} else {
				if len(content) > previewLimit {
					content = content[:previewLimit] + "\n..."
				}
				resp["preview"] = content
			}
		}
	case session.StateExit:
		if message == "" {
			resp["message"] = "session ended"
		}
	}

	return resp
}
