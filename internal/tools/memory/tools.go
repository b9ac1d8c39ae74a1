// Package memory implements the MCP tool surface of the semantic memory
// store: search, load, trigger matching, saving, session browsing, and
// status reporting.
package memory

import (
	"github.com/mnemohq/mnemo-mcp/internal/embed"
	"github.com/mnemohq/mnemo-mcp/internal/indexer"
	"github.com/mnemohq/mnemo-mcp/internal/logger"
	"github.com/mnemohq/mnemo-mcp/internal/reader"
	"github.com/mnemohq/mnemo-mcp/internal/session"
	"github.com/mnemohq/mnemo-mcp/internal/store"
	"github.com/mnemohq/mnemo-mcp/internal/tools"
	"github.com/mnemohq/mnemo-mcp/internal/trigger"
)

var log = logger.ForComponent("tools.memory")

// Deps bundles the collaborators the memory tools share. Engine and
// Worker are nil when the store runs lexical-only; tools that need them
// degrade or refuse with a clear message instead of panicking.
type Deps struct {
	Store    *store.Store
	Engine   embed.Engine
	Reader   *reader.Reader
	Matcher  *trigger.Matcher
	Sessions *session.Manager
	Worker   *indexer.Worker
}

func GetTools(deps Deps) []tools.Tool {
	return []tools.Tool{
		NewSearchTool(deps),
		NewLoadTool(deps),
		NewMatchTriggersTool(deps),
		NewSaveTool(deps),
		NewBrowseTool(deps),
		NewStatusTool(deps),
	}
}

func (d Deps) semanticReady() bool {
	return d.Engine != nil && !d.Store.LexicalOnly()
}
