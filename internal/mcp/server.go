package mcp

import (
	"context"
	"database/sql"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/pipeline"
	"github.com/diverhq/diver/internal/queue"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"item_save": {
		def:     saveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSave },
	},
	"item_fetch": {
		def:     fetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetch },
	},
	"item_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"item_archive": {
		def:     archiveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleArchive },
	},
	"item_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"queue_drain": {
		def:     drainToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDrain },
	},
	"link_wrap": {
		def:     wrapToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWrap },
	},
	"link_resolve": {
		def:     resolveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResolve },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with diver tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(db *sql.DB, q *queue.Store, cfg *config.Config, secret []byte, deps pipeline.Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"diver",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, q, cfg, secret, deps)

	disabled := make(map[string]bool)
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, q *queue.Store, cfg *config.Config, secret []byte, deps pipeline.Deps, version string) error {
	s := NewServer(db, q, cfg, secret, deps, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
