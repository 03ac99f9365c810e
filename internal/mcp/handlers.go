package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
	"github.com/diverhq/diver/internal/ops"
	"github.com/diverhq/diver/internal/pipeline"
	"github.com/diverhq/diver/internal/queue"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	queue  *queue.Store
	cfg    *config.Config
	secret []byte
	deps   pipeline.Deps // enrichment collaborators and assets dir for drains
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, q *queue.Store, cfg *config.Config, secret []byte, deps pipeline.Deps) *Handlers {
	return &Handlers{db: db, queue: q, cfg: cfg, secret: secret, deps: deps}
}

// Request types for each tool

// SaveRequest represents the arguments for item_save.
type SaveRequest struct {
	URL             string         `json:"url,omitempty"`
	Title           string         `json:"title,omitempty"`
	DescriptionText string         `json:"description_text,omitempty"`
	Type            string         `json:"type,omitempty"`
	StyleTags       []string       `json:"style_tags,omitempty"`
	Categories      []string       `json:"categories,omitempty"`
	Purposes        []string       `json:"purposes,omitempty"`
	Source          string         `json:"source,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	MasterCaptureID string         `json:"master_capture_id,omitempty"`
	Location        *item.Location `json:"location,omitempty"`
}

// FetchRequest represents the arguments for item_fetch.
type FetchRequest struct {
	ID string `json:"id"`
}

// ListRequest represents the arguments for item_list.
type ListRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ArchiveRequest represents the arguments for item_archive.
type ArchiveRequest struct {
	ID string `json:"id"`
}

// ExportRequest represents the arguments for item_export.
type ExportRequest struct {
	Path   string `json:"path"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// WrapRequest represents the arguments for link_wrap.
type WrapRequest struct {
	URL            string `json:"url"`
	Title          string `json:"title,omitempty"`
	IncludePayload bool   `json:"include_payload,omitempty"`
}

// ResolveRequest represents the arguments for link_resolve.
type ResolveRequest struct {
	URL string `json:"url"`
}

// Handler implementations

// HandleSave handles the item_save tool call.
func (h *Handlers) HandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Save(h.queue, h.cfg, ops.SaveInput{
		URL:             input.URL,
		Title:           input.Title,
		DescriptionText: input.DescriptionText,
		Type:            input.Type,
		StyleTags:       input.StyleTags,
		Categories:      input.Categories,
		Purposes:        input.Purposes,
		Source:          input.Source,
		SessionID:       input.SessionID,
		MasterCaptureID: input.MasterCaptureID,
		Location:        input.Location,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the item_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(h.db, ops.FetchInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the item_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(h.db, ops.ListInput{
		Status: input.Status,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleArchive handles the item_archive tool call.
func (h *Handlers) HandleArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ArchiveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Archive(h.db, ops.ArchiveInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the item_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(h.db, ops.ExportInput{
		Path:   input.Path,
		Status: input.Status,
		Limit:  input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDrain handles the queue_drain tool call.
func (h *Handlers) HandleDrain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Drain(ctx, h.db, h.queue, h.cfg, h.secret, h.deps)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWrap handles the link_wrap tool call.
func (h *Handlers) HandleWrap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WrapRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.WrapLink(h.cfg, h.secret, ops.WrapLinkInput{
		URL:            input.URL,
		Title:          input.Title,
		IncludePayload: input.IncludePayload,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleResolve handles the link_resolve tool call.
func (h *Handlers) HandleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ResolveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ResolveLink(h.secret, ops.ResolveLinkInput{URL: input.URL})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if diverErr, ok := err.(*errors.DiverError); ok {
		errorObj := map[string]any{
			"code":    diverErr.Code,
			"message": diverErr.Message,
			"status":  diverErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if diverErr.Code != errors.ErrInternal && diverErr.Details != nil {
			errorObj["details"] = diverErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
