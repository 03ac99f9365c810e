package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool definitions. Schemas mirror the ops input structs; descriptions are
// what MCP clients show the model, so they stay short and action-oriented.

var saveToolDef = mcp.NewTool(
	"item_save",
	mcp.WithDescription("Save a link, text, or capture into the durable queue for later enrichment. Returns immediately; the item is processed on the next drain."),
	mcp.WithString("url", mcp.Description("Destination URL to save")),
	mcp.WithString("title", mcp.Description("Optional title for the item")),
	mcp.WithString("description_text", mcp.Description("Free text or notes; required if no url or payload is given")),
	mcp.WithString("type", mcp.Description("Item type: web, place, text, document, image, activity, qrCode, weather, product, media. Defaults to web.")),
	mcp.WithArray("style_tags", mcp.Description("Style tags"), mcp.WithStringItems()),
	mcp.WithArray("categories", mcp.Description("Categories"), mcp.WithStringItems()),
	mcp.WithArray("purposes", mcp.Description("Purposes"), mcp.WithStringItems()),
	mcp.WithString("source", mcp.Description("Capture source, e.g. share-extension")),
	mcp.WithString("session_id", mcp.Description("Capture session id")),
	mcp.WithString("master_capture_id", mcp.Description("Parent capture id for derived items")),
)

var fetchToolDef = mcp.NewTool(
	"item_fetch",
	mcp.WithDescription("Fetch a stored item by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
)

var listToolDef = mcp.NewTool(
	"item_list",
	mcp.WithDescription("List stored items, newest update first, with pagination."),
	mcp.WithString("status", mcp.Description("Filter by status: queued, processing, ready, failed, archived. Empty lists all.")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Page offset")),
)

var archiveToolDef = mcp.NewTool(
	"item_archive",
	mcp.WithDescription("Archive a ready item. Archiving is terminal but never deletes the record."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
)

var exportToolDef = mcp.NewTool(
	"item_export",
	mcp.WithDescription("Write an HTML digest of stored items to a file."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Output file path, must end in .html")),
	mcp.WithString("status", mcp.Description("Status to export (default ready)")),
	mcp.WithNumber("limit", mcp.Description("Maximum records to export (default 100)")),
)

var drainToolDef = mcp.NewTool(
	"queue_drain",
	mcp.WithDescription("Process every pending queue entry through the enrichment pipeline."),
)

var wrapToolDef = mcp.NewTool(
	"link_wrap",
	mcp.WithDescription("Mint a signed opaque link for a URL without saving anything."),
	mcp.WithString("url", mcp.Required(), mcp.Description("Destination URL")),
	mcp.WithString("title", mcp.Description("Title carried in the embedded payload")),
	mcp.WithBoolean("include_payload", mcp.Description("Embed the destination and title in the link itself")),
)

var resolveToolDef = mcp.NewTool(
	"link_resolve",
	mcp.WithDescription("Verify a wrapped link and recover its embedded payload."),
	mcp.WithString("url", mcp.Required(), mcp.Description("Wrapped URL to verify")),
)
