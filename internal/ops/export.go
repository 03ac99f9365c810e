package ops

import (
	"bytes"
	"database/sql"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/diverhq/diver/internal/db"
	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Status string // defaults to "ready"
	Path   string // output file, .html
	Limit  int    // default 100
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Export writes an HTML digest of stored records to a file. Description
// text is treated as markdown and rendered with goldmark; everything else
// is escaped.
func Export(database *sql.DB, input ExportInput) (*ExportOutput, error) {
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if filepath.Ext(path) != ".html" {
		return nil, errors.NewInvalidRequest("export path must end in .html")
	}

	statusFilter := input.Status
	if statusFilter == "" {
		statusFilter = string(item.StatusReady)
	}
	status, err := ParseStatus(statusFilter)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}

	records, _, err := db.ListByStatus(database, status, limit, 0)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>diver export: %s</title>\n</head>\n<body>\n", html.EscapeString(statusFilter))
	fmt.Fprintf(&buf, "<h1>%d saved items</h1>\n", len(records))
	fmt.Fprintf(&buf, "<p>exported %s</p>\n", time.Now().UTC().Format(time.RFC3339))

	for _, r := range records {
		buf.WriteString("<article>\n")
		title := r.Title
		if item.IsBlank(title) {
			title = r.ID
		}
		if r.URL != "" {
			fmt.Fprintf(&buf, "<h2><a href=%q>%s</a></h2>\n", r.URL, html.EscapeString(title))
		} else {
			fmt.Fprintf(&buf, "<h2>%s</h2>\n", html.EscapeString(title))
		}
		if r.WrappedLink != "" {
			fmt.Fprintf(&buf, "<p><a href=%q>shareable link</a></p>\n", r.WrappedLink)
		}
		if r.DescriptionText != "" {
			if err := goldmark.Convert([]byte(r.DescriptionText), &buf); err != nil {
				return nil, errors.NewInternal(err)
			}
		}
		if tags := item.UnionStrings(r.StyleTags, r.Categories); len(tags) > 0 {
			fmt.Fprintf(&buf, "<p><em>%s</em></p>\n", html.EscapeString(strings.Join(tags, ", ")))
		}
		buf.WriteString("</article>\n")
	}

	buf.WriteString("</body>\n</html>\n")

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &ExportOutput{Path: path, Count: len(records)}, nil
}
