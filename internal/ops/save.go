package ops

import (
	"strings"
	"time"

	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
	"github.com/diverhq/diver/internal/linkwrap"
	"github.com/diverhq/diver/internal/queue"
)

// SaveInput contains parameters for the Save operation.
type SaveInput struct {
	URL             string
	Title           string
	DescriptionText string
	Type            string // defaults to "web"
	StyleTags       []string
	Categories      []string
	Purposes        []string
	Source          string
	SessionID       string
	MasterCaptureID string
	Location        *item.Location
	Payload         []byte
	PayloadURL      string
	Attachments     []queue.Attachment
}

// SaveOutput contains the result of the Save operation.
type SaveOutput struct {
	QueueID string `json:"queue_id"`
	ItemID  string `json:"item_id,omitempty"`
	Path    string `json:"path"`
}

// Save records a capture event in the durable queue. The item is not
// enriched or written to the store here; that happens on the next drain.
// The returned ItemID is the content-derived id the record will get.
func Save(q *queue.Store, cfg *config.Config, input SaveInput) (*SaveOutput, error) {
	url := strings.TrimSpace(input.URL)
	text := strings.TrimSpace(input.DescriptionText)
	if url == "" && text == "" && len(input.Payload) == 0 {
		return nil, errors.NewInvalidRequest("a url, text, or payload is required")
	}

	typ, err := ParseType(input.Type)
	if err != nil {
		return nil, err
	}

	desc := item.Descriptor{
		URL:             url,
		Title:           strings.TrimSpace(input.Title),
		DescriptionText: text,
		Type:            typ,
		StyleTags:       item.UnionStrings(input.StyleTags, nil),
		Categories:      item.UnionStrings(input.Categories, nil),
		Purposes:        item.UnionStrings(input.Purposes, nil),
		SessionID:       input.SessionID,
		MasterCaptureID: input.MasterCaptureID,
		Location:        input.Location,
		CreatedAt:       time.Now().UTC(),
	}
	if url != "" {
		desc.ID = linkwrap.ID(url, cfg.LinkSalt)
	}

	rec, err := q.Enqueue(&queue.Item{
		Action:      queue.ActionSave,
		Descriptor:  desc,
		Source:      input.Source,
		Payload:     input.Payload,
		PayloadURL:  input.PayloadURL,
		Attachments: input.Attachments,
	})
	if err != nil {
		return nil, err
	}

	return &SaveOutput{
		QueueID: rec.Item.ID,
		ItemID:  desc.ID,
		Path:    rec.Path,
	}, nil
}
