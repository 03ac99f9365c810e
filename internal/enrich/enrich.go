// Package enrich defines the collaborator interfaces the pipeline consumes
// and the merge rule that folds their partial results into a canonical
// record. Implementations live outside the core; tests use deterministic
// fakes.
package enrich

import (
	"context"

	"github.com/diverhq/diver/internal/item"
)

// Enrichment is a partial result from one collaborator. Zero-valued fields
// mean "no data"; the merge rule never writes them.
type Enrichment struct {
	Title           string
	DescriptionText string
	StyleTags       []string
	Categories      []string
	Purposes        []string
	Themes          []string
	Location        *item.Location
	Price           string
	Transcription   string
	MediaType       string
	CoverImagePath  string
}

// Empty reports whether the enrichment carries no data at all.
func (e *Enrichment) Empty() bool {
	if e == nil {
		return true
	}
	return e.Title == "" && e.DescriptionText == "" &&
		len(e.StyleTags) == 0 && len(e.Categories) == 0 &&
		len(e.Purposes) == 0 && len(e.Themes) == 0 &&
		e.Location == nil && e.Price == "" &&
		e.Transcription == "" && e.MediaType == "" && e.CoverImagePath == ""
}

// LinkMetadataService looks up structured metadata for a URL.
// A (nil, nil) return means the lookup succeeded but found nothing.
type LinkMetadataService interface {
	Enrich(ctx context.Context, url string) (*Enrichment, error)
}

// ContextService looks up enrichment data by free-text query and optional
// coordinates. Venue lookups and general web lookups both satisfy it; the
// pipeline chains them in order, most specific first.
type ContextService interface {
	// Enrich returns the single best result for the query, or (nil, nil).
	Enrich(ctx context.Context, query string, loc *item.Location) (*Enrichment, error)

	// Search returns up to limit candidates near loc or matching query.
	Search(ctx context.Context, query string, loc *item.Location, limit int) ([]*Enrichment, error)
}
