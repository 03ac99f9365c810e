package enrich

import (
	"time"

	"github.com/diverhq/diver/internal/item"
)

// Apply folds an enrichment into the record under the merge rule: a field
// is overwritten only when the record's value is empty (or the "Untitled"
// sentinel), tag-like collections are unioned rather than replaced, and the
// processing log is appended to, never rewritten. Enrichment therefore
// never regresses already-good data, and re-applying the same enrichment
// is idempotent everywhere except the log.
func Apply(r *item.Record, e *Enrichment, stage string, at time.Time) {
	if e.Empty() {
		return
	}

	item.FillString(&r.Title, e.Title)
	item.FillString(&r.DescriptionText, e.DescriptionText)
	item.FillString(&r.Price, e.Price)
	item.FillString(&r.Transcription, e.Transcription)
	item.FillString(&r.MediaType, e.MediaType)
	item.FillString(&r.CoverImagePath, e.CoverImagePath)

	if r.Location == nil && e.Location != nil {
		loc := *e.Location
		r.Location = &loc
	}

	r.StyleTags = item.UnionStrings(r.StyleTags, e.StyleTags)
	r.Categories = item.UnionStrings(r.Categories, e.Categories)
	r.Purposes = item.UnionStrings(r.Purposes, e.Purposes)
	r.Themes = item.UnionStrings(r.Themes, e.Themes)

	r.AppendLog(at, stage+" enrichment applied")
}
