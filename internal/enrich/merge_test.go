package enrich

import (
	"reflect"
	"testing"
	"time"

	"github.com/diverhq/diver/internal/item"
)

var mergeTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApply_NeverRegressesTitle(t *testing.T) {
	r := &item.Record{Descriptor: item.Descriptor{Title: "Original"}}

	Apply(r, &Enrichment{Title: "New"}, "link", mergeTime)

	if r.Title != "Original" {
		t.Errorf("Title = %q, want %q (filled fields are never overwritten)", r.Title, "Original")
	}
}

func TestApply_FillsEmptyAndSentinel(t *testing.T) {
	r := &item.Record{Descriptor: item.Descriptor{Title: "Untitled"}}

	Apply(r, &Enrichment{Title: "Example Page", DescriptionText: "About examples."}, "link", mergeTime)

	if r.Title != "Example Page" {
		t.Errorf("Title = %q, want filled over Untitled sentinel", r.Title)
	}
	if r.DescriptionText != "About examples." {
		t.Errorf("DescriptionText = %q, want filled", r.DescriptionText)
	}
}

func TestApply_TagsUnion(t *testing.T) {
	r := &item.Record{Descriptor: item.Descriptor{StyleTags: []string{"news"}}}

	Apply(r, &Enrichment{StyleTags: []string{"tech", "news"}}, "web", mergeTime)

	want := []string{"news", "tech"}
	if !reflect.DeepEqual(r.StyleTags, want) {
		t.Errorf("StyleTags = %v, want %v", r.StyleTags, want)
	}
}

func TestApply_LocationFilledOnlyOnce(t *testing.T) {
	r := &item.Record{}

	venue := &item.Location{Latitude: 43.65, Longitude: -79.38, Name: "Cafe"}
	Apply(r, &Enrichment{Location: venue, Title: "Cafe"}, "venue", mergeTime)
	Apply(r, &Enrichment{Location: &item.Location{Name: "Elsewhere"}, DescriptionText: "x"}, "web", mergeTime)

	if r.Location == nil || r.Location.Name != "Cafe" {
		t.Errorf("Location = %+v, want the venue stage's location kept", r.Location)
	}
}

func TestApply_LogAlwaysAppends(t *testing.T) {
	r := &item.Record{Descriptor: item.Descriptor{ProcessingLog: []string{"existing"}}}

	Apply(r, &Enrichment{Title: "T"}, "link", mergeTime)

	if len(r.ProcessingLog) != 2 {
		t.Fatalf("ProcessingLog = %v, want existing entry plus one", r.ProcessingLog)
	}
	if r.ProcessingLog[0] != "existing" {
		t.Error("existing log entries must be preserved")
	}
	if r.ProcessingLog[1] != "2025-03-01T12:00:00Z link enrichment applied" {
		t.Errorf("ProcessingLog[1] = %q", r.ProcessingLog[1])
	}
}

func TestApply_EmptyEnrichmentIsNoOp(t *testing.T) {
	r := &item.Record{Descriptor: item.Descriptor{Title: "T", ProcessingLog: []string{"a"}}}

	Apply(r, &Enrichment{}, "link", mergeTime)

	if len(r.ProcessingLog) != 1 {
		t.Error("empty enrichment must not touch the log")
	}
}

func TestApply_ChainSpecificWins(t *testing.T) {
	// Venue data lands first and is background truth; web lookup fills the
	// gaps it left.
	r := &item.Record{}

	Apply(r, &Enrichment{Title: "Blue Bottle", Categories: []string{"cafe"}}, "venue", mergeTime)
	Apply(r, &Enrichment{
		Title:           "Blue Bottle Coffee — Wikipedia",
		DescriptionText: "A coffee roaster and retailer.",
		StyleTags:       []string{"coffee"},
	}, "web", mergeTime)

	if r.Title != "Blue Bottle" {
		t.Errorf("Title = %q, want venue stage's title kept", r.Title)
	}
	if r.DescriptionText != "A coffee roaster and retailer." {
		t.Errorf("DescriptionText = %q, want web stage's gap-fill", r.DescriptionText)
	}
	if !reflect.DeepEqual(r.Categories, []string{"cafe"}) {
		t.Errorf("Categories = %v", r.Categories)
	}
}

func TestEnrichment_Empty(t *testing.T) {
	if !(&Enrichment{}).Empty() {
		t.Error("zero enrichment should be empty")
	}
	if (&Enrichment{Title: "x"}).Empty() {
		t.Error("enrichment with a title is not empty")
	}
	var nilEnrichment *Enrichment
	if !nilEnrichment.Empty() {
		t.Error("nil enrichment should be empty")
	}
}
