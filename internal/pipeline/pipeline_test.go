package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/diverhq/diver/internal/db"
	"github.com/diverhq/diver/internal/enrich"
	"github.com/diverhq/diver/internal/item"
	"github.com/diverhq/diver/internal/linkwrap"
	"github.com/diverhq/diver/internal/queue"
)

var testSecret = []byte("pipeline-test-secret")

type fakeLinkService struct {
	enrichment *enrich.Enrichment
	err        error
	urls       []string
}

func (f *fakeLinkService) Enrich(_ context.Context, url string) (*enrich.Enrichment, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.enrichment, nil
}

type fakeContextService struct {
	enrichment *enrich.Enrichment
	err        error
	queries    []string
}

func (f *fakeContextService) Enrich(_ context.Context, query string, _ *item.Location) (*enrich.Enrichment, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.enrichment, nil
}

func (f *fakeContextService) Search(_ context.Context, query string, _ *item.Location, limit int) ([]*enrich.Enrichment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.enrichment == nil {
		return nil, nil
	}
	return []*enrich.Enrichment{f.enrichment}, nil
}

type testEnv struct {
	queue    *queue.Store
	database *sql.DB
	baseDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	baseDir := t.TempDir()

	database, err := db.Init(baseDir)
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	q, err := queue.New(filepath.Join(baseDir, "queue"))
	if err != nil {
		t.Fatalf("queue.New failed: %v", err)
	}

	return &testEnv{queue: q, database: database, baseDir: baseDir}
}

func (env *testEnv) pipeline(t *testing.T, mutate func(*Deps)) *Pipeline {
	t.Helper()
	deps := Deps{
		Queue:     env.queue,
		DB:        env.database,
		Secret:    testSecret,
		BaseURL:   "https://links.example.com",
		AssetsDir: db.AssetsDir(env.baseDir),
		Logf:      t.Logf,
	}
	if mutate != nil {
		mutate(&deps)
	}
	p, err := New(deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestDrain_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{URL: "https://example.com/page", Type: item.TypeWeb},
		Source:     "share-extension",
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	link := &fakeLinkService{enrichment: &enrich.Enrichment{
		Title:     "Example Page",
		StyleTags: []string{"news"},
	}}
	p := env.pipeline(t, func(d *Deps) { d.LinkMetadata = link })

	result, err := p.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Processed != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 1 processed, 0 failed", result)
	}

	id := linkwrap.ID("https://example.com/page", "")
	rec, err := db.GetByID(env.database, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Status != item.StatusReady {
		t.Errorf("Status = %q, want ready", rec.Status)
	}
	if rec.Title != "Example Page" {
		t.Errorf("Title = %q, want enriched title", rec.Title)
	}
	if len(rec.StyleTags) != 1 || rec.StyleTags[0] != "news" {
		t.Errorf("StyleTags = %v, want [news]", rec.StyleTags)
	}
	if rec.LastProcessedAt == nil {
		t.Error("LastProcessedAt should be stamped")
	}
	if rec.ReferenceCount != 1 {
		t.Errorf("ReferenceCount = %d, want 1", rec.ReferenceCount)
	}

	// The wrapped link must verify and resolve back to the original URL.
	if rec.WrappedLink == "" {
		t.Fatal("WrappedLink should be minted")
	}
	payload, err := linkwrap.ResolvePayload(rec.WrappedLink, testSecret)
	if err != nil {
		t.Fatalf("ResolvePayload failed: %v", err)
	}
	if payload == nil || payload.URL != "https://example.com/page" {
		t.Errorf("payload = %+v, want original url", payload)
	}

	pending, err := env.queue.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("queue has %d entries, want empty after successful drain", len(pending))
	}
}

func TestDrain_CollaboratorErrorIsNonFatal(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{URL: "https://example.com/page", Title: "Captured Title", Type: item.TypeWeb},
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	link := &fakeLinkService{err: context.DeadlineExceeded}
	venue := &fakeContextService{err: context.DeadlineExceeded}
	p := env.pipeline(t, func(d *Deps) {
		d.LinkMetadata = link
		d.ContextChain = []ContextStage{{Name: "venue", Service: venue}}
	})

	result, err := p.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("result = %+v, want the save to survive enrichment failure", result)
	}

	rec, err := db.GetByID(env.database, linkwrap.ID("https://example.com/page", ""))
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Status != item.StatusReady {
		t.Errorf("Status = %q, want ready (unenriched)", rec.Status)
	}
	if rec.Title != "Captured Title" {
		t.Errorf("Title = %q, want the captured title kept", rec.Title)
	}
}

func TestDrain_StructuralFailureLeavesRecordQueued(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{URL: "https://example.com/photo", Type: item.TypeImage},
		Payload:    []byte{0x89, 0x50, 0x4e, 0x47},
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// No assets dir: persisting the payload is a structural failure.
	p := env.pipeline(t, func(d *Deps) { d.AssetsDir = "" })

	result, err := p.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 1 || result.Processed != 0 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}

	pending, err := env.queue.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("queue has %d entries, want the failed record kept for retry", len(pending))
	}

	// The failure is visible on the stored record.
	rec, err := db.GetByID(env.database, linkwrap.ID("https://example.com/photo", ""))
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Status != item.StatusFailed {
		t.Errorf("Status = %q, want failed", rec.Status)
	}

	// A later drain with a working assets dir succeeds.
	p2 := env.pipeline(t, nil)
	result, err = p2.Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain failed: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("result = %+v, want the retry to succeed", result)
	}

	pending, _ = env.queue.Pending()
	if len(pending) != 0 {
		t.Errorf("queue has %d entries, want empty after retry", len(pending))
	}
	rec, err = db.GetByID(env.database, linkwrap.ID("https://example.com/photo", ""))
	if err != nil {
		t.Fatalf("GetByID after retry failed: %v", err)
	}
	if rec.Status != item.StatusReady {
		t.Errorf("Status = %q, want ready after retry", rec.Status)
	}
	if rec.PayloadRef == "" {
		t.Error("PayloadRef should point at the persisted asset")
	}
	if _, err := os.Stat(rec.PayloadRef); err != nil {
		t.Errorf("persisted asset missing: %v", err)
	}
}

func TestDrain_UnreadableStoredRowIsNeverOverwritten(t *testing.T) {
	env := newTestEnv(t)

	url := "https://example.com/damaged"
	id := linkwrap.ID(url, "")
	seeded := &item.Record{
		Descriptor: item.Descriptor{
			ID:        id,
			URL:       url,
			Title:     "Original",
			StyleTags: []string{"keep-me"},
			Type:      item.TypeWeb,
			CreatedAt: time.Now().UTC(),
		},
		Status:    item.StatusReady,
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.Upsert(env.database, seeded); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Corrupt the stored row so reading it back fails.
	if _, err := env.database.Exec(
		`UPDATE items SET style_tags_json = 'not-json' WHERE id = ?`, id,
	); err != nil {
		t.Fatalf("corrupting row failed: %v", err)
	}

	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{URL: url, Type: item.TypeWeb},
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p := env.pipeline(t, nil)
	result, err := p.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 1 || result.Processed != 0 {
		t.Fatalf("result = %+v, want 1 failed", result)
	}

	// The entry stays queued for a retry.
	pending, err := env.queue.Pending()
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("queue has %d entries, want the record kept for retry", len(pending))
	}

	// The stored row keeps its data instead of being rebuilt from the
	// fresh descriptor.
	var title, status string
	if err := env.database.QueryRow(
		`SELECT title, status FROM items WHERE id = ?`, id,
	).Scan(&title, &status); err != nil {
		t.Fatalf("reading row back failed: %v", err)
	}
	if title != "Original" {
		t.Errorf("title = %q, want the stored value untouched", title)
	}
	if status != string(item.StatusReady) {
		t.Errorf("status = %q, want the stored value untouched", status)
	}

	// Repairing the row lets the next drain merge instead of replace.
	if _, err := env.database.Exec(
		`UPDATE items SET style_tags_json = '["keep-me"]' WHERE id = ?`, id,
	); err != nil {
		t.Fatalf("repairing row failed: %v", err)
	}

	result, err = p.Drain(context.Background())
	if err != nil {
		t.Fatalf("second Drain failed: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("result = %+v, want the retry to succeed", result)
	}

	rec, err := db.GetByID(env.database, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.Title != "Original" {
		t.Errorf("Title = %q, want Original kept by the merge rule", rec.Title)
	}
	if len(rec.StyleTags) != 1 || rec.StyleTags[0] != "keep-me" {
		t.Errorf("StyleTags = %v, want [keep-me]", rec.StyleTags)
	}
}

func TestDrain_FailureDoesNotBlockLaterRecords(t *testing.T) {
	env := newTestEnv(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	// Older record will fail structurally; the newer one must still process.
	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{URL: "https://example.com/bad", Type: item.TypeImage},
		Payload:    []byte{0x01},
		CreatedAt:  base,
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{URL: "https://example.com/good", Type: item.TypeWeb},
		CreatedAt:  base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p := env.pipeline(t, func(d *Deps) { d.AssetsDir = "" })

	result, err := p.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Processed != 1 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 1 processed and 1 failed", result)
	}

	if _, err := db.GetByID(env.database, linkwrap.ID("https://example.com/good", "")); err != nil {
		t.Errorf("later record should have been processed: %v", err)
	}
}

func TestDrain_OldestFirst(t *testing.T) {
	env := newTestEnv(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	// Enqueued newest first; drain must still visit oldest first.
	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{URL: "https://example.com/second", Type: item.TypeWeb},
		CreatedAt:  base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{URL: "https://example.com/first", Type: item.TypeWeb},
		CreatedAt:  base,
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	link := &fakeLinkService{}
	p := env.pipeline(t, func(d *Deps) { d.LinkMetadata = link })

	if _, err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if len(link.urls) != 2 {
		t.Fatalf("link service saw %d urls, want 2", len(link.urls))
	}
	if link.urls[0] != "https://example.com/first" || link.urls[1] != "https://example.com/second" {
		t.Errorf("drain order = %v, want oldest first", link.urls)
	}
}

func TestDrain_ContextChainSeedsQuery(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{
			Title: "coffee near me",
			Type:  item.TypePlace,
			Location: &item.Location{
				Latitude:  43.65,
				Longitude: -79.38,
			},
		},
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	venue := &fakeContextService{enrichment: &enrich.Enrichment{
		Title:      "Blue Bottle Coffee",
		Categories: []string{"cafe"},
	}}
	web := &fakeContextService{enrichment: &enrich.Enrichment{
		Title:           "Blue Bottle Coffee — overview",
		DescriptionText: "A coffee roaster and retailer.",
		StyleTags:       []string{"coffee"},
	}}
	p := env.pipeline(t, func(d *Deps) {
		d.ContextChain = []ContextStage{
			{Name: "venue", Service: venue},
			{Name: "web", Service: web},
		}
	})

	if _, err := p.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	if len(venue.queries) != 1 || venue.queries[0] != "coffee near me" {
		t.Errorf("venue queries = %v, want the captured title", venue.queries)
	}
	// The venue result's title seeds the web lookup.
	if len(web.queries) != 1 || web.queries[0] != "Blue Bottle Coffee" {
		t.Errorf("web queries = %v, want the venue title", web.queries)
	}

	pending, _ := env.queue.Pending()
	if len(pending) != 0 {
		t.Fatalf("queue not drained")
	}

	records, _, err := db.ListByStatus(env.database, item.StatusReady, 10, 0)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Title != "Blue Bottle Coffee" {
		t.Errorf("Title = %q, want the venue stage to win", rec.Title)
	}
	if rec.DescriptionText != "A coffee roaster and retailer." {
		t.Errorf("DescriptionText = %q, want the web stage to fill the gap", rec.DescriptionText)
	}
}

func TestDrain_AttachmentsBecomeChildRecords(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.queue.Enqueue(&queue.Item{
		Descriptor: item.Descriptor{
			URL:       "https://example.com/session",
			Type:      item.TypeImage,
			SessionID: "session-1",
		},
		Payload: []byte{0x89, 0x50},
		Attachments: []queue.Attachment{
			{Filename: "second.jpg", MediaType: "image/jpeg", Data: []byte{0xff, 0xd8}},
			{Filename: "third.jpg", MediaType: "image/jpeg", Data: []byte{0xff, 0xd9}},
		},
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	p := env.pipeline(t, nil)
	result, err := p.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("result = %+v", result)
	}

	parentID := linkwrap.ID("https://example.com/session", "")
	records, total, err := db.ListByStatus(env.database, item.StatusReady, 10, 0)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want parent plus 2 attachments", total)
	}

	children := 0
	for _, rec := range records {
		if rec.ID == parentID {
			continue
		}
		children++
		if rec.MasterCaptureID != parentID {
			t.Errorf("child %s MasterCaptureID = %q, want parent id", rec.ID, rec.MasterCaptureID)
		}
		if rec.SessionID != "session-1" {
			t.Errorf("child %s SessionID = %q, want session-1", rec.ID, rec.SessionID)
		}
		if rec.Status != item.StatusReady {
			t.Errorf("child %s Status = %q, want ready immediately", rec.ID, rec.Status)
		}
		if rec.PayloadRef == "" {
			t.Errorf("child %s has no PayloadRef", rec.ID)
		}
	}
	if children != 2 {
		t.Errorf("children = %d, want 2", children)
	}
}

func TestDrain_ResubmissionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	enqueue := func(title string) {
		t.Helper()
		if _, err := env.queue.Enqueue(&queue.Item{
			Descriptor: item.Descriptor{URL: "https://example.com/page", Title: title, Type: item.TypeWeb},
		}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	enqueue("First Title")
	p := env.pipeline(t, nil)
	if _, err := p.Drain(context.Background()); err != nil {
		t.Fatalf("first Drain failed: %v", err)
	}

	enqueue("Second Title")
	if _, err := p.Drain(context.Background()); err != nil {
		t.Fatalf("second Drain failed: %v", err)
	}

	records, total, err := db.ListByStatus(env.database, "", 10, 0)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d, want a single record for the same url", total)
	}
	rec := records[0]
	if rec.Title != "First Title" {
		t.Errorf("Title = %q, want the original kept", rec.Title)
	}
	if rec.ReferenceCount != 2 {
		t.Errorf("ReferenceCount = %d, want 2 after reprocessing", rec.ReferenceCount)
	}
}

func TestDrain_CancelledBetweenRecords(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 2; i++ {
		if _, err := env.queue.Enqueue(&queue.Item{
			Descriptor: item.Descriptor{URL: "https://example.com/page", Type: item.TypeWeb},
		}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := env.pipeline(t, nil)
	result, err := p.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Processed != 0 {
		t.Errorf("result = %+v, want nothing processed under a cancelled context", result)
	}

	pending, _ := env.queue.Pending()
	if len(pending) != 2 {
		t.Errorf("queue has %d entries, want both kept (no data loss)", len(pending))
	}
}
