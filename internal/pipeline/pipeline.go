// Package pipeline drains the capture queue: each pending record is
// enriched by the configured collaborators, merged into the canonical item
// store, and only then removed from the queue. A record whose processing
// fails stays queued and is retried on the next drain.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/diverhq/diver/internal/db"
	"github.com/diverhq/diver/internal/enrich"
	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
	"github.com/diverhq/diver/internal/linkwrap"
	"github.com/diverhq/diver/internal/queue"
)

// ContextStage names one collaborator in the contextual enrichment chain.
// Stages run in slice order; earlier stages are more specific and their
// data is never overwritten by later ones.
type ContextStage struct {
	Name    string
	Service enrich.ContextService
}

// Deps carries everything the pipeline needs. All collaborators are
// injected; the pipeline holds no ambient state.
type Deps struct {
	Queue     *queue.Store
	DB        *sql.DB
	Secret    []byte
	BaseURL   string
	Salt      string
	AssetsDir string

	LinkMetadata enrich.LinkMetadataService // optional
	ContextChain []ContextStage             // optional, ordered

	// Logf receives non-fatal diagnostics. Defaults to log.Printf.
	Logf func(format string, args ...any)

	// Now is the clock; tests pin it. Defaults to time.Now.
	Now func() time.Time
}

// Pipeline converts queued capture events into enriched, queryable records.
type Pipeline struct {
	deps Deps
}

// New builds a Pipeline from its dependencies.
func New(deps Deps) (*Pipeline, error) {
	if deps.Queue == nil {
		return nil, errors.NewInvalidRequest("pipeline requires a queue store")
	}
	if deps.DB == nil {
		return nil, errors.NewInvalidRequest("pipeline requires an item store")
	}
	if deps.Logf == nil {
		deps.Logf = log.Printf
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{deps: deps}, nil
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Drain runs one sequential sweep over the pending queue, oldest first.
// Each record is fully processed (or abandoned for this pass) before the
// next begins, so ingestion order is preserved. A per-record failure never
// aborts the pass; the record stays queued for the next drain. Cancelling
// the context stops between records without data loss.
func (p *Pipeline) Drain(ctx context.Context) (*DrainResult, error) {
	records, err := p.deps.Queue.Pending()
	if err != nil {
		return nil, err
	}

	result := &DrainResult{}
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}

		r, err := p.process(ctx, rec)
		if err != nil {
			result.Failed++
			p.deps.Logf("diver: record %s failed, left queued for retry: %v", rec.Item.ID, err)
			p.markFailed(r, err)
			continue
		}
		result.Processed++
	}

	return result, nil
}

// process handles one queue record end to end. The queue file is removed
// only after every step, including the store upsert and any attachment
// writes, has completed.
func (p *Pipeline) process(ctx context.Context, rec *queue.Record) (*item.Record, error) {
	if rec.Item == nil {
		return nil, errors.NewInternal(fmt.Errorf("queue record %s has no item", rec.Path))
	}
	now := p.deps.Now().UTC()

	id := p.deriveID(rec)
	if id == "" {
		return nil, errors.NewInvalidRequest("queue item has no descriptor id, url, or envelope id")
	}

	r, err := p.loadOrCreate(id, rec, now)
	if err != nil {
		return nil, err
	}
	r.Status = item.StatusProcessing
	r.AppendLog(now, fmt.Sprintf("processing %s capture from %q", rec.Item.Action, rec.Item.Source))

	// Persist the raw payload before enrichment so later stages can point
	// at the local asset.
	if err := p.persistPayload(r, rec.Item); err != nil {
		return r, err
	}

	p.enrichLink(ctx, r)
	p.enrichContext(ctx, r)
	p.mintWrappedLink(r)

	r.Status = item.StatusReady
	r.UpdatedAt = now
	r.LastProcessedAt = &now
	r.ReferenceCount++

	if err := db.Upsert(p.deps.DB, r); err != nil {
		return r, err
	}

	if err := p.persistAttachments(r, rec.Item, now); err != nil {
		return r, err
	}

	return r, p.deps.Queue.Remove(rec)
}

// deriveID picks the stable id for a record: the descriptor's own id, else
// the content-derived hash of its URL, else the queue envelope's id (for
// URL-less captures such as plain text).
func (p *Pipeline) deriveID(rec *queue.Record) string {
	if rec.Item.Descriptor.ID != "" {
		return rec.Item.Descriptor.ID
	}
	if rec.Item.Descriptor.URL != "" {
		return linkwrap.ID(rec.Item.Descriptor.URL, p.deps.Salt)
	}
	return rec.Item.ID
}

// loadOrCreate fetches the existing store record for id, merging the fresh
// descriptor into it under the merge rule, or builds a new record from the
// descriptor when none exists. Re-submitting the same URL is therefore
// idempotent: it reprocesses the existing record instead of creating a
// sibling. Only a NOT_FOUND miss creates; any other store error aborts the
// record so an unreadable row is never overwritten from the descriptor.
func (p *Pipeline) loadOrCreate(id string, rec *queue.Record, now time.Time) (*item.Record, error) {
	desc := rec.Item.Descriptor

	existing, err := db.GetByID(p.deps.DB, id)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		createdAt := desc.CreatedAt
		if createdAt.IsZero() {
			createdAt = rec.Item.CreatedAt
		}
		if createdAt.IsZero() {
			createdAt = now
		}
		r := &item.Record{Descriptor: desc, Source: rec.Item.Source}
		r.ID = id
		r.CreatedAt = createdAt
		if r.Type == "" {
			r.Type = item.TypeWeb
		}
		return r, nil
	}

	item.FillString(&existing.Title, desc.Title)
	item.FillString(&existing.DescriptionText, desc.DescriptionText)
	item.FillString(&existing.URL, desc.URL)
	item.FillString(&existing.Price, desc.Price)
	item.FillString(&existing.AttributionID, desc.AttributionID)
	item.FillString(&existing.MasterCaptureID, desc.MasterCaptureID)
	item.FillString(&existing.SessionID, desc.SessionID)
	item.FillString(&existing.Source, rec.Item.Source)
	if existing.Location == nil && desc.Location != nil {
		loc := *desc.Location
		existing.Location = &loc
	}
	existing.StyleTags = item.UnionStrings(existing.StyleTags, desc.StyleTags)
	existing.Categories = item.UnionStrings(existing.Categories, desc.Categories)
	existing.Purposes = item.UnionStrings(existing.Purposes, desc.Purposes)
	existing.ProcessingLog = append(existing.ProcessingLog, desc.ProcessingLog...)

	return existing, nil
}

// persistPayload writes raw captured bytes to an id-addressed file under
// the assets directory and points the record's payload and cover fields at
// it. An unwritable asset store is structural and aborts the record.
func (p *Pipeline) persistPayload(r *item.Record, qi *queue.Item) error {
	if len(qi.Payload) == 0 {
		if qi.PayloadURL != "" {
			item.FillString(&r.PayloadRef, qi.PayloadURL)
		}
		return nil
	}
	if p.deps.AssetsDir == "" {
		return errors.NewInternal(fmt.Errorf("record %s carries a payload but no assets dir is configured", r.ID))
	}

	name := r.ID + assetExt(qi)
	path, err := writeAsset(p.deps.AssetsDir, name, qi.Payload)
	if err != nil {
		return errors.NewInternal(err)
	}

	r.PayloadRef = path
	item.FillString(&r.CoverImagePath, path)
	item.FillString(&r.Filename, name)
	if r.FileSize == 0 {
		r.FileSize = int64(len(qi.Payload))
	}
	return nil
}

// enrichLink runs the link-metadata stage. Collaborator failure degrades
// to "no enrichment"; it never blocks the save.
func (p *Pipeline) enrichLink(ctx context.Context, r *item.Record) {
	if p.deps.LinkMetadata == nil || r.URL == "" {
		return
	}

	e, err := p.deps.LinkMetadata.Enrich(ctx, r.URL)
	if err != nil {
		p.deps.Logf("diver: link enrichment for %s skipped: %v", r.ID, err)
		return
	}
	enrich.Apply(r, e, "link", p.deps.Now().UTC())
}

// enrichContext runs the contextual chain in stage order. When a stage
// returns data, its title seeds the next stage's query; stage errors skip
// that stage only. Earlier (more specific) stages win because the merge
// rule only ever fills gaps.
func (p *Pipeline) enrichContext(ctx context.Context, r *item.Record) {
	query := r.Title
	if item.IsBlank(query) {
		query = r.DescriptionText
	}

	for _, stage := range p.deps.ContextChain {
		if item.IsBlank(query) && r.Location == nil {
			return
		}

		e, err := stage.Service.Enrich(ctx, query, r.Location)
		if err != nil {
			p.deps.Logf("diver: %s enrichment for %s skipped: %v", stage.Name, r.ID, err)
			continue
		}
		if e.Empty() {
			continue
		}
		enrich.Apply(r, e, stage.Name, p.deps.Now().UTC())
		if e.Title != "" {
			query = e.Title
		}
	}
}

// mintWrappedLink signs an opaque link for the record if one is missing.
// Failure here is informational; the record is still saved.
func (p *Pipeline) mintWrappedLink(r *item.Record) {
	if r.WrappedLink != "" || r.URL == "" || len(p.deps.Secret) == 0 || p.deps.BaseURL == "" {
		return
	}

	wrapped, err := linkwrap.Wrap(linkwrap.WrapInput{
		BaseURL:        p.deps.BaseURL,
		URL:            r.URL,
		Title:          r.Title,
		Secret:         p.deps.Secret,
		Salt:           p.deps.Salt,
		IncludePayload: true,
	})
	if err != nil {
		p.deps.Logf("diver: wrapping link for %s skipped: %v", r.ID, err)
		return
	}
	r.WrappedLink = wrapped
}

// persistAttachments stores each sibling blob of a multi-capture session as
// its own child record linked to the parent. Attachments go straight to
// ready and are never independently re-enriched.
func (p *Pipeline) persistAttachments(parent *item.Record, qi *queue.Item, now time.Time) error {
	for i, att := range qi.Attachments {
		childID := linkwrap.ID(fmt.Sprintf("%s#attachment-%d", parent.ID, i), p.deps.Salt)

		child := &item.Record{
			Descriptor: item.Descriptor{
				ID:              childID,
				Type:            item.TypeImage,
				CreatedAt:       parent.CreatedAt,
				MasterCaptureID: parent.ID,
				SessionID:       parent.SessionID,
			},
			Status:    item.StatusReady,
			Source:    parent.Source,
			UpdatedAt: now,
			Filename:  att.Filename,
			MediaType: att.MediaType,
			FileSize:  int64(len(att.Data)),
		}
		if parent.SessionID == "" {
			child.SessionID = qi.Descriptor.SessionID
		}

		if len(att.Data) > 0 {
			if p.deps.AssetsDir == "" {
				return errors.NewInternal(fmt.Errorf("attachment for %s but no assets dir is configured", parent.ID))
			}
			name := childID + filepath.Ext(att.Filename)
			path, err := writeAsset(p.deps.AssetsDir, name, att.Data)
			if err != nil {
				return errors.NewInternal(err)
			}
			child.PayloadRef = path
			child.CoverImagePath = path
		}

		child.AppendLog(now, fmt.Sprintf("attachment %d of capture %s", i+1, parent.ID))
		if err := db.Upsert(p.deps.DB, child); err != nil {
			return err
		}
	}
	return nil
}

// markFailed records the failure on a best-effort basis so the item is
// visible as failed while its queue entry waits for the next drain.
func (p *Pipeline) markFailed(r *item.Record, cause error) {
	if r == nil || r.ID == "" {
		return
	}
	now := p.deps.Now().UTC()
	r.Status = item.StatusFailed
	r.UpdatedAt = now
	r.AppendLog(now, "processing failed: "+cause.Error())
	if err := db.Upsert(p.deps.DB, r); err != nil {
		p.deps.Logf("diver: could not record failure for %s: %v", r.ID, err)
	}
}

// assetExt picks a file extension for a persisted payload.
func assetExt(qi *queue.Item) string {
	if ext := filepath.Ext(qi.Descriptor.CoverImagePath); ext != "" {
		return ext
	}
	if qi.Descriptor.Type == item.TypeImage || qi.Descriptor.Type == item.TypeQRCode {
		return ".png"
	}
	return ".bin"
}

// writeAsset writes data atomically (temp file + rename) into dir and
// returns the final path.
func writeAsset(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".asset-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	_ = os.Chmod(path, 0600)
	return path, nil
}
