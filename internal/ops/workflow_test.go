package ops

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/enrich"
	"github.com/diverhq/diver/internal/item"
	"github.com/diverhq/diver/internal/pipeline"
)

// TestFullWorkflow exercises the complete item lifecycle:
// save → drain → fetch → list → archive → export
func TestFullWorkflow(t *testing.T) {
	database, q := newTestStores(t)
	cfg := &config.Config{LinkBaseURL: "https://dvr.link", LinkSalt: "workflow"}
	secret := []byte("workflow-secret")

	// 1. Save a capture into the queue
	saveOut, err := Save(q, cfg, SaveInput{
		URL:       "https://example.com/article",
		Title:     "An Article",
		StyleTags: []string{"longform"},
		Source:    "share-extension",
	})
	require.NoError(t, err)
	require.NotEmpty(t, saveOut.QueueID)
	require.NotEmpty(t, saveOut.ItemID)
	id := saveOut.ItemID

	// Nothing in the store until a drain runs
	_, err = Fetch(database, FetchInput{ID: id})
	require.Error(t, err)

	// 2. Drain the queue through the pipeline
	deps := pipeline.Deps{
		AssetsDir: filepath.Join(t.TempDir(), "assets"),
		LinkMetadata: &stubLinkService{enrichment: &enrich.Enrichment{
			DescriptionText: "An article about things.",
			Categories:      []string{"reading"},
		}},
		Logf: t.Logf,
	}
	drainOut, err := Drain(context.Background(), database, q, cfg, secret, deps)
	require.NoError(t, err)
	require.Equal(t, 1, drainOut.Processed)
	require.Equal(t, 0, drainOut.Failed)

	// 3. Fetch the enriched record
	fetchOut, err := Fetch(database, FetchInput{ID: id})
	require.NoError(t, err)
	require.Equal(t, item.StatusReady, fetchOut.Status)
	require.Equal(t, "An Article", fetchOut.Title)
	require.Equal(t, "An article about things.", fetchOut.DescriptionText)
	require.Contains(t, fetchOut.Categories, "reading")
	require.True(t, strings.HasPrefix(fetchOut.WrappedLink, "https://dvr.link/w/"))

	// 4. The wrapped link round-trips to the original URL
	resolveOut, err := ResolveLink(secret, ResolveLinkInput{URL: fetchOut.WrappedLink})
	require.NoError(t, err)
	require.Equal(t, id, resolveOut.ID)
	require.NotNil(t, resolveOut.Payload)
	require.Equal(t, "https://example.com/article", resolveOut.Payload.URL)

	// 5. List ready items
	listOut, err := List(database, ListInput{Status: "ready"})
	require.NoError(t, err)
	require.Len(t, listOut.Items, 1)
	require.Equal(t, id, listOut.Items[0].ID)

	// 6. Saving the same URL again bumps the reference count on drain
	_, err = Save(q, cfg, SaveInput{URL: "https://example.com/article"})
	require.NoError(t, err)
	drainOut, err = Drain(context.Background(), database, q, cfg, secret, deps)
	require.NoError(t, err)
	require.Equal(t, 1, drainOut.Processed)

	fetchOut, err = Fetch(database, FetchInput{ID: id})
	require.NoError(t, err)
	require.Equal(t, "An Article", fetchOut.Title)
	require.Equal(t, 2, fetchOut.ReferenceCount)

	// 7. Archive
	archiveOut, err := Archive(database, ArchiveInput{ID: id})
	require.NoError(t, err)
	require.Equal(t, item.StatusArchived, archiveOut.Status)

	listOut, err = List(database, ListInput{Status: "ready"})
	require.NoError(t, err)
	require.Empty(t, listOut.Items)

	// 8. Export the archived digest
	exportPath := filepath.Join(t.TempDir(), "digest.html")
	exportOut, err := Export(database, ExportInput{Status: "archived", Path: exportPath})
	require.NoError(t, err)
	require.Equal(t, 1, exportOut.Count)
}
