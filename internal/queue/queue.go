// Package queue implements a crash-safe, file-per-item durable queue of
// pending ingestion items. A capture event written here by one process
// (e.g. a share extension) survives to be drained by another (the main
// app), across process termination, with no external database dependency.
package queue

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
)

// ActionSave is the only queue action currently defined.
const ActionSave = "save"

// Attachment is a sibling binary blob captured alongside the main payload
// in a multi-capture session.
type Attachment struct {
	Filename  string `json:"filename,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

// Item is the envelope persisted as one file per capture event.
type Item struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	Descriptor item.Descriptor `json:"descriptor"`
	Source     string          `json:"source,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`

	// Payload carries raw captured bytes (e.g. an image); PayloadURL points
	// at an already externalized payload instead.
	Payload     []byte       `json:"payload,omitempty"`
	PayloadURL  string       `json:"payload_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Record points at a persisted queue item and its backing file.
type Record struct {
	Path string
	Item *Item
}

// Store is a durable file-per-item queue rooted at a single directory.
//
// At most one pipeline should drain a given directory at a time. Distinct
// timestamp+uuid filenames keep concurrent enqueuers from colliding, but
// there is no cross-process lock against a concurrent drain.
type Store struct {
	dir string
}

// New creates (if needed) the queue directory and returns a Store for it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewQueueIO("init", err)
	}
	_ = os.Chmod(dir, 0700)
	return &Store{dir: dir}, nil
}

// Dir returns the queue directory.
func (s *Store) Dir() string {
	return s.dir
}

// Enqueue serializes the item to canonical JSON (sorted keys, ISO-8601
// dates) and writes it atomically to <dir>/<epochMillis>-<uuid>.json via a
// temp file and rename. Missing ID and CreatedAt are filled in.
func (s *Store) Enqueue(it *Item) (*Record, error) {
	if it == nil {
		return nil, errors.NewInvalidRequest("queue item is required")
	}
	if it.Action == "" {
		it.Action = ActionSave
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	if it.ID == "" {
		id, err := ulid.New(ulid.Timestamp(it.CreatedAt), ulid.Monotonic(rand.Reader, 0))
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		it.ID = id.String()
	}

	data, err := canonicalJSON(it)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	name := fmt.Sprintf("%d-%s.json", it.CreatedAt.UnixMilli(), uuid.NewString())
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".enqueue-*")
	if err != nil {
		return nil, errors.NewQueueIO("enqueue", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, errors.NewQueueIO("enqueue", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, errors.NewQueueIO("enqueue", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, errors.NewQueueIO("enqueue", err)
	}
	_ = os.Chmod(path, 0600)

	return &Record{Path: path, Item: it}, nil
}

// Pending lists all .json files in the queue directory and returns them
// sorted ascending by the item's own CreatedAt field (not filesystem
// order), oldest first. A decode failure for any one file fails the whole
// call; a corrupt entry is never silently dropped.
func (s *Store) Pending() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewQueueIO("list", err)
	}

	var records []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewQueueIO("read", err)
		}
		var it Item
		if err := json.Unmarshal(data, &it); err != nil {
			return nil, errors.NewQueueIO("decode "+e.Name(), err)
		}
		records = append(records, &Record{Path: path, Item: &it})
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Item.CreatedAt, records[j].Item.CreatedAt
		if a.Equal(b) {
			return records[i].Path < records[j].Path
		}
		return a.Before(b)
	})

	return records, nil
}

// Remove deletes the record's backing file. Removing an already-missing
// file is not an error; that guards against double-processing races.
func (s *Store) Remove(rec *Record) error {
	if rec == nil {
		return nil
	}
	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		return errors.NewQueueIO("remove", err)
	}
	return nil
}

// RemoveAll deletes every pending entry. Used for teardown and tests.
func (s *Store) RemoveAll() error {
	records, err := s.Pending()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := s.Remove(rec); err != nil {
			return err
		}
	}
	return nil
}

// canonicalJSON marshals v with lexicographically sorted object keys.
// Round-tripping through a map gets encoding/json's sorted-key emission;
// time.Time fields survive as their RFC 3339 strings and []byte as base64.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
