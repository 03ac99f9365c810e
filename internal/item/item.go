package item

import "time"

// Type classifies what kind of thing a descriptor points at.
type Type string

const (
	TypeWeb      Type = "web"
	TypePlace    Type = "place"
	TypeText     Type = "text"
	TypeDocument Type = "document"
	TypeImage    Type = "image"
	TypeActivity Type = "activity"
	TypeQRCode   Type = "qrCode"
	TypeWeather  Type = "weather"
	TypeProduct  Type = "product"
	TypeMedia    Type = "media"
)

// Status is the processing state machine for a stored record.
// queued → processing → ready on success, queued → processing → failed on
// error (the queue entry stays behind for retry), ready → archived by user
// action. The pipeline never deletes records; archiving is the terminal state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusArchived   Status = "archived"
)

// UntitledSentinel is the placeholder title treated as "empty" by the merge rule.
const UntitledSentinel = "Untitled"

// Location is an optional geographic anchor for a descriptor.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Descriptor is the canonical representation of a single thing-to-save
// before it becomes a persisted record.
type Descriptor struct {
	// ID is derived deterministically from the source URL (plus optional
	// salt), so re-submitting the same URL is idempotent at the id level.
	ID string `json:"id"`

	URL             string `json:"url,omitempty"`
	Title           string `json:"title,omitempty"`
	DescriptionText string `json:"description_text,omitempty"`

	// StyleTags and Categories are unordered sets; order is not significant
	// and duplicates are never stored.
	StyleTags  []string `json:"style_tags,omitempty"`
	Categories []string `json:"categories,omitempty"`

	Location *Location `json:"location,omitempty"`
	Price    string    `json:"price,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Type      Type      `json:"type"`

	// AttributionID links back to a sharing/provenance source.
	AttributionID string `json:"attribution_id,omitempty"`

	// WrappedLink is the signed opaque URL for this item, if one was minted.
	WrappedLink string `json:"wrapped_link,omitempty"`

	// MasterCaptureID and SessionID group sibling captures from one session.
	MasterCaptureID string `json:"master_capture_id,omitempty"`
	SessionID       string `json:"session_id,omitempty"`

	// CoverImagePath points at a locally persisted asset for this item.
	CoverImagePath string `json:"cover_image_path,omitempty"`

	// Purposes accumulates over reprocessing; ordered, deduplicated.
	Purposes []string `json:"purposes,omitempty"`

	// ProcessingLog is an append-only audit trail of which pass touched
	// the item and when.
	ProcessingLog []string `json:"processing_log,omitempty"`
}

// Record is the durable, queryable form of a processed item. It is mutated
// exclusively by the pipeline; readers treat it as immutable.
type Record struct {
	Descriptor

	Status          Status     `json:"status"`
	Source          string     `json:"source,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ReferenceCount  int        `json:"reference_count"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`

	// PayloadRef points at an externally stored large payload (e.g. the
	// original captured image), not the payload bytes themselves.
	PayloadRef string `json:"payload_ref,omitempty"`

	// Media-specific fields.
	Transcription string   `json:"transcription,omitempty"`
	Themes        []string `json:"themes,omitempty"`
	MediaType     string   `json:"media_type,omitempty"`
	FileSize      int64    `json:"file_size,omitempty"`
	Filename      string   `json:"filename,omitempty"`
}

// AppendLog appends a timestamped line to the record's processing log.
func (r *Record) AppendLog(at time.Time, msg string) {
	r.ProcessingLog = append(r.ProcessingLog, at.UTC().Format(time.RFC3339)+" "+msg)
}
