package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
)

// Upsert writes the full record by id: insert if absent, replace in place if
// present. Last writer wins; the pipeline merges before calling, so a
// replace never destroys already-good data.
func Upsert(db *sql.DB, r *item.Record) error {
	styleTags, err := toJSONColumn(r.StyleTags)
	if err != nil {
		return errors.NewInternal(err)
	}
	categories, err := toJSONColumn(r.Categories)
	if err != nil {
		return errors.NewInternal(err)
	}
	purposes, err := toJSONColumn(r.Purposes)
	if err != nil {
		return errors.NewInternal(err)
	}
	processingLog, err := toJSONColumn(r.ProcessingLog)
	if err != nil {
		return errors.NewInternal(err)
	}
	themes, err := toJSONColumn(r.Themes)
	if err != nil {
		return errors.NewInternal(err)
	}

	var lat, lon sql.NullFloat64
	var locName, locAddress sql.NullString
	if r.Location != nil {
		lat = sql.NullFloat64{Float64: r.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: r.Location.Longitude, Valid: true}
		locName = toNullString(r.Location.Name)
		locAddress = toNullString(r.Location.Address)
	}

	var lastProcessed sql.NullInt64
	if r.LastProcessedAt != nil {
		lastProcessed = sql.NullInt64{Int64: r.LastProcessedAt.Unix(), Valid: true}
	}

	query := `
		INSERT INTO items (
			id, url, title, description_text,
			style_tags_json, categories_json, purposes_json, processing_log_json,
			item_type, status, source, attribution_id, wrapped_link,
			master_capture_id, session_id, cover_image_path,
			latitude, longitude, location_name, location_address, price,
			payload_ref, transcription, themes_json, media_type, file_size, filename,
			reference_count, created_at, updated_at, last_processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			description_text = excluded.description_text,
			style_tags_json = excluded.style_tags_json,
			categories_json = excluded.categories_json,
			purposes_json = excluded.purposes_json,
			processing_log_json = excluded.processing_log_json,
			item_type = excluded.item_type,
			status = excluded.status,
			source = excluded.source,
			attribution_id = excluded.attribution_id,
			wrapped_link = excluded.wrapped_link,
			master_capture_id = excluded.master_capture_id,
			session_id = excluded.session_id,
			cover_image_path = excluded.cover_image_path,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			location_name = excluded.location_name,
			location_address = excluded.location_address,
			price = excluded.price,
			payload_ref = excluded.payload_ref,
			transcription = excluded.transcription,
			themes_json = excluded.themes_json,
			media_type = excluded.media_type,
			file_size = excluded.file_size,
			filename = excluded.filename,
			reference_count = excluded.reference_count,
			updated_at = excluded.updated_at,
			last_processed_at = excluded.last_processed_at
	`

	_, err = db.Exec(query,
		r.ID, toNullString(r.URL), toNullString(r.Title), toNullString(r.DescriptionText),
		styleTags, categories, purposes, processingLog,
		string(r.Type), string(r.Status), toNullString(r.Source), toNullString(r.AttributionID), toNullString(r.WrappedLink),
		toNullString(r.MasterCaptureID), toNullString(r.SessionID), toNullString(r.CoverImagePath),
		lat, lon, locName, locAddress, toNullString(r.Price),
		toNullString(r.PayloadRef), toNullString(r.Transcription), themes, toNullString(r.MediaType), r.FileSize, toNullString(r.Filename),
		r.ReferenceCount, r.CreatedAt.Unix(), r.UpdatedAt.Unix(), lastProcessed,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	return nil
}

const selectColumns = `
	id, url, title, description_text,
	style_tags_json, categories_json, purposes_json, processing_log_json,
	item_type, status, source, attribution_id, wrapped_link,
	master_capture_id, session_id, cover_image_path,
	latitude, longitude, location_name, location_address, price,
	payload_ref, transcription, themes_json, media_type, file_size, filename,
	reference_count, created_at, updated_at, last_processed_at
`

// GetByID retrieves a record by its derived id.
func GetByID(db *sql.DB, id string) (*item.Record, error) {
	row := db.QueryRow(`SELECT `+selectColumns+` FROM items WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListByStatus returns records in the given status ordered by updated_at
// descending, with the total count of matching rows for pagination.
// An empty status lists everything.
func ListByStatus(db *sql.DB, status item.Status, limit, offset int) ([]*item.Record, int, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, string(status))
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + selectColumns + ` FROM items` + where + ` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	rows, err := db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var records []*item.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return records, total, nil
}

// SetStatus updates a record's status, stamping updated_at.
func SetStatus(db *sql.DB, id string, status item.Status) error {
	result, err := db.Exec(
		`UPDATE items SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}

	return nil
}

// CountByStatus returns how many records are in the given status.
func CountByStatus(db *sql.DB, status item.Status) (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items WHERE status = ?`, string(status)).Scan(&count); err != nil {
		return 0, errors.NewInternal(err)
	}
	return count, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a single row into a Record struct.
func scanRecord(row rowScanner) (*item.Record, error) {
	var (
		r             item.Record
		url           sql.NullString
		title         sql.NullString
		description   sql.NullString
		styleTags     sql.NullString
		categories    sql.NullString
		purposes      sql.NullString
		processingLog sql.NullString
		itemType      string
		status        string
		source        sql.NullString
		attribution   sql.NullString
		wrappedLink   sql.NullString
		masterCapture sql.NullString
		sessionID     sql.NullString
		coverImage    sql.NullString
		lat           sql.NullFloat64
		lon           sql.NullFloat64
		locName       sql.NullString
		locAddress    sql.NullString
		price         sql.NullString
		payloadRef    sql.NullString
		transcription sql.NullString
		themes        sql.NullString
		mediaType     sql.NullString
		filename      sql.NullString
		createdAt     int64
		updatedAt     int64
		lastProcessed sql.NullInt64
	)

	err := row.Scan(
		&r.ID, &url, &title, &description,
		&styleTags, &categories, &purposes, &processingLog,
		&itemType, &status, &source, &attribution, &wrappedLink,
		&masterCapture, &sessionID, &coverImage,
		&lat, &lon, &locName, &locAddress, &price,
		&payloadRef, &transcription, &themes, &mediaType, &r.FileSize, &filename,
		&r.ReferenceCount, &createdAt, &updatedAt, &lastProcessed,
	)
	if err != nil {
		return nil, err
	}

	r.URL = url.String
	r.Title = title.String
	r.DescriptionText = description.String
	r.Type = item.Type(itemType)
	r.Status = item.Status(status)
	r.Source = source.String
	r.AttributionID = attribution.String
	r.WrappedLink = wrappedLink.String
	r.MasterCaptureID = masterCapture.String
	r.SessionID = sessionID.String
	r.CoverImagePath = coverImage.String
	r.Price = price.String
	r.PayloadRef = payloadRef.String
	r.Transcription = transcription.String
	r.MediaType = mediaType.String
	r.Filename = filename.String
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if lat.Valid && lon.Valid {
		r.Location = &item.Location{
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
			Name:      locName.String,
			Address:   locAddress.String,
		}
	}
	if lastProcessed.Valid {
		at := time.Unix(lastProcessed.Int64, 0).UTC()
		r.LastProcessedAt = &at
	}

	if err := fromJSONColumn(styleTags, &r.StyleTags); err != nil {
		return nil, err
	}
	if err := fromJSONColumn(categories, &r.Categories); err != nil {
		return nil, err
	}
	if err := fromJSONColumn(purposes, &r.Purposes); err != nil {
		return nil, err
	}
	if err := fromJSONColumn(processingLog, &r.ProcessingLog); err != nil {
		return nil, err
	}
	if err := fromJSONColumn(themes, &r.Themes); err != nil {
		return nil, err
	}

	return &r, nil
}

// toJSONColumn converts a string slice to a nullable JSON text column.
func toJSONColumn(values []string) (sql.NullString, error) {
	if len(values) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// fromJSONColumn parses a nullable JSON text column into a string slice.
func fromJSONColumn(ns sql.NullString, dest *[]string) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dest)
}

// toNullString converts an empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
