package ops

import (
	"database/sql"
	"strings"

	"github.com/diverhq/diver/internal/db"
	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
)

// ArchiveInput contains parameters for the Archive operation.
type ArchiveInput struct {
	ID string
}

// ArchiveOutput contains the result of the Archive operation.
type ArchiveOutput struct {
	ID     string      `json:"id"`
	Status item.Status `json:"status"`
}

// Archive moves a ready record to archived. Records are never deleted;
// archiving is the user-facing terminal state. Archiving an already
// archived record is a no-op rather than an error.
func Archive(database *sql.DB, input ArchiveInput) (*ArchiveOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	r, err := db.GetByID(database, id)
	if err != nil {
		return nil, err
	}

	switch r.Status {
	case item.StatusArchived:
		return &ArchiveOutput{ID: id, Status: item.StatusArchived}, nil
	case item.StatusReady:
		// fall through to the update
	default:
		return nil, errors.NewInvalidRequest("only ready items can be archived, status is " + string(r.Status))
	}

	if err := db.SetStatus(database, id, item.StatusArchived); err != nil {
		return nil, err
	}

	return &ArchiveOutput{ID: id, Status: item.StatusArchived}, nil
}
