package ops

import (
	"database/sql"
	"strings"

	"github.com/diverhq/diver/internal/db"
	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/item"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID string
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	item.Record // embedded (copy, not pointer)
}

// Fetch retrieves a stored record by its derived id.
func Fetch(database *sql.DB, input FetchInput) (*FetchOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}

	r, err := db.GetByID(database, id)
	if err != nil {
		return nil, err
	}

	return &FetchOutput{Record: *r}, nil
}
