package ops

import (
	"database/sql"

	"github.com/diverhq/diver/internal/db"
	"github.com/diverhq/diver/internal/item"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Status string // empty lists every status
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []item.Record `json:"items"`
	Pagination Pagination    `json:"pagination"`
	Sort       string        `json:"sort"`
}

// List retrieves stored records with pagination, newest update first.
func List(database *sql.DB, input ListInput) (*ListOutput, error) {
	status, err := ParseStatus(input.Status)
	if err != nil {
		return nil, err
	}

	// Apply limit defaults and bounds
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	// Ensure offset is non-negative
	offset := max(input.Offset, 0)

	records, total, err := db.ListByStatus(database, status, limit, offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	items := make([]item.Record, 0, len(records))
	for _, r := range records {
		items = append(items, *r)
	}

	hasMore := offset+len(items) < total

	return &ListOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: hasMore,
			Total:   total,
		},
		Sort: "updated_at_desc",
	}, nil
}
