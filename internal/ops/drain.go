package ops

import (
	"context"
	"database/sql"

	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/pipeline"
	"github.com/diverhq/diver/internal/queue"
)

// DrainOutput contains the result of the Drain operation.
type DrainOutput struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Drain runs one pipeline pass over the pending queue. Callers supply the
// enrichment collaborators (and assets dir) on deps; the queue, store,
// secret, and link settings are filled in here from the surrounding
// context so every entry point wires them the same way.
func Drain(ctx context.Context, database *sql.DB, q *queue.Store, cfg *config.Config, secret []byte, deps pipeline.Deps) (*DrainOutput, error) {
	deps.Queue = q
	deps.DB = database
	deps.Secret = secret
	deps.BaseURL = cfg.LinkBaseURL
	deps.Salt = cfg.LinkSalt

	p, err := pipeline.New(deps)
	if err != nil {
		return nil, err
	}

	result, err := p.Drain(ctx)
	if err != nil {
		return nil, err
	}

	return &DrainOutput{Processed: result.Processed, Failed: result.Failed}, nil
}
