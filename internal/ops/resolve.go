package ops

import (
	"strings"

	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/linkwrap"
)

// ResolveLinkInput contains parameters for the ResolveLink operation.
type ResolveLinkInput struct {
	URL string
}

// ResolveLinkOutput contains the result of the ResolveLink operation.
type ResolveLinkOutput struct {
	ID      string            `json:"id"`
	Version int               `json:"version"`
	Payload *linkwrap.Payload `json:"payload,omitempty"`
}

// ResolveLink verifies a wrapped link and recovers its embedded payload.
// A verified link without a payload yields a nil Payload, not an error.
func ResolveLink(secret []byte, input ResolveLinkInput) (*ResolveLinkOutput, error) {
	raw := strings.TrimSpace(input.URL)
	if raw == "" {
		return nil, errors.NewInvalidRequest("url is required")
	}

	l, err := linkwrap.Parse(raw)
	if err != nil {
		return nil, err
	}

	payload, err := linkwrap.ResolvePayload(raw, secret)
	if err != nil {
		return nil, err
	}

	return &ResolveLinkOutput{
		ID:      l.ID,
		Version: l.Version,
		Payload: payload,
	}, nil
}
