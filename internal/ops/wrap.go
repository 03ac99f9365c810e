package ops

import (
	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/linkwrap"
)

// WrapLinkInput contains parameters for the WrapLink operation.
type WrapLinkInput struct {
	URL            string
	Title          string
	IncludePayload bool
}

// WrapLinkOutput contains the result of the WrapLink operation.
type WrapLinkOutput struct {
	ID         string `json:"id"`
	WrappedURL string `json:"wrapped_url"`
}

// WrapLink mints a signed opaque link for a URL without queueing anything.
func WrapLink(cfg *config.Config, secret []byte, input WrapLinkInput) (*WrapLinkOutput, error) {
	wrapped, err := linkwrap.Wrap(linkwrap.WrapInput{
		BaseURL:        cfg.LinkBaseURL,
		URL:            input.URL,
		Title:          input.Title,
		Secret:         secret,
		Salt:           cfg.LinkSalt,
		IncludePayload: input.IncludePayload,
	})
	if err != nil {
		return nil, err
	}

	return &WrapLinkOutput{
		ID:         linkwrap.ID(input.URL, cfg.LinkSalt),
		WrappedURL: wrapped,
	}, nil
}
