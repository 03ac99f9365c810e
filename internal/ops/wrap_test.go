package ops

import (
	"strings"
	"testing"

	"github.com/diverhq/diver/internal/config"
	"github.com/diverhq/diver/internal/errors"
	"github.com/diverhq/diver/internal/linkwrap"
)

func TestWrapLink_RoundTrip(t *testing.T) {
	cfg := &config.Config{LinkBaseURL: "https://dvr.link", LinkSalt: "s1"}
	secret := []byte("test-secret")

	wrapped, err := WrapLink(cfg, secret, WrapLinkInput{
		URL:            "https://example.com/post/42",
		Title:          "A Post",
		IncludePayload: true,
	})
	if err != nil {
		t.Fatalf("WrapLink failed: %v", err)
	}
	if !strings.HasPrefix(wrapped.WrappedURL, "https://dvr.link/w/") {
		t.Errorf("WrappedURL = %q, want dvr.link prefix", wrapped.WrappedURL)
	}
	if len(wrapped.ID) != linkwrap.IDLength {
		t.Errorf("ID length = %d, want %d", len(wrapped.ID), linkwrap.IDLength)
	}

	resolved, err := ResolveLink(secret, ResolveLinkInput{URL: wrapped.WrappedURL})
	if err != nil {
		t.Fatalf("ResolveLink failed: %v", err)
	}
	if resolved.ID != wrapped.ID {
		t.Errorf("resolved ID = %q, want %q", resolved.ID, wrapped.ID)
	}
	if resolved.Payload == nil {
		t.Fatal("Payload is nil, want embedded payload")
	}
	if resolved.Payload.URL != "https://example.com/post/42" {
		t.Errorf("Payload.URL = %q", resolved.Payload.URL)
	}
	if resolved.Payload.Title != "A Post" {
		t.Errorf("Payload.Title = %q", resolved.Payload.Title)
	}
}

func TestWrapLink_NoPayload(t *testing.T) {
	cfg := &config.Config{LinkBaseURL: "https://dvr.link", LinkSalt: ""}
	secret := []byte("test-secret")

	wrapped, err := WrapLink(cfg, secret, WrapLinkInput{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("WrapLink failed: %v", err)
	}
	if strings.Contains(wrapped.WrappedURL, "&p=") {
		t.Errorf("WrappedURL carries a payload: %q", wrapped.WrappedURL)
	}

	resolved, err := ResolveLink(secret, ResolveLinkInput{URL: wrapped.WrappedURL})
	if err != nil {
		t.Fatalf("ResolveLink failed: %v", err)
	}
	if resolved.Payload != nil {
		t.Errorf("Payload = %+v, want nil", resolved.Payload)
	}
}

func TestWrapLink_MissingURL(t *testing.T) {
	cfg := &config.Config{LinkBaseURL: "https://dvr.link"}

	_, err := WrapLink(cfg, []byte("test-secret"), WrapLinkInput{})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestResolveLink_WrongSecret(t *testing.T) {
	cfg := &config.Config{LinkBaseURL: "https://dvr.link"}

	wrapped, err := WrapLink(cfg, []byte("secret-a"), WrapLinkInput{
		URL:            "https://example.com",
		IncludePayload: true,
	})
	if err != nil {
		t.Fatalf("WrapLink failed: %v", err)
	}

	_, err = ResolveLink([]byte("secret-b"), ResolveLinkInput{URL: wrapped.WrappedURL})
	if !errors.Is(err, errors.ErrInvalidSignature) {
		t.Errorf("err = %v, want INVALID_SIGNATURE", err)
	}
}

func TestResolveLink_EmptyURL(t *testing.T) {
	_, err := ResolveLink([]byte("test-secret"), ResolveLinkInput{URL: "   "})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}
