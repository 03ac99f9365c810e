// Package linkwrap produces and verifies tamper-evident opaque links.
//
// A wrapped link hides the true destination behind a short content-derived
// id and optionally embeds a signed payload (destination URL + title) that
// can be recovered without any database lookup. All functions are pure:
// no I/O, no shared state; callers supply the secret explicitly.
package linkwrap

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/diverhq/diver/internal/errors"
)

// Version is the current wire version emitted by Wrap.
const Version = 1

// IDLength is the length in hex characters of a link id.
const IDLength = 24

// Payload is the recoverable bundle embedded in a wrapped link.
type Payload struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Link is the parsed, ephemeral wire representation of a wrapped URL.
// It is never persisted as its own record.
type Link struct {
	ID        string
	Version   int
	Signature string
	Payload   string // base64url payload parameter, empty if absent
}

// ID computes the stable identifier for a URL: SHA-256 over the URL
// concatenated with the salt, hex encoded, truncated to IDLength.
// Different salts namespace ids across tenants or experiments.
func ID(rawURL, salt string) string {
	sum := sha256.Sum256([]byte(rawURL + salt))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// WrapInput contains parameters for Wrap.
type WrapInput struct {
	BaseURL        string // e.g. "https://links.example.com"
	URL            string // destination, required
	Title          string // carried in the payload when included
	Secret         []byte
	Salt           string
	IncludePayload bool
}

// Wrap builds a signed opaque URL of the form
// <base>/w/<id>?v=<version>[&p=<base64url(payload)>]&sig=<base64url(hmac)>.
// The signature covers version, id, and the payload string, not the
// destination URL itself, so payload tampering and version downgrades are
// both detectable.
func Wrap(in WrapInput) (string, error) {
	if strings.TrimSpace(in.URL) == "" {
		return "", errors.NewInvalidRequest("url is required")
	}
	if len(in.Secret) == 0 {
		return "", errors.NewInvalidRequest("secret is required")
	}
	base := strings.TrimRight(in.BaseURL, "/")
	if base == "" {
		return "", errors.NewInvalidRequest("base url is required")
	}

	id := ID(in.URL, in.Salt)

	payloadParam := ""
	if in.IncludePayload {
		data, err := json.Marshal(Payload{URL: in.URL, Title: in.Title})
		if err != nil {
			return "", errors.NewInternal(err)
		}
		payloadParam = base64.RawURLEncoding.EncodeToString(data)
	}

	sig := sign(Version, id, payloadParam, in.Secret)

	// Emission order is v, p, sig; parsers must not rely on it.
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("/w/")
	b.WriteString(id)
	b.WriteString("?v=")
	b.WriteString(strconv.Itoa(Version))
	if payloadParam != "" {
		b.WriteString("&p=")
		b.WriteString(payloadParam)
	}
	b.WriteString("&sig=")
	b.WriteString(sig)

	return b.String(), nil
}

// Parse splits a wrapped URL into its Link parts. It validates shape only;
// use Verify or ResolvePayload to check authenticity.
func Parse(rawURL string) (*Link, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewInvalidPath(rawURL)
	}

	// The id is the trailing /w/<id> pair; a base URL may carry its own
	// path prefix in front of it.
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] != "w" || parts[len(parts)-1] == "" {
		return nil, errors.NewInvalidPath(rawURL)
	}
	id := parts[len(parts)-1]

	q := u.Query()

	rawVersion := q.Get("v")
	version, err := strconv.Atoi(rawVersion)
	if err != nil || version <= 0 {
		return nil, errors.NewInvalidVersion(rawVersion)
	}

	sig := q.Get("sig")
	if sig == "" {
		return nil, errors.NewMissingSignature()
	}

	return &Link{
		ID:        id,
		Version:   version,
		Signature: sig,
		Payload:   q.Get("p"),
	}, nil
}

// Verify recomputes the expected signature for the link and compares it in
// constant time against the supplied one.
func Verify(l *Link, secret []byte) bool {
	expected := sign(l.Version, l.ID, l.Payload, secret)
	return hmac.Equal([]byte(expected), []byte(l.Signature))
}

// ResolvePayload parses and verifies a wrapped URL, then recovers the
// embedded payload. A verified link with no payload resolves to (nil, nil);
// that is not an error. A signature mismatch is ErrInvalidSignature and an
// undecodable payload is ErrInvalidPayload.
func ResolvePayload(rawURL string, secret []byte) (*Payload, error) {
	l, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}

	if !Verify(l, secret) {
		return nil, errors.NewInvalidSignature(l.ID)
	}

	if l.Payload == "" {
		return nil, nil
	}

	data, err := decodeBase64URL(l.Payload)
	if err != nil {
		return nil, errors.NewInvalidPayload(err)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.NewInvalidPayload(err)
	}

	return &p, nil
}

// sign computes the base64url HMAC-SHA256 over the canonical message
// "v=<version>&id=<id>&p=<payload-or-empty>". The message format must stay
// stable across versions or outstanding links stop verifying.
func sign(version int, id, payload string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "v=%d&id=%s&p=%s", version, id, payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// decodeBase64URL decodes base64url input with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
