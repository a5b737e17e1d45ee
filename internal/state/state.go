// Package state encodes authorization requests into the opaque string
// that survives the redirect round trip through the approval dialog and
// the identity provider. Every redirect-carried value goes through
// Encode and Decode.
package state

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/authserver"
)

var (
	ErrMalformedState  = errors.New("malformed state")
	ErrMissingClientID = errors.New("state carries no client ID")
)

// Payload is the value carried inside the encoded state.
type Payload struct {
	OAuthReqInfo *authserver.AuthRequest `json:"oauthReqInfo"`
}

// ClientID returns the client ID of the wrapped request, if any.
func (p Payload) ClientID() string {
	if p.OAuthReqInfo == nil {
		return ""
	}
	return p.OAuthReqInfo.ClientID
}

// Encode serializes p as unpadded base64url JSON, which is safe to use
// verbatim in query strings, form fields and cookies.
func Encode(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// EncodeRequest wraps req in a Payload and encodes it.
func EncodeRequest(req *authserver.AuthRequest) (string, error) {
	return Encode(Payload{OAuthReqInfo: req})
}

// Decode reverses Encode. Padded and standard base64 are also accepted.
func Decode(s string) (Payload, error) {
	var p Payload
	b, err := decodeBase64(s)
	if err != nil {
		return p, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrMalformedState, err)
	}
	return p, nil
}

// DecodeRequest decodes s and returns the wrapped request. It fails with
// ErrMissingClientID when the request is absent or has no client ID.
func DecodeRequest(s string) (*authserver.AuthRequest, error) {
	p, err := Decode(s)
	if err != nil {
		return nil, err
	}
	if p.ClientID() == "" {
		return nil, ErrMissingClientID
	}
	return p.OAuthReqInfo, nil
}

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty")
	}
	enc := base64.RawURLEncoding
	if strings.ContainsAny(s, "+/") {
		enc = base64.RawStdEncoding
	}
	return enc.DecodeString(strings.TrimRight(s, "="))
}
