package consent

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
)

// ErrUnverifiable is returned when a consent cookie fails verification.
// Ledgers treat it as "not approved".
var ErrUnverifiable = errors.New("unverifiable consent cookie")

// signer produces and verifies the HMAC-signed values stored in consent
// cookies.
type signer struct {
	key     []byte
	nowFunc func() time.Time
}

func newSigner(key string) signer {
	return signer{key: []byte(key)}
}

func (s *signer) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

func (s *signer) registeredClaims(subject string, maxAge time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Issuer:    constants.MCPGitHubOAuthBridge,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(maxAge)),
	}
}

func (s *signer) sign(claims jwt.Claims) (string, error) {
	v, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign consent cookie: %w", err)
	}
	return v, nil
}

func (s *signer) verify(value string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(value, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(constants.MCPGitHubOAuthBridge),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnverifiable, err)
	}
	return nil
}
