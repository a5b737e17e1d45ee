package issuer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/sirupsen/logrus"
)

const (
	claimClientID = "client_id"
	claimScopes   = "scopes"
	ClaimName     = "name"
	ClaimEmail    = "email"
)

func Algorithm() jwa.SignatureAlgorithm { return jwa.RS256() }

// Claims are the application-specific claims of an access token.
type Claims struct {
	Issuer   string
	Subject  string
	Audience string
	ClientID string
	Scopes   []string

	// Optional profile claims.
	Name  string
	Email string
}

type Issuer interface {
	Issue(claims Claims, now time.Time) (string, time.Time, error)
	Verify(bearerToken string, now time.Time, iss, aud string) (jwt.Token, bool)
	PublicKeys(now time.Time) []jwk.Key
}

type tokenIssuer struct {
	keys          *keyRing
	tokenDuration time.Duration
}

// New returns an Issuer that signs tokens valid for tokenDuration with
// RSA keys rotated on the same period.
func New(tokenDuration time.Duration) Issuer {
	return &tokenIssuer{
		keys:          newKeyRing(tokenDuration),
		tokenDuration: tokenDuration,
	}
}

func (t *tokenIssuer) Issue(claims Claims, now time.Time) (string, time.Time, error) {
	key, err := t.keys.signingKey(now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to get signing key: %w", err)
	}

	exp := now.Add(t.tokenDuration)
	scopes := claims.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	tok, err := jwt.NewBuilder().
		Issuer(claims.Issuer).
		Subject(claims.Subject).
		Audience([]string{claims.Audience}).
		Expiration(exp).
		NotBefore(now).
		IssuedAt(now).
		JwtID(uuid.NewString()).
		Claim(claimClientID, claims.ClientID).
		Claim(claimScopes, scopes).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build token: %w", err)
	}
	for k, v := range map[string]string{ClaimName: claims.Name, ClaimEmail: claims.Email} {
		if v == "" {
			continue
		}
		if err := tok.Set(k, v); err != nil {
			return "", time.Time{}, fmt.Errorf("failed to set claim %s: %w", k, err)
		}
	}

	b, err := jwt.Sign(tok, jwt.WithKey(Algorithm(), key.private))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	signedJWT := string(b)

	b, _ = json.Marshal(tok)
	var logClaims map[string]any
	_ = json.Unmarshal(b, &logClaims)
	logrus.WithField("token", logrus.Fields{
		jwk.KeyIDKey: key.keyID,
		"claims":     logClaims,
	}).Info("token issued")

	return signedJWT, exp, nil
}

func (t *tokenIssuer) Verify(bearerToken string, now time.Time, iss, aud string) (jwt.Token, bool) {
	for _, key := range t.keys.verificationKeys(now) {
		token, err := jwt.ParseString(bearerToken,
			jwt.WithKey(Algorithm(), key),
			jwt.WithIssuer(iss),
			jwt.WithAudience(aud))
		if err != nil {
			continue
		}

		if exp, ok := token.Expiration(); !ok || now.After(exp) {
			continue
		}

		return token, true
	}
	return nil, false
}

func (t *tokenIssuer) PublicKeys(now time.Time) []jwk.Key {
	return t.keys.verificationKeys(now)
}
