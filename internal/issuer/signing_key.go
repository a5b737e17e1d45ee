package issuer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

const rsaKeyBits = 2048

type signingKey struct {
	keyID    string
	private  jwk.Key
	public   jwk.Key
	deadline time.Time
}

// newSigningKey generates an RSA key that signs tokens until now+lifetime.
// The key ID is the RFC 7638 thumbprint of the public key.
func newSigningKey(now time.Time, lifetime time.Duration) (*signingKey, error) {
	raw, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rsa key: %w", err)
	}
	private, err := jwk.Import(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to import rsa key: %w", err)
	}
	public, err := private.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	thumbprint, err := public.Thumbprint(crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	keyID := base64.RawURLEncoding.EncodeToString(thumbprint)

	for _, kv := range []struct {
		key   jwk.Key
		name  string
		value any
	}{
		{private, jwk.KeyIDKey, keyID},
		{public, jwk.KeyIDKey, keyID},
		{public, jwk.AlgorithmKey, Algorithm()},
		{public, jwk.KeyUsageKey, jwk.ForSignature},
	} {
		if err := kv.key.Set(kv.name, kv.value); err != nil {
			return nil, fmt.Errorf("failed to set %s on key: %w", kv.name, err)
		}
	}

	return &signingKey{
		keyID:    keyID,
		private:  private,
		public:   public,
		deadline: now.Add(lifetime),
	}, nil
}

func (s *signingKey) canIssue(now time.Time) bool {
	return s != nil && !now.After(s.deadline)
}

// Tokens signed right before the deadline stay valid for another token
// lifetime, so the public key must be published for that long.
func (s *signingKey) canVerify(now time.Time, tokenDuration time.Duration) bool {
	return s != nil && !now.After(s.deadline.Add(tokenDuration))
}
