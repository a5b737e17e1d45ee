package issuer

import (
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
)

// keyRing holds the key that signs new tokens followed by the retired
// keys whose tokens may still be presented. Keys are ordered newest first.
type keyRing struct {
	lifetime time.Duration
	generate func(now time.Time, lifetime time.Duration) (*signingKey, error)

	mu   sync.RWMutex
	keys []*signingKey
}

func newKeyRing(lifetime time.Duration) *keyRing {
	return &keyRing{
		lifetime: lifetime,
		generate: newSigningKey,
	}
}

// signingKey returns the key for tokens issued at now, rotating it once
// its deadline has passed.
func (k *keyRing) signingKey(now time.Time) (*signingKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.keys) > 0 && k.keys[0].canIssue(now) {
		return k.keys[0], nil
	}

	key, err := k.generate(now, k.lifetime)
	if err != nil {
		return nil, err
	}
	retained := k.verifiable(now)
	k.keys = append([]*signingKey{key}, retained...)

	logrus.WithField("key", logrus.Fields{
		jwk.KeyIDKey: key.keyID,
		"deadline":   key.deadline,
		"retained":   len(retained),
	}).Info("signing key rotated")

	return key, nil
}

// verificationKeys returns the public keys that still verify tokens at now.
func (k *keyRing) verificationKeys(now time.Time) []jwk.Key {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var keys []jwk.Key
	for _, key := range k.verifiable(now) {
		keys = append(keys, key.public)
	}
	return keys
}

func (k *keyRing) verifiable(now time.Time) []*signingKey {
	var keys []*signingKey
	for _, key := range k.keys {
		if key.canVerify(now, k.lifetime) {
			keys = append(keys, key)
		}
	}
	return keys
}
