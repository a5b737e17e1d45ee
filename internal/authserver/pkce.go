package authserver

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

func verifyPKCE(challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	expected := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(expected)) == 1
}
