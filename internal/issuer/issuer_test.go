package issuer

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	. "github.com/onsi/gomega"
)

func newTestClaims() Claims {
	return Claims{
		Issuer:   "https://bridge.example.com",
		Subject:  "octocat",
		Audience: "https://bridge.example.com",
		ClientID: "abc123",
		Scopes:   []string{"repo:read"},
	}
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	g := NewWithT(t)

	iss := New(time.Hour)
	now := time.Now()

	signed, exp, err := iss.Issue(newTestClaims(), now)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(signed).ToNot(BeEmpty())
	g.Expect(exp).To(BeTemporally("~", now.Add(time.Hour), time.Second))

	tok, ok := iss.Verify(signed, now, "https://bridge.example.com", "https://bridge.example.com")
	g.Expect(ok).To(BeTrue())

	sub, _ := tok.Subject()
	g.Expect(sub).To(Equal("octocat"))

	var clientID string
	g.Expect(tok.Get(claimClientID, &clientID)).To(Succeed())
	g.Expect(clientID).To(Equal("abc123"))

	var scopes []any
	g.Expect(tok.Get(claimScopes, &scopes)).To(Succeed())
	g.Expect(scopes).To(ConsistOf("repo:read"))

	jti, ok := tok.JwtID()
	g.Expect(ok).To(BeTrue())
	g.Expect(jti).ToNot(BeEmpty())
}

func TestTokenIssuer_ProfileClaims(t *testing.T) {
	g := NewWithT(t)

	iss := New(time.Hour)
	now := time.Now()

	claims := newTestClaims()
	claims.Name = "The Octocat"
	claims.Email = "octocat@github.com"
	signed, _, err := iss.Issue(claims, now)
	g.Expect(err).ToNot(HaveOccurred())

	tok, ok := iss.Verify(signed, now, claims.Issuer, claims.Audience)
	g.Expect(ok).To(BeTrue())

	var name, email string
	g.Expect(tok.Get(ClaimName, &name)).To(Succeed())
	g.Expect(name).To(Equal("The Octocat"))
	g.Expect(tok.Get(ClaimEmail, &email)).To(Succeed())
	g.Expect(email).To(Equal("octocat@github.com"))

	// Empty profile claims are left out.
	signed, _, err = iss.Issue(newTestClaims(), now)
	g.Expect(err).ToNot(HaveOccurred())
	tok, ok = iss.Verify(signed, now, claims.Issuer, claims.Audience)
	g.Expect(ok).To(BeTrue())
	g.Expect(tok.Has(ClaimEmail)).To(BeFalse())
}

func TestTokenIssuer_VerifyRejects(t *testing.T) {
	iss := New(time.Hour)
	now := time.Now()
	signed, _, err := iss.Issue(newTestClaims(), now)
	NewWithT(t).Expect(err).ToNot(HaveOccurred())

	other := New(time.Hour)
	otherSigned, _, err := other.Issue(newTestClaims(), now)
	NewWithT(t).Expect(err).ToNot(HaveOccurred())

	tests := []struct {
		name  string
		token string
		now   time.Time
		iss   string
		aud   string
	}{
		{"garbage", "not-a-jwt", now, "https://bridge.example.com", "https://bridge.example.com"},
		{"wrong issuer", signed, now, "https://other.example.com", "https://bridge.example.com"},
		{"wrong audience", signed, now, "https://bridge.example.com", "https://other.example.com"},
		{"expired", signed, now.Add(2 * time.Hour), "https://bridge.example.com", "https://bridge.example.com"},
		{"foreign key", otherSigned, now, "https://bridge.example.com", "https://bridge.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			_, ok := iss.Verify(tt.token, tt.now, tt.iss, tt.aud)
			g.Expect(ok).To(BeFalse())
		})
	}
}

func TestTokenIssuer_KeyRotation(t *testing.T) {
	g := NewWithT(t)

	iss := New(time.Hour)
	now := time.Now()

	first, _, err := iss.Issue(newTestClaims(), now)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(iss.PublicKeys(now)).To(HaveLen(1))

	// Past the first key's issuing deadline a new key is generated, and
	// the old one is still published for verification.
	later := now.Add(time.Hour + time.Minute)
	_, _, err = iss.Issue(newTestClaims(), later)
	g.Expect(err).ToNot(HaveOccurred())

	keys := iss.PublicKeys(later)
	g.Expect(keys).To(HaveLen(2))
	kid0, _ := keys[0].KeyID()
	kid1, _ := keys[1].KeyID()
	g.Expect(kid0).ToNot(Equal(kid1))

	parsed, err := jwt.ParseString(first, jwt.WithKey(Algorithm(), keys[1]), jwt.WithValidate(false))
	g.Expect(err).ToNot(HaveOccurred())
	sub, _ := parsed.Subject()
	g.Expect(sub).To(Equal("octocat"))

	// After another full lifetime the first key is gone.
	g.Expect(iss.PublicKeys(now.Add(4*time.Hour))).To(BeEmpty())
}

func TestSigningKey_Lifetime(t *testing.T) {
	g := NewWithT(t)

	now := time.Now()
	var missing *signingKey
	g.Expect(missing.canIssue(now)).To(BeFalse())
	g.Expect(missing.canVerify(now, time.Hour)).To(BeFalse())

	key := &signingKey{deadline: now.Add(time.Minute)}
	g.Expect(key.canIssue(now)).To(BeTrue())
	g.Expect(key.canIssue(now.Add(2 * time.Minute))).To(BeFalse())
	g.Expect(key.canVerify(now.Add(30*time.Minute), time.Hour)).To(BeTrue())
	g.Expect(key.canVerify(now.Add(2*time.Hour), time.Hour)).To(BeFalse())
}

func TestKeyRing_rotation(t *testing.T) {
	g := NewWithT(t)

	var generated int
	ring := newKeyRing(time.Hour)
	ring.generate = func(now time.Time, lifetime time.Duration) (*signingKey, error) {
		generated++
		if generated == 3 {
			return nil, errors.New("entropy exhausted")
		}
		return &signingKey{keyID: fmt.Sprintf("key-%d", generated), deadline: now.Add(lifetime)}, nil
	}

	now := time.Now()
	first, err := ring.signingKey(now)
	g.Expect(err).ToNot(HaveOccurred())
	again, err := ring.signingKey(now.Add(30 * time.Minute))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(again).To(BeIdenticalTo(first))

	second, err := ring.signingKey(now.Add(90 * time.Minute))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(second.keyID).To(Equal("key-2"))
	g.Expect(ring.keys).To(HaveLen(2))
	g.Expect(ring.keys[1]).To(BeIdenticalTo(first))

	// A failed rotation keeps the ring untouched.
	_, err = ring.signingKey(now.Add(4 * time.Hour))
	g.Expect(err).To(MatchError("entropy exhausted"))
	g.Expect(ring.keys).To(HaveLen(2))

	// The next rotation drops keys that no longer verify anything.
	third, err := ring.signingKey(now.Add(4 * time.Hour))
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(ring.keys).To(HaveLen(1))
	g.Expect(ring.keys[0]).To(BeIdenticalTo(third))
}

func TestPublicKeysCarryKeyIDAndAlgorithm(t *testing.T) {
	g := NewWithT(t)

	iss := New(time.Hour)
	now := time.Now()
	_, _, err := iss.Issue(newTestClaims(), now)
	g.Expect(err).ToNot(HaveOccurred())

	keys := iss.PublicKeys(now)
	g.Expect(keys).To(HaveLen(1))
	kid, ok := keys[0].KeyID()
	g.Expect(ok).To(BeTrue())
	g.Expect(kid).To(HaveLen(43))
	alg, ok := keys[0].Algorithm()
	g.Expect(ok).To(BeTrue())
	g.Expect(alg.String()).To(Equal("RS256"))
	_, isPrivate := keys[0].(jwk.RSAPrivateKey)
	g.Expect(isPrivate).To(BeFalse())
}
