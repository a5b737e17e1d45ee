package consent

import (
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/logging"
)

const (
	// maxApprovedClients bounds the cookie size; the oldest approvals
	// are forgotten first.
	maxApprovedClients = 50
)

type approvalClaims struct {
	Clients []string `json:"clients"`
	jwt.RegisteredClaims
}

// CookieLedger keeps the set of approved client IDs in a signed cookie.
type CookieLedger struct {
	signer
	cookieName string
	maxAge     time.Duration
}

func NewCookieLedger(conf *config.ConsentConfig) *CookieLedger {
	return &CookieLedger{
		signer:     newSigner(conf.CookieEncryptionKey),
		cookieName: conf.CookieName,
		maxAge:     conf.MaxAge,
	}
}

func (l *CookieLedger) HasApproved(r *http.Request, clientID string) bool {
	if clientID == "" {
		return false
	}
	return slices.Contains(l.approvedClients(r), clientID)
}

func (l *CookieLedger) RecordApproval(r *http.Request, clientID string) (*http.Cookie, error) {
	clients := l.approvedClients(r)
	if !slices.Contains(clients, clientID) {
		clients = append(clients, clientID)
	}
	if n := len(clients); n > maxApprovedClients {
		clients = clients[n-maxApprovedClients:]
	}

	value, err := l.sign(&approvalClaims{
		Clients:          clients,
		RegisteredClaims: l.registeredClaims("", l.maxAge),
	})
	if err != nil {
		return nil, err
	}
	return newCookie(l.cookieName, value, l.maxAge), nil
}

func (l *CookieLedger) approvedClients(r *http.Request) []string {
	c, err := r.Cookie(l.cookieName)
	if err != nil {
		return nil
	}
	var claims approvalClaims
	if err := l.verify(c.Value, &claims); err != nil {
		logging.FromRequest(r).WithError(err).Debug("ignoring unverifiable consent cookie")
		return nil
	}
	return claims.Clients
}
