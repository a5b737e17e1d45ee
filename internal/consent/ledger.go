// Package consent remembers which clients a browser has approved.
//
// Consent is a convenience that lets returning users skip the approval
// dialog. A missing, expired, tampered or otherwise unverifiable record
// always reads as "not approved" and never as an error.
package consent

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
)

// Ledger records client approvals for the browser making a request.
type Ledger interface {
	// HasApproved reports whether the browser behind r approved clientID.
	HasApproved(r *http.Request, clientID string) bool

	// RecordApproval returns a cookie that, once set on the response,
	// makes HasApproved report true for clientID. Recording the same
	// client twice is harmless.
	RecordApproval(r *http.Request, clientID string) (*http.Cookie, error)
}

// New builds the Ledger selected by conf.Backend.
func New(conf *config.ConsentConfig) (Ledger, error) {
	switch conf.Backend {
	case config.ConsentBackendCookie, "":
		return NewCookieLedger(conf), nil
	case config.ConsentBackendRedis:
		opts, err := redis.ParseURL(conf.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		return NewRedisLedger(conf, redis.NewClient(opts)), nil
	default:
		return nil, fmt.Errorf("unsupported consent backend: %s", conf.Backend)
	}
}

func newCookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
