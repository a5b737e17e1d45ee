package consent

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/logging"
)

// RedisLedger keeps approvals server-side in a Redis set per browser.
// The cookie only carries a signed random browser ID.
type RedisLedger struct {
	signer
	client     redis.Cmdable
	keyPrefix  string
	cookieName string
	maxAge     time.Duration
}

func NewRedisLedger(conf *config.ConsentConfig, client redis.Cmdable) *RedisLedger {
	return &RedisLedger{
		signer:     newSigner(conf.CookieEncryptionKey),
		client:     client,
		keyPrefix:  conf.Redis.KeyPrefix,
		cookieName: conf.CookieName,
		maxAge:     conf.MaxAge,
	}
}

func (l *RedisLedger) HasApproved(r *http.Request, clientID string) bool {
	if clientID == "" {
		return false
	}
	browserID, ok := l.browserID(r)
	if !ok {
		return false
	}
	approved, err := l.client.SIsMember(r.Context(), l.key(browserID), clientID).Result()
	if err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to read consent from redis")
		return false
	}
	return approved
}

func (l *RedisLedger) RecordApproval(r *http.Request, clientID string) (*http.Cookie, error) {
	browserID, ok := l.browserID(r)
	if !ok {
		browserID = uuid.NewString()
	}

	ctx := r.Context()
	key := l.key(browserID)
	pipe := l.client.TxPipeline()
	pipe.SAdd(ctx, key, clientID)
	pipe.Expire(ctx, key, l.maxAge)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	claims := l.registeredClaims(browserID, l.maxAge)
	value, err := l.sign(&claims)
	if err != nil {
		return nil, err
	}
	return newCookie(l.cookieName, value, l.maxAge), nil
}

func (l *RedisLedger) key(browserID string) string {
	return l.keyPrefix + browserID
}

func (l *RedisLedger) browserID(r *http.Request) (string, bool) {
	c, err := r.Cookie(l.cookieName)
	if err != nil {
		return "", false
	}
	var claims jwt.RegisteredClaims
	if err := l.verify(c.Value, &claims); err != nil {
		logging.FromRequest(r).WithError(err).Debug("ignoring unverifiable consent cookie")
		return "", false
	}
	if claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
