package config

import (
	"fmt"
	"time"
)

const (
	ConsentBackendCookie = "cookie"
	ConsentBackendRedis  = "redis"

	// MinCookieKeyLength is the minimum length of the HMAC key for consent cookies.
	MinCookieKeyLength = 32

	defaultConsentCookieName = "mcp-approved-clients"
	defaultConsentMaxAge     = 365 * 24 * time.Hour
	defaultRedisKeyPrefix    = "mcp-github-oauth-bridge:consent:"
)

type ConsentConfig struct {
	CookieEncryptionKey string        `yaml:"cookieEncryptionKey" json:"-"`
	CookieName          string        `yaml:"cookieName" json:"cookieName"`
	MaxAge              time.Duration `yaml:"maxAge" json:"maxAge"`
	Backend             string        `yaml:"backend" json:"backend"`
	Redis               RedisConfig   `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	URL       string `yaml:"url" json:"-"`
	KeyPrefix string `yaml:"keyPrefix" json:"keyPrefix"`
}

func (c *ConsentConfig) validateAndInitialize() error {
	if c.CookieEncryptionKey == "" {
		return fmt.Errorf("consent.cookieEncryptionKey must be set")
	}
	if len(c.CookieEncryptionKey) < MinCookieKeyLength {
		return fmt.Errorf("consent.cookieEncryptionKey must be at least %d bytes", MinCookieKeyLength)
	}
	if c.CookieName == "" {
		c.CookieName = defaultConsentCookieName
	}
	if c.MaxAge == 0 {
		c.MaxAge = defaultConsentMaxAge
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("consent.maxAge must be positive")
	}
	switch c.Backend {
	case "":
		c.Backend = ConsentBackendCookie
	case ConsentBackendCookie:
	case ConsentBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("consent.redis.url must be set when consent.backend is '%s'", ConsentBackendRedis)
		}
	default:
		return fmt.Errorf("unsupported consent.backend: %s", c.Backend)
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = defaultRedisKeyPrefix
	}
	return nil
}
