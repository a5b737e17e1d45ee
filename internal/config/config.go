package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigFile = "/etc/mcp-github-oauth-bridge/config/config.yaml"
	envConfigFile     = "MCP_GITHUB_OAUTH_BRIDGE_CONFIG"
)

type Config struct {
	Provider   ProviderConfig   `yaml:"provider" json:"provider"`
	Consent    ConsentConfig    `yaml:"consent" json:"consent"`
	Dialog     DialogConfig     `yaml:"dialog" json:"dialog"`
	AuthServer AuthServerConfig `yaml:"authServer" json:"authServer"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// secretsFromEnv holds values that deployments usually inject as
// environment secrets rather than writing to the config file.
type secretsFromEnv struct {
	GitHubClientID      string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret  string `env:"GITHUB_CLIENT_SECRET"`
	CookieEncryptionKey string `env:"COOKIE_ENCRYPTION_KEY"`
	RedisURL            string `env:"REDIS_URL"`
}

// Load reads the config file, overlays environment secrets and validates
// the result. A missing file is only tolerated at the default location.
func Load() (*Config, error) {
	fileName := defaultConfigFile
	explicit := false
	if fn := os.Getenv(envConfigFile); fn != "" {
		fileName = fn
		explicit = true
	}

	var cfg Config
	if err := cfg.readFile(fileName); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateAndInitialize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readFile(fileName string) error {
	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config file '%s': %w", fileName, err)
	}
	return nil
}

func (c *Config) overlayEnv() error {
	var s secretsFromEnv
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	if s.GitHubClientID != "" {
		c.Provider.ClientID = s.GitHubClientID
	}
	if s.GitHubClientSecret != "" {
		c.Provider.ClientSecret = s.GitHubClientSecret
	}
	if s.CookieEncryptionKey != "" {
		c.Consent.CookieEncryptionKey = s.CookieEncryptionKey
	}
	if s.RedisURL != "" {
		c.Consent.Redis.URL = s.RedisURL
	}
	return nil
}

func (c *Config) ValidateAndInitialize() error {
	if err := c.Provider.validateAndInitialize(); err != nil {
		return err
	}
	if err := c.Consent.validateAndInitialize(); err != nil {
		return err
	}
	c.Dialog.applyDefaults()
	if err := c.AuthServer.validateAndInitialize(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	return nil
}

func buildRegexList(in []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(in))
	for _, s := range in {
		r, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("failed to compile regex '%s': %w", s, err)
		}
		out = append(out, r)
	}
	return out, nil
}
