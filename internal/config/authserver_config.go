package config

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultTokenDuration = time.Hour
	defaultGrantTimeout  = 10 * time.Minute
	scopesCacheDuration  = 10 * time.Second
)

// AuthServerConfig configures the in-process authorization server that
// registers MCP clients and turns completed authorizations into tokens.
type AuthServerConfig struct {
	AllowedRedirectURLs []string       `yaml:"allowedRedirectURLs" json:"allowedRedirectURLs"`
	Clients             []ClientConfig `yaml:"clients" json:"clients"`

	// Endpoint is an optional MCP server whose tools/list metadata
	// advertises the scopes clients may request.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	TokenDuration time.Duration `yaml:"tokenDuration" json:"tokenDuration"`
	GrantTimeout  time.Duration `yaml:"grantTimeout" json:"grantTimeout"`

	regexAllowedRedirectURLs []*regexp.Regexp

	scopes         []ScopeConfig
	scopesDeadline time.Time
	scopesMu       sync.Mutex
}

// ClientConfig is a client registered ahead of time instead of through
// dynamic client registration.
type ClientConfig struct {
	ClientID     string   `yaml:"clientID" json:"clientID"`
	ClientName   string   `yaml:"clientName" json:"clientName"`
	ClientURI    string   `yaml:"clientURI" json:"clientURI"`
	LogoURI      string   `yaml:"logoURI" json:"logoURI"`
	PolicyURI    string   `yaml:"policyURI" json:"policyURI"`
	TosURI       string   `yaml:"tosURI" json:"tosURI"`
	RedirectURIs []string `yaml:"redirectURIs" json:"redirectURIs"`
}

type ScopeConfig struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Tools       []string `yaml:"tools" json:"tools"`
}

func (a *AuthServerConfig) validateAndInitialize() error {
	if a.AllowedRedirectURLs == nil {
		a.AllowedRedirectURLs = []string{}
	}
	if a.Clients == nil {
		a.Clients = []ClientConfig{}
	}
	if a.TokenDuration == 0 {
		a.TokenDuration = defaultTokenDuration
	}
	if a.GrantTimeout == 0 {
		a.GrantTimeout = defaultGrantTimeout
	}

	regexes, err := buildRegexList(a.AllowedRedirectURLs)
	if err != nil {
		return fmt.Errorf("failed to build regex list for allowed redirect URLs: %w", err)
	}
	a.regexAllowedRedirectURLs = regexes

	seen := make(map[string]bool, len(a.Clients))
	for i, c := range a.Clients {
		if c.ClientID == "" {
			return fmt.Errorf("clientID is empty for authServer.clients[%d]", i)
		}
		if seen[c.ClientID] {
			return fmt.Errorf("duplicate clientID '%s' in authServer.clients", c.ClientID)
		}
		seen[c.ClientID] = true
		if len(c.RedirectURIs) == 0 {
			return fmt.Errorf("redirectURIs is empty for authServer.clients[%d]", i)
		}
		for _, uri := range c.RedirectURIs {
			if !a.ValidateRedirectURL(uri) {
				return fmt.Errorf("redirect URI '%s' of authServer.clients[%d] is not in the allow list", uri, i)
			}
		}
	}

	return nil
}

func (a *AuthServerConfig) ValidateRedirectURL(url string) bool {
	if url == "" {
		return false
	}
	if len(a.regexAllowedRedirectURLs) == 0 {
		return true
	}
	for _, r := range a.regexAllowedRedirectURLs {
		if r.MatchString(url) {
			return true
		}
	}
	return false
}

// SupportedScopes returns the scopes advertised by the configured MCP
// endpoint. An empty result means any requested scope is passed through.
func (a *AuthServerConfig) SupportedScopes(ctx context.Context) ([]ScopeConfig, error) {
	if a.Endpoint == "" {
		return nil, nil
	}

	a.scopesMu.Lock()
	defer a.scopesMu.Unlock()

	now := time.Now()
	if now.Before(a.scopesDeadline) {
		return a.scopes, nil
	}

	scopes, err := fetchSupportedScopes(ctx, a.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch supported scopes from '%s': %w", a.Endpoint, err)
	}
	a.scopes = scopes
	a.scopesDeadline = now.Add(scopesCacheDuration)
	return scopes, nil
}

func fetchSupportedScopes(ctx context.Context, endpoint string) ([]ScopeConfig, error) {
	c, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	defer c.Close()
	if _, err := c.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	resp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list MCP tools: %w", err)
	}
	if resp.Meta == nil {
		return nil, nil
	}
	b, err := json.Marshal(resp.Meta.AdditionalFields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal MCP tools metadata: %w", err)
	}
	var payload struct {
		Scopes []ScopeConfig `json:"scopes"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MCP tools metadata: %w", err)
	}
	return payload.Scopes, nil
}
