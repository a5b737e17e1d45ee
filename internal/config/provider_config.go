package config

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2/github"
)

const (
	defaultGitHubAPIURL = "https://api.github.com"
)

// DefaultGitHubScopes are requested from GitHub when none are configured.
var DefaultGitHubScopes = []string{"read:user", "user:email"}

// ProviderConfig configures the GitHub application the bridge signs users
// in with.
type ProviderConfig struct {
	ClientID     string   `yaml:"clientID" json:"clientID"`
	ClientSecret string   `yaml:"clientSecret" json:"-"`
	Scopes       []string `yaml:"scopes" json:"scopes"`

	// GitHubApp selects GitHub App semantics, where permissions come from
	// the app installation and the scope parameter is not sent.
	GitHubApp bool `yaml:"githubApp" json:"githubApp"`

	// EnterpriseURL points the bridge at a GitHub Enterprise Server.
	EnterpriseURL string `yaml:"enterpriseURL" json:"enterpriseURL"`

	AuthURL  string `yaml:"authURL" json:"authURL"`
	TokenURL string `yaml:"tokenURL" json:"tokenURL"`
	APIURL   string `yaml:"apiURL" json:"apiURL"`
}

func (p *ProviderConfig) validateAndInitialize() error {
	if p.ClientID == "" {
		return fmt.Errorf("provider.clientID must be set")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("provider.clientSecret must be set")
	}
	if len(p.Scopes) == 0 {
		p.Scopes = append([]string(nil), DefaultGitHubScopes...)
	}

	authURL, tokenURL, apiURL := github.Endpoint.AuthURL, github.Endpoint.TokenURL, defaultGitHubAPIURL
	if p.EnterpriseURL != "" {
		base, err := url.Parse(p.EnterpriseURL)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return fmt.Errorf("provider.enterpriseURL must be an absolute URL: '%s'", p.EnterpriseURL)
		}
		b := strings.TrimSuffix(base.String(), "/")
		authURL = b + "/login/oauth/authorize"
		tokenURL = b + "/login/oauth/access_token"
		apiURL = b + "/api/v3"
	}
	if p.AuthURL == "" {
		p.AuthURL = authURL
	}
	if p.TokenURL == "" {
		p.TokenURL = tokenURL
	}
	if p.APIURL == "" {
		p.APIURL = apiURL
	}
	p.APIURL = strings.TrimSuffix(p.APIURL, "/")
	return nil
}
