// Package github signs users in with GitHub, either as an OAuth app or as
// a GitHub App, on github.com or a GitHub Enterprise Server.
package github

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/logging"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/provider"
)

// Adapter implements provider.Adapter for GitHub.
type Adapter struct {
	conf         *config.ProviderConfig
	callbackPath string
	httpClient   *http.Client
}

var _ provider.Adapter = (*Adapter)(nil)

func New(conf *config.ProviderConfig, callbackPath string) *Adapter {
	return &Adapter{
		conf:         conf,
		callbackPath: callbackPath,
	}
}

// WithHTTPClient sets the client used to talk to GitHub.
func (a *Adapter) WithHTTPClient(c *http.Client) *Adapter {
	a.httpClient = c
	return a
}

func (a *Adapter) oauth2Config(r *http.Request) *oauth2.Config {
	c := &oauth2.Config{
		ClientID:     a.conf.ClientID,
		ClientSecret: a.conf.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  a.conf.AuthURL,
			TokenURL: a.conf.TokenURL,
		},
		RedirectURL: fmt.Sprintf("https://%s%s", r.Host, a.callbackPath),
	}
	// GitHub Apps take their permissions from the installation.
	if !a.conf.GitHubApp {
		c.Scopes = a.conf.Scopes
	}
	return c
}

func (a *Adapter) RedirectToProvider(w http.ResponseWriter, r *http.Request, state string) {
	a.setState(w, state)
	authURL := a.oauth2Config(r).AuthCodeURL(state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (a *Adapter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.FromRequest(r)
		q := r.URL.Query()

		if errCode := q.Get(constants.QueryParamError); errCode != "" {
			desc := q.Get(constants.QueryParamErrorDescription)
			if desc == "" {
				desc = errCode
			}
			l.WithField("error", errCode).WithField("errorDescription", desc).
				Error("github returned an authorization error")
			http.Error(w, desc, http.StatusBadRequest)
			return
		}

		code := q.Get(constants.QueryParamAuthorizationCode)
		if code == "" {
			state := q.Get(constants.QueryParamState)
			if state == "" {
				var err error
				state, err = randomState()
				if err != nil {
					l.WithError(err).Error("failed to generate state")
					http.Error(w, "Failed to generate state", http.StatusInternalServerError)
					return
				}
			}
			a.RedirectToProvider(w, r, state)
			return
		}

		if err := a.checkAndDeleteState(w, r); err != nil {
			l.WithError(err).Error("CSRF check failed")
			http.Error(w, "CSRF failed", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		if a.httpClient != nil {
			ctx = contextWithHTTPClient(ctx, a.httpClient)
		}

		conf := a.oauth2Config(r)
		token, err := conf.Exchange(ctx, code)
		if err != nil {
			l.WithError(err).Error("failed to exchange authorization code")
			http.Error(w, "Failed to exchange authorization code for tokens", http.StatusBadRequest)
			return
		}

		user, err := a.verifyUser(ctx, conf.TokenSource(ctx, token))
		if err != nil {
			l.WithError(err).Error("failed to verify user")
			http.Error(w, "Failed to verify user", http.StatusBadRequest)
			return
		}

		l = l.WithField("user", user.Login)
		l.Info("user verified")

		ctx = provider.IntoContext(r.Context(), token, user)
		r = logging.IntoRequest(r.WithContext(ctx), l)
		next.ServeHTTP(w, r)
	})
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
