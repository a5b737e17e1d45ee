package github

import (
	"errors"
	"net/http"
	"time"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
)

const (
	stateCookieName   = "github-oauth-state"
	stateCookieMaxAge = 10 * time.Minute
)

var (
	errStateExpired  = errors.New("state cookie expired")
	errStateMismatch = errors.New("state mismatch")
)

func (a *Adapter) setState(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     a.callbackPath,
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// checkAndDeleteState compares the state returned by GitHub with the one
// pinned to the browser before the redirect. The cookie is single use.
func (a *Adapter) checkAndDeleteState(w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		return errStateExpired
	}

	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Path:   a.callbackPath,
		MaxAge: -1,
	})

	if c.Value == "" || c.Value != r.URL.Query().Get(constants.QueryParamState) {
		return errStateMismatch
	}
	return nil
}
