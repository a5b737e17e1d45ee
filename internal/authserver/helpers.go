package authserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/logging"
)

func baseURL(r *http.Request) string {
	return fmt.Sprintf("https://%s", r.Host)
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func respondWWWAuthenticate(w http.ResponseWriter, r *http.Request) {
	resourceMetadata := fmt.Sprintf("%s%s", baseURL(r), PathOAuthProtectedResource)
	wwwAuthenticate := fmt.Sprintf(`Bearer realm="%s", resource_metadata="%s"`, constants.MCPGitHubOAuthBridge, resourceMetadata)
	w.Header().Set("WWW-Authenticate", wwwAuthenticate)
	const status = http.StatusUnauthorized
	http.Error(w, http.StatusText(status), status)
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to write response")
	}
}

// respondOAuthError writes an RFC 6749 section 5.2 error response.
func respondOAuthError(w http.ResponseWriter, r *http.Request, status int, code, description string) {
	respondJSON(w, r, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
