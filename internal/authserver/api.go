package authserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/issuer"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/logging"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/store"
)

const (
	// Ping endpoint. Will respond WWW-Authenticate header if a valid bearer token is not provided.
	PathAuthenticate = "/authenticate"

	// OAuth 2.0 Dynamic Client Registration Protocol-compliant endpoints.
	PathOAuthProtectedResource   = "/.well-known/oauth-protected-resource"
	PathOAuthAuthorizationServer = "/.well-known/oauth-authorization-server"
	PathRegister                 = "/register"
	PathToken                    = "/token"

	// OIDC endpoints.
	PathOpenIDConfiguration = "/.well-known/openid-configuration"
	PathJWKS                = "/openid/v1/jwks"

	headerAuthRequestUser  = "X-Auth-Request-User"
	headerAuthRequestEmail = "X-Auth-Request-Email"
)

// RegisterRoutes mounts the authorization server endpoints on r. The
// authorize and callback endpoints belong to the bridge.
func (p *Provider) RegisterRoutes(r chi.Router) {
	r.Get(PathAuthenticate, p.authenticate)
	r.Get(PathOAuthProtectedResource, p.protectedResourceMetadata)
	r.Get(PathOAuthAuthorizationServer, p.authorizationServerMetadata)
	r.Post(PathRegister, p.register)
	r.Post(PathToken, p.token)
	r.Get(PathOpenIDConfiguration, p.openIDConfiguration)
	r.Get(PathJWKS, p.jwks)
}

func (p *Provider) authenticate(w http.ResponseWriter, r *http.Request) {
	iss := baseURL(r)
	aud := baseURL(r)
	tok, ok := p.issuer.Verify(bearerToken(r), p.nowFunc(), iss, aud)
	if !ok {
		respondWWWAuthenticate(w, r)
		return
	}

	sub, _ := tok.Subject()
	w.Header().Set(headerAuthRequestUser, sub)
	var email string
	if err := tok.Get(issuer.ClaimEmail, &email); err == nil && email != "" {
		w.Header().Set(headerAuthRequestEmail, email)
	}

	logging.FromRequest(r).WithField("user", sub).Debug("request authenticated")
}

func (p *Provider) protectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{
		"resource":                 baseURL(r),
		"authorization_servers":    []string{baseURL(r)},
		"bearer_methods_supported": []string{"header"},
	})
}

func (p *Provider) authorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	supportedScopes, err := p.conf.SupportedScopes(r.Context())
	if err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to get supported scopes")
		http.Error(w, "Failed to get supported scopes", http.StatusInternalServerError)
		return
	}
	scopeNames := make([]string, 0, len(supportedScopes))
	for _, s := range supportedScopes {
		scopeNames = append(scopeNames, s.Name)
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"issuer":                                baseURL(r),
		"authorization_endpoint":                baseURL(r) + constants.PathAuthorize,
		"token_endpoint":                        baseURL(r) + PathToken,
		"registration_endpoint":                 baseURL(r) + PathRegister,
		"jwks_uri":                              baseURL(r) + PathJWKS,
		"code_challenge_methods_supported":      []string{constants.AuthorizationServerCodeChallengeMethod},
		"grant_types_supported":                 []string{constants.AuthorizationServerGrantType},
		"response_modes_supported":              []string{constants.AuthorizationServerResponseMode},
		"response_types_supported":              []string{constants.AuthorizationServerResponseType},
		"scopes_supported":                      scopeNames,
		"token_endpoint_auth_methods_supported": []string{constants.AuthorizationServerTokenEndpointAuthMethod},
	})
}

func (p *Provider) register(w http.ResponseWriter, r *http.Request) {
	l := logging.FromRequest(r)

	var req struct {
		RedirectURIs []string `json:"redirect_uris,omitempty"`
		ClientName   string   `json:"client_name,omitempty"`
		ClientURI    string   `json:"client_uri,omitempty"`
		LogoURI      string   `json:"logo_uri,omitempty"`
		ToSURI       string   `json:"tos_uri,omitempty"`
		PolicyURI    string   `json:"policy_uri,omitempty"`
		Contacts     []string `json:"contacts,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		l.WithError(err).Error("failed to parse request body as JSON")
		respondOAuthError(w, r, http.StatusBadRequest, "invalid_client_metadata", "Failed to parse request body as JSON")
		return
	}

	if len(req.RedirectURIs) == 0 {
		respondOAuthError(w, r, http.StatusBadRequest, "invalid_redirect_uri", "At least one redirect URI is required")
		return
	}
	for _, uri := range req.RedirectURIs {
		if !p.conf.ValidateRedirectURL(uri) {
			respondOAuthError(w, r, http.StatusBadRequest, "invalid_redirect_uri", fmt.Sprintf("Invalid redirect URI '%s'", uri))
			return
		}
	}

	c := &store.Client{
		ClientID:                uuid.NewString(),
		RedirectURIs:            req.RedirectURIs,
		ClientName:              req.ClientName,
		ClientURI:               req.ClientURI,
		LogoURI:                 req.LogoURI,
		PolicyURI:               req.PolicyURI,
		TosURI:                  req.ToSURI,
		Contacts:                req.Contacts,
		TokenEndpointAuthMethod: constants.AuthorizationServerTokenEndpointAuthMethod,
		RegistrationDate:        p.nowFunc().Unix(),
	}
	if err := p.store.RegisterClient(c); err != nil {
		l.WithError(err).Error("failed to register client")
		http.Error(w, "Failed to register client", http.StatusInternalServerError)
		return
	}

	respondJSON(w, r, http.StatusCreated, c)

	l.WithField("client", logFieldsForClient(c)).Info("client registered")
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	l := logging.FromRequest(r)

	if err := r.ParseForm(); err != nil {
		l.WithError(err).Error("failed to parse form")
		respondOAuthError(w, r, http.StatusBadRequest, "invalid_request", "Failed to parse form")
		return
	}

	if gt := r.PostForm.Get(constants.QueryParamGrantType); gt != constants.AuthorizationServerGrantType {
		respondOAuthError(w, r, http.StatusBadRequest, "unsupported_grant_type",
			fmt.Sprintf("'%s' is not supported, only %s is allowed", gt, constants.AuthorizationServerGrantType))
		return
	}

	g, ok := p.store.RetrieveGrant(r.PostForm.Get(constants.QueryParamAuthorizationCode))
	if !ok {
		respondOAuthError(w, r, http.StatusBadRequest, "invalid_grant", "Authorization code expired")
		return
	}

	if clientID := r.PostForm.Get(constants.QueryParamClientID); clientID != g.ClientID {
		respondOAuthError(w, r, http.StatusBadRequest, "invalid_grant", "Client mismatch")
		return
	}
	if redirectURI := r.PostForm.Get(constants.QueryParamRedirectURI); redirectURI != "" && redirectURI != g.RedirectURI {
		respondOAuthError(w, r, http.StatusBadRequest, "invalid_grant", "Redirect URI mismatch")
		return
	}
	if !verifyPKCE(g.CodeChallenge, r.PostForm.Get(constants.QueryParamCodeVerifier)) {
		respondOAuthError(w, r, http.StatusBadRequest, "invalid_grant", "PKCE failed")
		return
	}

	var props Props
	if len(g.Props) > 0 {
		if err := json.Unmarshal(g.Props, &props); err != nil {
			l.WithError(err).Error("failed to unmarshal grant props")
			http.Error(w, "Failed to read grant", http.StatusInternalServerError)
			return
		}
	}

	now := p.nowFunc()
	accessToken, exp, err := p.issuer.Issue(issuer.Claims{
		Issuer:   baseURL(r),
		Subject:  g.UserID,
		Audience: baseURL(r),
		ClientID: g.ClientID,
		Scopes:   g.Scopes,
		Name:     props.Name,
		Email:    props.Email,
	}, now)
	if err != nil {
		l.WithError(err).Error("failed to issue access token")
		http.Error(w, "Failed to issue access token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, r, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int64(exp.Sub(now).Seconds()),
		"scope":        strings.Join(g.Scopes, " "),
	})
}

func (p *Provider) openIDConfiguration(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{
		"issuer":                                baseURL(r),
		"jwks_uri":                              baseURL(r) + PathJWKS,
		"id_token_signing_alg_values_supported": []string{issuer.Algorithm().String()},
	})
}

func (p *Provider) jwks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]any{
		"keys": p.issuer.PublicKeys(p.nowFunc()),
	})
}

func logFieldsForClient(c *store.Client) map[string]any {
	return map[string]any{
		"id":           c.ClientID,
		"name":         c.ClientName,
		"redirectURIs": c.RedirectURIs,
	}
}
