package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/issuer"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/store"
)

var (
	ErrInvalidAuthRequest = errors.New("invalid authorization request")
)

// Provider is the in-process authorization server. It implements Helpers
// for the bridge and serves the token side of the flow.
type Provider struct {
	conf    *config.AuthServerConfig
	store   store.Store
	issuer  issuer.Issuer
	nowFunc func() time.Time
}

var _ Helpers = (*Provider)(nil)

func New(conf *config.AuthServerConfig, st store.Store, ti issuer.Issuer) *Provider {
	return &Provider{
		conf:    conf,
		store:   st,
		issuer:  ti,
		nowFunc: time.Now,
	}
}

// ParseAuthRequest validates the authorization request in the query of r.
// A request without client_id yields an empty AuthRequest and no error.
func (p *Provider) ParseAuthRequest(r *http.Request) (*AuthRequest, error) {
	q := r.URL.Query()

	clientID := q.Get(constants.QueryParamClientID)
	if clientID == "" {
		return &AuthRequest{}, nil
	}

	if rt, allowed := q.Get(constants.QueryParamResponseType), constants.AuthorizationServerResponseType; rt != allowed {
		return nil, fmt.Errorf("%w: '%s' is not supported for %s, only %s is allowed",
			ErrInvalidAuthRequest, rt, constants.QueryParamResponseType, allowed)
	}

	client, err := p.LookupClient(r.Context(), clientID)
	if err != nil {
		return nil, err
	}

	redirectURI := q.Get(constants.QueryParamRedirectURI)
	if redirectURI == "" {
		if len(client.RedirectURIs) != 1 {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidAuthRequest, constants.QueryParamRedirectURI)
		}
		redirectURI = client.RedirectURIs[0]
	}
	if !client.HasRedirectURI(redirectURI) {
		return nil, fmt.Errorf("%w: %s '%s' is not registered for client '%s'",
			ErrInvalidAuthRequest, constants.QueryParamRedirectURI, redirectURI, clientID)
	}

	codeChallenge := q.Get(constants.QueryParamCodeChallenge)
	if codeChallenge == "" {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidAuthRequest, constants.QueryParamCodeChallenge)
	}
	if ccm, allowed := q.Get(constants.QueryParamCodeChallengeMethod), constants.AuthorizationServerCodeChallengeMethod; ccm != allowed {
		return nil, fmt.Errorf("%w: '%s' is not supported for %s, only %s is allowed",
			ErrInvalidAuthRequest, ccm, constants.QueryParamCodeChallengeMethod, allowed)
	}

	scopes, err := p.filterScopes(r.Context(), q.Get(constants.QueryParamScopes))
	if err != nil {
		return nil, err
	}

	return &AuthRequest{
		ResponseType:        constants.AuthorizationServerResponseType,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               scopes,
		State:               q.Get(constants.QueryParamState),
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: constants.AuthorizationServerCodeChallengeMethod,
	}, nil
}

func (p *Provider) filterScopes(ctx context.Context, requested string) ([]string, error) {
	supported, err := p.conf.SupportedScopes(ctx)
	if err != nil {
		return nil, err
	}

	scopes := []string{}
	for s := range strings.FieldsSeq(requested) {
		if len(supported) > 0 && !slices.ContainsFunc(supported, func(sc config.ScopeConfig) bool {
			return sc.Name == s
		}) {
			continue
		}
		if !slices.Contains(scopes, s) {
			scopes = append(scopes, s)
		}
	}
	return scopes, nil
}

// LookupClient returns the registration of clientID, looking at the
// configured clients first and then at dynamically registered ones.
func (p *Provider) LookupClient(ctx context.Context, clientID string) (*ClientInfo, error) {
	for _, c := range p.conf.Clients {
		if c.ClientID == clientID {
			return &ClientInfo{
				ClientID:     c.ClientID,
				ClientName:   c.ClientName,
				ClientURI:    c.ClientURI,
				LogoURI:      c.LogoURI,
				PolicyURI:    c.PolicyURI,
				TosURI:       c.TosURI,
				RedirectURIs: c.RedirectURIs,
			}, nil
		}
	}

	c, ok := p.store.LookupClient(clientID)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrClientNotFound, clientID)
	}
	return &ClientInfo{
		ClientID:     c.ClientID,
		ClientName:   c.ClientName,
		ClientURI:    c.ClientURI,
		LogoURI:      c.LogoURI,
		PolicyURI:    c.PolicyURI,
		TosURI:       c.TosURI,
		RedirectURIs: c.RedirectURIs,
	}, nil
}

// CompleteAuthorization stores a grant for the authorized request and
// returns the client redirect carrying the authorization code.
func (p *Provider) CompleteAuthorization(ctx context.Context, opts CompleteAuthorizationOptions) (*CompleteAuthorizationResult, error) {
	req := opts.Request
	if req == nil || req.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client ID", ErrInvalidAuthRequest)
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("user ID must not be empty")
	}

	client, err := p.LookupClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, fmt.Errorf("%w: %s '%s' is not registered for client '%s'",
			ErrInvalidAuthRequest, constants.QueryParamRedirectURI, req.RedirectURI, req.ClientID)
	}

	redirectURL, err := url.Parse(req.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect URI: %w", err)
	}

	// The request comes back through the browser, so its scopes are
	// filtered again.
	scopes, err := p.filterScopes(ctx, strings.Join(opts.Scope, " "))
	if err != nil {
		return nil, err
	}

	props, err := json.Marshal(opts.Props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grant props: %w", err)
	}

	code, err := p.store.StoreGrant(&store.Grant{
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Scopes:              scopes,
		UserID:              opts.UserID,
		Props:               props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store grant: %w", err)
	}

	q := redirectURL.Query()
	q.Set(constants.QueryParamAuthorizationCode, code)
	if req.State != "" {
		q.Set(constants.QueryParamState, req.State)
	}
	redirectURL.RawQuery = q.Encode()

	return &CompleteAuthorizationResult{RedirectTo: redirectURL.String()}, nil
}
