package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/gomega"
	"golang.org/x/oauth2"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/issuer"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/store"
)

const (
	testClientID    = "abc123"
	testRedirectURI = "https://client.example.com/cb"
	testVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

var testChallenge = oauth2.S256ChallengeFromVerifier(testVerifier)

func newTestProvider(t *testing.T) (*Provider, store.Store) {
	t.Helper()
	return newTestProviderWithConfig(&config.AuthServerConfig{
		Clients: []config.ClientConfig{{
			ClientID:     testClientID,
			ClientName:   "Test Client",
			ClientURI:    "https://client.example.com",
			RedirectURIs: []string{testRedirectURI},
		}},
	})
}

func newTestProviderWithConfig(conf *config.AuthServerConfig) (*Provider, store.Store) {
	st := store.NewMemoryStore(time.Minute)
	return New(conf, st, issuer.New(time.Hour)), st
}

func authorizeRequest(params url.Values) *http.Request {
	return httptest.NewRequest(http.MethodGet, "https://bridge.example.com/authorize?"+params.Encode(), nil)
}

func validAuthorizeParams() url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"scope":                 {"read write read"},
		"state":                 {"xyz"},
		"code_challenge":        {testChallenge},
		"code_challenge_method": {"S256"},
	}
}

func TestProvider_ParseAuthRequest(t *testing.T) {
	g := NewWithT(t)

	p, _ := newTestProvider(t)
	req, err := p.ParseAuthRequest(authorizeRequest(validAuthorizeParams()))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(req).To(Equal(&AuthRequest{
		ResponseType:        "code",
		ClientID:            testClientID,
		RedirectURI:         testRedirectURI,
		Scope:               []string{"read", "write"},
		State:               "xyz",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "S256",
	}))
}

func TestProvider_ParseAuthRequest_defaults(t *testing.T) {
	g := NewWithT(t)

	p, _ := newTestProvider(t)

	req, err := p.ParseAuthRequest(authorizeRequest(url.Values{}))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(req).To(Equal(&AuthRequest{}))

	params := validAuthorizeParams()
	params.Del("redirect_uri")
	params.Del("scope")
	req, err = p.ParseAuthRequest(authorizeRequest(params))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(req.RedirectURI).To(Equal(testRedirectURI))
	g.Expect(req.Scope).To(BeEmpty())
	g.Expect(req.Scope).NotTo(BeNil())
}

func TestProvider_ParseAuthRequest_errors(t *testing.T) {
	for _, tt := range []struct {
		name    string
		mutate  func(url.Values)
		wantErr error
		errMsg  string
	}{
		{
			name:    "unsupported response type",
			mutate:  func(v url.Values) { v.Set("response_type", "token") },
			wantErr: ErrInvalidAuthRequest,
			errMsg:  "'token' is not supported for response_type, only code is allowed",
		},
		{
			name:    "unknown client",
			mutate:  func(v url.Values) { v.Set("client_id", "unknown") },
			wantErr: ErrClientNotFound,
		},
		{
			name:    "unregistered redirect URI",
			mutate:  func(v url.Values) { v.Set("redirect_uri", "https://evil.example.com/cb") },
			wantErr: ErrInvalidAuthRequest,
			errMsg:  "redirect_uri 'https://evil.example.com/cb' is not registered for client 'abc123'",
		},
		{
			name:    "missing code challenge",
			mutate:  func(v url.Values) { v.Del("code_challenge") },
			wantErr: ErrInvalidAuthRequest,
			errMsg:  "code_challenge is required",
		},
		{
			name:    "plain code challenge method",
			mutate:  func(v url.Values) { v.Set("code_challenge_method", "plain") },
			wantErr: ErrInvalidAuthRequest,
			errMsg:  "'plain' is not supported for code_challenge_method, only S256 is allowed",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			p, _ := newTestProvider(t)
			params := validAuthorizeParams()
			tt.mutate(params)

			req, err := p.ParseAuthRequest(authorizeRequest(params))
			g.Expect(req).To(BeNil())
			g.Expect(errors.Is(err, tt.wantErr)).To(BeTrue())
			if tt.errMsg != "" {
				g.Expect(err.Error()).To(ContainSubstring(tt.errMsg))
			}
		})
	}
}

func TestProvider_LookupClient(t *testing.T) {
	g := NewWithT(t)

	p, st := newTestProvider(t)
	ctx := context.Background()

	c, err := p.LookupClient(ctx, testClientID)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.DisplayName()).To(Equal("Test Client"))
	g.Expect(c.ClientURI).To(Equal("https://client.example.com"))
	g.Expect(c.RedirectURIs).To(Equal([]string{testRedirectURI}))

	g.Expect(st.RegisterClient(&store.Client{
		ClientID:     "dynamic",
		RedirectURIs: []string{"http://localhost:3000/cb"},
	})).To(Succeed())
	c, err = p.LookupClient(ctx, "dynamic")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.DisplayName()).To(Equal("dynamic"))

	_, err = p.LookupClient(ctx, "missing")
	g.Expect(errors.Is(err, ErrClientNotFound)).To(BeTrue())
}

func TestProvider_CompleteAuthorization(t *testing.T) {
	g := NewWithT(t)

	p, st := newTestProvider(t)
	req, err := p.ParseAuthRequest(authorizeRequest(validAuthorizeParams()))
	g.Expect(err).NotTo(HaveOccurred())

	res, err := p.CompleteAuthorization(context.Background(), CompleteAuthorizationOptions{
		Request: req,
		UserID:  "octocat",
		Scope:   req.Scope,
		Props: Props{
			AccessToken: "gho_test",
			Login:       "octocat",
			Name:        "The Octocat",
			Email:       "octocat@github.com",
		},
	})
	g.Expect(err).NotTo(HaveOccurred())

	u, err := url.Parse(res.RedirectTo)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(u.Scheme + "://" + u.Host + u.Path).To(Equal(testRedirectURI))
	g.Expect(u.Query().Get("state")).To(Equal("xyz"))
	code := u.Query().Get("code")
	g.Expect(code).NotTo(BeEmpty())

	grant, ok := st.RetrieveGrant(code)
	g.Expect(ok).To(BeTrue())
	g.Expect(grant.ClientID).To(Equal(testClientID))
	g.Expect(grant.UserID).To(Equal("octocat"))
	g.Expect(grant.Scopes).To(Equal([]string{"read", "write"}))
	g.Expect(grant.CodeChallenge).To(Equal(testChallenge))

	var props Props
	g.Expect(json.Unmarshal(grant.Props, &props)).To(Succeed())
	g.Expect(props.AccessToken).To(Equal("gho_test"))
	g.Expect(props.Email).To(Equal("octocat@github.com"))
}

func TestProvider_CompleteAuthorization_keepsRedirectQuery(t *testing.T) {
	g := NewWithT(t)

	const redirectURI = "https://client.example.com/cb?tenant=acme"
	st := store.NewMemoryStore(time.Minute)
	p := New(&config.AuthServerConfig{
		Clients: []config.ClientConfig{{ClientID: "c", RedirectURIs: []string{redirectURI}}},
	}, st, issuer.New(time.Hour))

	res, err := p.CompleteAuthorization(context.Background(), CompleteAuthorizationOptions{
		Request: &AuthRequest{ClientID: "c", RedirectURI: redirectURI},
		UserID:  "octocat",
	})
	g.Expect(err).NotTo(HaveOccurred())

	u, err := url.Parse(res.RedirectTo)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(u.Query().Get("tenant")).To(Equal("acme"))
	g.Expect(u.Query().Get("code")).NotTo(BeEmpty())
	g.Expect(u.Query().Has("state")).To(BeFalse())
}

func TestProvider_CompleteAuthorization_errors(t *testing.T) {
	for _, tt := range []struct {
		name    string
		opts    CompleteAuthorizationOptions
		wantErr error
		errMsg  string
	}{
		{
			name:    "nil request",
			opts:    CompleteAuthorizationOptions{UserID: "octocat"},
			wantErr: ErrInvalidAuthRequest,
		},
		{
			name: "missing user",
			opts: CompleteAuthorizationOptions{
				Request: &AuthRequest{ClientID: testClientID, RedirectURI: testRedirectURI},
			},
			errMsg: "user ID must not be empty",
		},
		{
			name: "unknown client",
			opts: CompleteAuthorizationOptions{
				Request: &AuthRequest{ClientID: "unknown", RedirectURI: testRedirectURI},
				UserID:  "octocat",
			},
			wantErr: ErrClientNotFound,
		},
		{
			name: "unregistered redirect URI",
			opts: CompleteAuthorizationOptions{
				Request: &AuthRequest{ClientID: testClientID, RedirectURI: "https://evil.example.com"},
				UserID:  "octocat",
			},
			wantErr: ErrInvalidAuthRequest,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			p, _ := newTestProvider(t)
			res, err := p.CompleteAuthorization(context.Background(), tt.opts)
			g.Expect(err).To(HaveOccurred())
			g.Expect(res).To(BeNil())
			if tt.wantErr != nil {
				g.Expect(errors.Is(err, tt.wantErr)).To(BeTrue())
			}
			if tt.errMsg != "" {
				g.Expect(err.Error()).To(Equal(tt.errMsg))
			}
		})
	}
}

// newScopedMCPServer serves an MCP endpoint advertising scopes in the
// tools/list metadata.
func newScopedMCPServer(t *testing.T, scopes ...string) string {
	t.Helper()
	var advertised []config.ScopeConfig
	for _, s := range scopes {
		advertised = append(advertised, config.ScopeConfig{Name: s})
	}
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: "scoped", Version: "1.0.0"},
		&mcp.ServerOptions{HasTools: true})
	mcpServer.AddReceivingMiddleware(func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			res, err := next(ctx, method, req)
			if method == "tools/list" && err == nil {
				lt := res.(*mcp.ListToolsResult)
				if lt.Meta == nil {
					lt.Meta = make(mcp.Meta)
				}
				lt.Meta["scopes"] = advertised
			}
			return res, err
		}
	})
	srv := httptest.NewServer(mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer }, &mcp.StreamableHTTPOptions{}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestProvider_CompleteAuthorization_filtersScopes(t *testing.T) {
	g := NewWithT(t)

	p, st := newTestProviderWithConfig(&config.AuthServerConfig{
		Endpoint: newScopedMCPServer(t, "repo:read", "issues:write"),
		Clients:  []config.ClientConfig{{ClientID: testClientID, RedirectURIs: []string{testRedirectURI}}},
	})

	req, err := p.ParseAuthRequest(authorizeRequest(url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"scope":                 {"repo:read admin:everything"},
		"code_challenge":        {testChallenge},
		"code_challenge_method": {"S256"},
	}))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(req.Scope).To(Equal([]string{"repo:read"}))

	// The request was tampered with on its way back through the browser.
	res, err := p.CompleteAuthorization(context.Background(), CompleteAuthorizationOptions{
		Request: req,
		UserID:  "octocat",
		Scope:   []string{"admin:everything", "issues:write", "repo:read", "issues:write"},
	})
	g.Expect(err).NotTo(HaveOccurred())

	u, err := url.Parse(res.RedirectTo)
	g.Expect(err).NotTo(HaveOccurred())
	grant, ok := st.RetrieveGrant(u.Query().Get("code"))
	g.Expect(ok).To(BeTrue())
	g.Expect(grant.Scopes).To(Equal([]string{"issues:write", "repo:read"}))
}

func TestClientInfo_HasRedirectURI(t *testing.T) {
	g := NewWithT(t)

	c := &ClientInfo{RedirectURIs: []string{"https://a.example.com/cb", "http://localhost:6274/cb"}}
	g.Expect(c.HasRedirectURI("http://localhost:6274/cb")).To(BeTrue())
	g.Expect(c.HasRedirectURI("https://a.example.com/cb/")).To(BeFalse())
	g.Expect(c.HasRedirectURI("")).To(BeFalse())
}

func TestVerifyPKCE(t *testing.T) {
	g := NewWithT(t)

	g.Expect(verifyPKCE(testChallenge, testVerifier)).To(BeTrue())
	g.Expect(verifyPKCE(testChallenge, "wrong")).To(BeFalse())
	g.Expect(verifyPKCE("", testVerifier)).To(BeFalse())
	g.Expect(verifyPKCE(testChallenge, "")).To(BeFalse())
}
