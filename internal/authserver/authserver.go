// Package authserver defines the contract between the bridge and the
// authorization server that issues grants to MCP clients, and provides an
// in-process implementation of it.
package authserver

import (
	"context"
	"errors"
	"net/http"
	"slices"
)

var (
	ErrClientNotFound = errors.New("client not found")
)

// AuthRequest is an authorization request from an MCP client as
// understood by the authorization server. The bridge carries it across
// redirects but never interprets anything beyond ClientID and Scope.
type AuthRequest struct {
	ResponseType        string   `json:"responseType"`
	ClientID            string   `json:"clientId"`
	RedirectURI         string   `json:"redirectUri"`
	Scope               []string `json:"scope"`
	State               string   `json:"state"`
	CodeChallenge       string   `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string   `json:"codeChallengeMethod,omitempty"`
}

// ClientInfo is the registration metadata of a client, as shown to the
// user on the approval dialog.
type ClientInfo struct {
	ClientID     string
	ClientName   string
	ClientURI    string
	LogoURI      string
	PolicyURI    string
	TosURI       string
	RedirectURIs []string
}

// DisplayName returns the client name, or its ID when it has none.
func (c *ClientInfo) DisplayName() string {
	if c.ClientName != "" {
		return c.ClientName
	}
	return c.ClientID
}

// HasRedirectURI reports whether uri exactly matches one of the registered
// redirect URIs.
func (c *ClientInfo) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// Props travel with the grant to the party redeeming it.
type Props struct {
	AccessToken string `json:"accessToken"`
	Login       string `json:"login,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
}

type CompleteAuthorizationOptions struct {
	Request *AuthRequest
	UserID  string
	Scope   []string
	Props   Props
}

type CompleteAuthorizationResult struct {
	RedirectTo string
}

// Helpers is what the bridge needs from the authorization server.
type Helpers interface {
	ParseAuthRequest(r *http.Request) (*AuthRequest, error)
	LookupClient(ctx context.Context, clientID string) (*ClientInfo, error)
	CompleteAuthorization(ctx context.Context, opts CompleteAuthorizationOptions) (*CompleteAuthorizationResult, error)
}
