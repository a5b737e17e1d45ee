package constants

const (
	MCPGitHubOAuthBridge = "mcp-github-oauth-bridge"

	QueryParamAuthorizationCode   = "code"
	QueryParamClientID            = "client_id"
	QueryParamCodeChallenge       = "code_challenge"
	QueryParamCodeChallengeMethod = "code_challenge_method"
	QueryParamCodeVerifier        = "code_verifier"
	QueryParamError               = "error"
	QueryParamErrorDescription    = "error_description"
	QueryParamGrantType           = "grant_type"
	QueryParamRedirectURI         = "redirect_uri"
	QueryParamResponseType        = "response_type"
	QueryParamScopes              = "scope"
	QueryParamState               = "state"

	AuthorizationServerCodeChallengeMethod     = "S256"
	AuthorizationServerGrantType               = "authorization_code"
	AuthorizationServerResponseMode            = "query"
	AuthorizationServerResponseType            = "code"
	AuthorizationServerTokenEndpointAuthMethod = "none"

	// Paths served by the bridge itself.
	PathAuthorize = "/authorize"
	PathCallback  = "/callback"
)
