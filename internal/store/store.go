package store

// Store keeps the authorization server's short-lived grants and its
// registered clients.
type Store interface {
	StoreGrant(g *Grant) (string, error)
	RetrieveGrant(code string) (*Grant, bool)
	RegisterClient(c *Client) error
	LookupClient(clientID string) (*Client, bool)
}
