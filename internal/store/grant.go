package store

import (
	"time"
)

const (
	grantMaxSize = 10000 // in bytes
)

// Grant is a completed authorization waiting for the client to redeem
// its authorization code at the token endpoint.
type Grant struct {
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Scopes              []string
	UserID              string

	// Props is opaque to the store. It carries whatever the completing
	// party attached to the grant, already serialized.
	Props []byte

	expiresAt time.Time
}

type grantKey string

func (g *Grant) size() uint {
	size := uint(len(g.ClientID))
	size += uint(len(g.RedirectURI))
	size += uint(len(g.CodeChallenge))
	size += uint(len(g.CodeChallengeMethod))
	size += uint(len(g.UserID))
	size += uint(len(g.Props))
	for _, s := range g.Scopes {
		size += uint(len(s))
	}
	return size
}
