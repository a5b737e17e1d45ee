package server

import (
	. "github.com/onsi/gomega"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/authserver"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/state"
)

func encodeTestState(g *WithT, clientID string) string {
	encoded, err := state.EncodeRequest(&authserver.AuthRequest{
		ResponseType: "code",
		ClientID:     clientID,
		RedirectURI:  clientRedirect,
	})
	g.Expect(err).NotTo(HaveOccurred())
	return encoded
}
