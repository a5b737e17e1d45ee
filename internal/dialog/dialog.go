// Package dialog renders the approval page shown before a client is
// sent to GitHub, and parses the form it posts back.
package dialog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/authserver"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/consent"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/logging"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/state"
)

const (
	formFieldState = "state"
)

var (
	ErrMissingState   = errors.New("missing state in form data")
	ErrRecordApproval = errors.New("failed to record approval")
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type Options struct {
	Client *authserver.ClientInfo
	Server config.DialogConfig
	State  state.Payload
}

type approvalView struct {
	Client     *authserver.ClientInfo
	ClientName string
	Server     config.DialogConfig
	Scopes     []string
	State      string
	Action     string
}

// Render writes the approval page. The encoded state is embedded in the
// form so it comes back untouched on submission.
func Render(w http.ResponseWriter, r *http.Request, opts Options) {
	l := logging.FromRequest(r)

	encoded, err := state.Encode(opts.State)
	if err != nil {
		l.WithError(err).Error("failed to encode dialog state")
		http.Error(w, "Failed to encode state", http.StatusInternalServerError)
		return
	}

	client := opts.Client
	if client == nil {
		client = &authserver.ClientInfo{ClientID: opts.State.ClientID()}
	}
	view := approvalView{
		Client:     client,
		ClientName: client.DisplayName(),
		Server:     opts.Server,
		State:      encoded,
		Action:     constants.PathAuthorize,
	}
	if opts.State.OAuthReqInfo != nil {
		view.Scopes = opts.State.OAuthReqInfo.Scope
	}

	// Render into a buffer so template errors can still produce a 500.
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "approval.html", view); err != nil {
		l.WithError(err).Error("failed to render approval dialog")
		http.Error(w, "Failed to render approval dialog", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		l.WithError(err).Error("failed to write approval dialog")
	}
}

// Approval is a submitted approval form.
type Approval struct {
	State state.Payload

	// Cookie records the approval in the consent ledger. The caller must
	// set it on the response.
	Cookie *http.Cookie
}

// ParseRedirectApproval extracts the state posted by the approval dialog
// and records the approval of its client in ledger.
func ParseRedirectApproval(r *http.Request, ledger consent.Ledger) (*Approval, error) {
	if r.Method != http.MethodPost {
		return nil, fmt.Errorf("approval must be submitted with POST, got %s", r.Method)
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	encoded := r.PostForm.Get(formFieldState)
	if encoded == "" {
		return nil, ErrMissingState
	}
	p, err := state.Decode(encoded)
	if err != nil {
		return nil, err
	}
	clientID := p.ClientID()
	if clientID == "" {
		return nil, state.ErrMissingClientID
	}

	cookie, err := ledger.RecordApproval(r, clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecordApproval, err)
	}

	return &Approval{State: p, Cookie: cookie}, nil
}
