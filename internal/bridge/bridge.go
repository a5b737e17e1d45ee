// Package bridge runs the authorization flow between MCP clients and
// GitHub: it asks the user for consent, sends them to GitHub, and turns
// the GitHub result into a grant of the authorization server.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/authserver"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/consent"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/dialog"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/logging"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/provider"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/state"
)

const (
	tracerName = "github.com/matheuscscp/mcp-github-oauth-bridge/internal/bridge"

	attributeClientID = "client.id"
)

var (
	ErrInvalidRequest = errors.New("invalid authorization request")
	ErrInvalidState   = errors.New("invalid state")
	ErrNotApproved    = errors.New("client not approved")
)

// Bridge serves the authorize and callback endpoints.
type Bridge struct {
	helpers authserver.Helpers
	ledger  consent.Ledger
	adapter provider.Adapter
	server  config.DialogConfig
	metrics *metrics
	tracer  trace.Tracer
}

func New(helpers authserver.Helpers, ledger consent.Ledger, adapter provider.Adapter,
	server config.DialogConfig, promRegisterer prometheus.Registerer) *Bridge {

	return &Bridge{
		helpers: helpers,
		ledger:  ledger,
		adapter: adapter,
		server:  server,
		metrics: newMetrics(promRegisterer),
		tracer:  otel.Tracer(tracerName),
	}
}

// RegisterRoutes mounts the bridge endpoints on r.
func (b *Bridge) RegisterRoutes(r chi.Router) {
	r.Get(constants.PathAuthorize, b.authorize)
	r.Post(constants.PathAuthorize, b.approve)
	r.With(b.requireState, b.adapter.Middleware).Get(constants.PathCallback, b.callback)
}

// authorize shows the approval dialog, or skips it for clients the
// browser has already approved.
func (b *Bridge) authorize(w http.ResponseWriter, r *http.Request) {
	ctx, span := b.tracer.Start(r.Context(), "bridge.authorize")
	defer span.End()
	r = r.WithContext(ctx)
	l := logging.FromRequest(r)

	req, err := b.helpers.ParseAuthRequest(r)
	if err == nil && (req == nil || req.ClientID == "") {
		err = ErrInvalidRequest
	} else if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err != nil {
		l.WithError(err).Info("rejecting authorization request")
		b.fail(w, span, transitionAuthorize, outcomeRejected, err, "Invalid request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String(attributeClientID, req.ClientID))
	l = l.WithField("clientID", req.ClientID)

	if b.ledger.HasApproved(r, req.ClientID) {
		encoded, err := state.EncodeRequest(req)
		if err != nil {
			l.WithError(err).Error("failed to encode state")
			b.fail(w, span, transitionAuthorize, outcomeError, err, "Failed to encode state", http.StatusInternalServerError)
			return
		}
		q := url.Values{}
		q.Set(constants.QueryParamState, encoded)
		l.Debug("client already approved, skipping dialog")
		b.metrics.observe(transitionAuthorize, outcomeBypassed)
		http.Redirect(w, r, constants.PathCallback+"?"+q.Encode(), http.StatusFound)
		return
	}

	client, err := b.helpers.LookupClient(ctx, req.ClientID)
	if err != nil {
		l.WithError(err).Error("failed to look up client")
		b.fail(w, span, transitionAuthorize, outcomeError, err, "Failed to look up client", http.StatusInternalServerError)
		return
	}

	b.metrics.observe(transitionAuthorize, outcomeDialog)
	dialog.Render(w, r, dialog.Options{
		Client: client,
		Server: b.server,
		State:  state.Payload{OAuthReqInfo: req},
	})
}

// approve records the consent posted by the dialog and sends the browser
// to GitHub carrying the request in the state parameter.
func (b *Bridge) approve(w http.ResponseWriter, r *http.Request) {
	ctx, span := b.tracer.Start(r.Context(), "bridge.approve")
	defer span.End()
	r = r.WithContext(ctx)
	l := logging.FromRequest(r)

	approval, err := dialog.ParseRedirectApproval(r, b.ledger)
	if err != nil {
		if errors.Is(err, dialog.ErrRecordApproval) {
			l.WithError(err).Error("failed to record approval")
			b.fail(w, span, transitionApprove, outcomeError, err, "Failed to record approval", http.StatusInternalServerError)
			return
		}
		l.WithError(err).Info("rejecting approval")
		b.fail(w, span, transitionApprove, outcomeRejected, err, "Invalid approval", http.StatusBadRequest)
		return
	}
	clientID := approval.State.ClientID()
	span.SetAttributes(attribute.String(attributeClientID, clientID))

	encoded, err := state.Encode(approval.State)
	if err != nil {
		l.WithError(err).Error("failed to encode state")
		b.fail(w, span, transitionApprove, outcomeError, err, "Failed to encode state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, approval.Cookie)
	l.WithField("clientID", clientID).Info("client approved")
	b.metrics.observe(transitionApprove, outcomeRedirected)
	b.adapter.RedirectToProvider(w, r, encoded)
}

type requestContextKey struct{}

// requireState rejects callbacks whose state does not carry an
// authorization request before anything is exchanged with GitHub. A
// callback without a code starts a GitHub round trip, so it is only
// allowed for clients this browser has already approved.
func (b *Bridge) requireState(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := b.tracer.Start(r.Context(), "bridge.callback")
		defer span.End()
		l := logging.FromRequest(r)
		q := r.URL.Query()

		req, err := state.DecodeRequest(q.Get(constants.QueryParamState))
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidState, err)
			l.WithError(err).Info("rejecting callback")
			b.fail(w, span, transitionCallback, outcomeRejected, err, "Invalid state", http.StatusBadRequest)
			return
		}
		span.SetAttributes(attribute.String(attributeClientID, req.ClientID))

		if q.Get(constants.QueryParamAuthorizationCode) == "" && !b.ledger.HasApproved(r, req.ClientID) {
			err := fmt.Errorf("%w: '%s'", ErrNotApproved, req.ClientID)
			l.WithError(err).Warn("rejecting callback")
			b.fail(w, span, transitionCallback, outcomeRejected, err, "Client not approved", http.StatusBadRequest)
			return
		}

		ctx = context.WithValue(ctx, requestContextKey{}, req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callback completes the authorization once GitHub has vouched for the
// user.
func (b *Bridge) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)
	l := logging.FromRequest(r)

	req, _ := ctx.Value(requestContextKey{}).(*authserver.AuthRequest)
	token := provider.TokenFromContext(ctx)
	user := provider.UserFromContext(ctx)
	if req == nil || token == nil || user == nil {
		err := errors.New("callback reached without a verified identity")
		l.WithError(err).Error("incomplete callback pipeline")
		b.fail(w, span, transitionCallback, outcomeError, err, "Failed to complete authorization", http.StatusInternalServerError)
		return
	}
	l = l.WithField("clientID", req.ClientID)

	res, err := b.helpers.CompleteAuthorization(ctx, authserver.CompleteAuthorizationOptions{
		Request: req,
		UserID:  user.Login,
		Scope:   req.Scope,
		Props: authserver.Props{
			AccessToken: token.AccessToken,
			Login:       user.Login,
			Name:        user.Name,
			Email:       user.Email,
		},
	})
	if err != nil {
		l.WithError(err).Error("failed to complete authorization")
		b.fail(w, span, transitionCallback, outcomeError, err, "Failed to complete authorization", http.StatusInternalServerError)
		return
	}

	l.Info("authorization completed")
	b.metrics.observe(transitionCallback, outcomeCompleted)
	http.Redirect(w, r, res.RedirectTo, http.StatusFound)
}

func (b *Bridge) fail(w http.ResponseWriter, span trace.Span, transition, outcome string,
	err error, msg string, status int) {

	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	b.metrics.observe(transition, outcome)
	http.Error(w, msg, status)
}
