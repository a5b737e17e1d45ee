// Package server assembles the bridge, the authorization server and the
// operational endpoints into an HTTP server.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/authserver"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/bridge"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/config"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/consent"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/constants"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/issuer"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/logging"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/provider/github"
	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/store"
)

const (
	requestTimeout    = 30 * time.Second
	upstreamTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func New(conf *config.Config) (*http.Server, error) {
	return newServer(conf, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

func newServer(conf *config.Config,
	promRegisterer prometheus.Registerer, promGatherer prometheus.Gatherer) (*http.Server, error) {

	ledger, err := consent.New(&conf.Consent)
	if err != nil {
		return nil, fmt.Errorf("failed to create consent ledger: %w", err)
	}

	st := store.NewMemoryStore(conf.AuthServer.GrantTimeout)
	iss := issuer.New(conf.AuthServer.TokenDuration)
	as := authserver.New(&conf.AuthServer, st, iss)

	adapter := github.New(&conf.Provider, constants.PathCallback).
		WithHTTPClient(&http.Client{Timeout: upstreamTimeout})

	br := bridge.New(as, ledger, adapter, conf.Dialog, promRegisterer)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout))
	as.RegisterRoutes(router)
	br.RegisterRoutes(router)

	var api http.Handler = router
	if conf.Server.CORS {
		api = handleCORS(api)
	}
	api = logging.Middleware(api)

	promHandler := promhttp.HandlerFor(promGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	requestDurationSecs := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: "http_request_duration_seconds",
		Help: "Duration of HTTP requests in seconds",
	}, []string{"host", "method", "path", "status"})
	promRegisterer.MustRegister(requestDurationSecs)

	return &http.Server{
		Addr:              conf.Server.Addr,
		ReadHeaderTimeout: readHeaderTimeout,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := time.Now()
			sr := &statusRecorder{ResponseWriter: w}
			defer func() {
				status := fmt.Sprintf("%d", sr.getStatusCode())
				requestDurationSecs.
					WithLabelValues(r.Host, r.Method, r.URL.Path, status).
					Observe(time.Since(t).Seconds())
			}()

			switch r.URL.Path {
			case "/readyz", "/healthz":
				sr.WriteHeader(http.StatusOK)
			case "/metrics":
				promHandler.ServeHTTP(sr, r)
			default:
				api.ServeHTTP(sr, r)
			}
		}),
	}, nil
}
