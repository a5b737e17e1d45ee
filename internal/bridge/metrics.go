package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	transitionAuthorize = "authorize"
	transitionApprove   = "approve"
	transitionCallback  = "callback"

	outcomeDialog     = "dialog"
	outcomeBypassed   = "bypassed"
	outcomeRedirected = "redirected"
	outcomeCompleted  = "completed"
	outcomeRejected   = "rejected"
	outcomeError      = "error"
)

type metrics struct {
	authorizations *prometheus.CounterVec
}

func newMetrics(promRegisterer prometheus.Registerer) *metrics {
	authorizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_authorizations_total",
		Help: "Authorization flow transitions by outcome",
	}, []string{"transition", "outcome"})
	promRegisterer.MustRegister(authorizations)
	return &metrics{authorizations: authorizations}
}

func (m *metrics) observe(transition, outcome string) {
	m.authorizations.WithLabelValues(transition, outcome).Inc()
}
