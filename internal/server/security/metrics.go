package security

import (
	"errors"

	"github.com/dmitrijs2005/gophgate/internal/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts authentication and authorization outcomes. A nil *Metrics
// records nothing.
type Metrics struct {
	AuthOutcomes    *prometheus.CounterVec
	TokenRejections *prometheus.CounterVec
	Decisions       *prometheus.CounterVec
	LoginAttempts   *prometheus.CounterVec
}

// NewMetrics creates and registers the security metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophgate_auth_outcomes_total",
				Help: "Authentication filter outcomes",
			},
			[]string{"outcome"},
		),
		TokenRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophgate_token_rejections_total",
				Help: "Rejected bearer tokens by reason",
			},
			[]string{"reason"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophgate_authz_decisions_total",
				Help: "Authorization decisions by result",
			},
			[]string{"result"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gophgate_login_attempts_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(m.AuthOutcomes, m.TokenRejections, m.Decisions, m.LoginAttempts)
	return m
}

// authentication outcomes
const (
	outcomeAnonymous      = "anonymous"
	outcomeInvalidToken   = "invalid_token"
	outcomeUnknownSubject = "unknown_subject"
	outcomeDisabled       = "disabled"
	outcomeAuthenticated  = "authenticated"
	outcomeStoreError     = "store_error"
)

func (m *Metrics) authOutcome(outcome string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) tokenRejected(reason string) {
	if m == nil {
		return
	}
	m.TokenRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) decision(d Decision) {
	if m == nil {
		return
	}
	result := "allowed"
	if !d.Allowed {
		result = d.Reason.String()
	}
	m.Decisions.WithLabelValues(result).Inc()
}

// ObserveLogin records one login attempt.
func (m *Metrics) ObserveLogin(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// TokenErrorReason names the internal token failure for logs and metrics.
// It must never reach a response.
func TokenErrorReason(err error) string {
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrTokenBadSignature):
		return "bad_signature"
	default:
		return "malformed"
	}
}
