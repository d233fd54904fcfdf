// Package metrics exposes Prometheus counters for the meal flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	SelectionsSubmitted prometheus.Counter
	TokensIssued        prometheus.Counter
	TokenIssueFailures  prometheus.Counter
	Redemptions         prometheus.Counter
	GuestOrders         prometheus.Counter
	WebhookEvents       *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		SelectionsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "messmate_selections_submitted_total",
			Help: "Weekly selection submissions accepted.",
		}),
		TokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "messmate_tokens_issued_total",
			Help: "Redemption tokens minted.",
		}),
		TokenIssueFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "messmate_token_issue_failures_total",
			Help: "Token queue entries that failed to issue.",
		}),
		Redemptions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "messmate_redemptions_total",
			Help: "Meal QR codes redeemed at the counter.",
		}),
		GuestOrders: promauto.NewCounter(prometheus.CounterOpts{
			Name: "messmate_guest_orders_total",
			Help: "Guest orders placed.",
		}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "messmate_payment_webhook_events_total",
			Help: "Payment gateway webhook events by outcome.",
		}, []string{"outcome"}),
	}
}

func Handler() http.Handler { return promhttp.Handler() }
