// Package metrics exposes the Prometheus collectors shared by the server
// and tracking binaries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EmailsSent counts provider-confirmed deliveries, labeled by outcome.
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "councilmail_emails_total",
		Help: "Dispatch outcomes per recipient.",
	}, []string{"outcome"})

	// CampaignsDispatched counts completed campaign sends by final status.
	CampaignsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "councilmail_campaigns_dispatched_total",
		Help: "Campaign dispatches by terminal status.",
	}, []string{"status"})

	// EngagementEvents counts tracking callbacks by type.
	EngagementEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "councilmail_engagement_events_total",
		Help: "Open and unsubscribe callbacks ingested.",
	}, []string{"type"})

	// DispatchDuration observes wall-clock time per campaign send.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "councilmail_dispatch_duration_seconds",
		Help:    "Campaign dispatch duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// Handler returns the /metrics scrape endpoint.
func Handler() http.Handler { return promhttp.Handler() }
