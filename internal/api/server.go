// Package api exposes the operator-facing HTTP surface: distribution
// lists, contacts, campaigns, suppression, and campaign metrics. Every
// route is councillor-scoped via the tenant resolver.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/civicworks/councilmail/internal/pkg/httputil"
	"github.com/civicworks/councilmail/internal/pkg/metrics"
	"github.com/civicworks/councilmail/internal/service/campaign"
	"github.com/civicworks/councilmail/internal/service/contacts"
	"github.com/civicworks/councilmail/internal/service/engagement"
	"github.com/civicworks/councilmail/internal/service/suppression"
	"github.com/civicworks/councilmail/internal/tenant"
	"github.com/civicworks/councilmail/internal/tracking"
)

// Server wires the service layer to the operator API routes. The public
// tracking routes are mounted here too, so a single-binary deployment
// closes the pixel-to-metrics loop in one process.
type Server struct {
	contacts    *contacts.Service
	campaigns   *campaign.Service
	suppression *suppression.Service
	engagement  *engagement.Service
	tracking    *tracking.Handler
	resolver    *tenant.Resolver
	corsOrigins []string
}

// NewServer creates the API server.
func NewServer(
	contactsSvc *contacts.Service,
	campaignsSvc *campaign.Service,
	suppressionSvc *suppression.Service,
	engagementSvc *engagement.Service,
	trackingHandler *tracking.Handler,
	resolver *tenant.Resolver,
	corsOrigins []string,
) *Server {
	return &Server{
		contacts:    contactsSvc,
		campaigns:   campaignsSvc,
		suppression: suppressionSvc,
		engagement:  engagementSvc,
		tracking:    trackingHandler,
		resolver:    resolver,
		corsOrigins: corsOrigins,
	}
}

// Router builds the full route tree.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Councillor-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Recipient-facing routes share the councillor resolver but live
	// outside /api so mailed links stay short.
	r.Group(func(r chi.Router) {
		r.Use(s.resolver.Middleware)
		s.tracking.Mount(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.resolver.Middleware)

		r.Route("/lists", func(r chi.Router) {
			r.Get("/", s.handleListLists)
			r.Post("/", s.handleCreateList)
			r.Route("/{listID}", func(r chi.Router) {
				r.Get("/", s.handleGetList)
				r.Delete("/", s.handleDeleteList)
				r.Get("/contacts", s.handleListContacts)
				r.Post("/contacts", s.handleAddContact)
				r.Post("/contacts/import", s.handleImportContacts)
				r.Delete("/contacts/{contactID}", s.handleRemoveContact)
			})
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Route("/{campaignID}", func(r chi.Router) {
				r.Get("/", s.handleGetCampaign)
				r.Delete("/", s.handleDeleteCampaign)
				r.Get("/metrics", s.handleCampaignMetrics)
				r.Get("/recipients", s.handleCampaignRecipients)
			})
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", s.handleListSuppressions)
			r.Post("/", s.handleAddSuppression)
			r.Delete("/", s.handleRemoveSuppression)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"service": "councilmail",
		"endpoints": []string{
			"GET /api/lists",
			"POST /api/lists",
			"GET /api/lists/{listID}",
			"DELETE /api/lists/{listID}",
			"GET /api/lists/{listID}/contacts",
			"POST /api/lists/{listID}/contacts",
			"POST /api/lists/{listID}/contacts/import",
			"DELETE /api/lists/{listID}/contacts/{contactID}",
			"GET /api/campaigns",
			"POST /api/campaigns",
			"GET /api/campaigns/{campaignID}",
			"DELETE /api/campaigns/{campaignID}",
			"GET /api/campaigns/{campaignID}/metrics",
			"GET /api/campaigns/{campaignID}/recipients",
			"GET /api/suppressions",
			"POST /api/suppressions",
			"DELETE /api/suppressions",
			"GET /track/pixel",
			"GET /unsubscribe",
			"POST /unsubscribe",
			"GET /healthz",
			"GET /metrics",
		},
	})
}
