// Package tracking serves the public engagement endpoints embedded in
// outbound mail: the open pixel and the unsubscribe page. The routes are
// mounted on the operator API server and can also run on a standalone
// listener for deployments that keep recipient-facing traffic off the
// API port.
package tracking

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/civicworks/councilmail/internal/service/engagement"
	"github.com/civicworks/councilmail/internal/service/suppression"
	"github.com/civicworks/councilmail/internal/tenant"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

type Handler struct {
	engagement *engagement.Service
	resolver   *tenant.Resolver
}

func NewHandler(eng *engagement.Service, resolver *tenant.Resolver) *Handler {
	return &Handler{engagement: eng, resolver: resolver}
}

// Routes builds the standalone listener's route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.resolver.Middleware)
	h.Mount(r)
	r.Get("/healthz", h.HandleHealth)
	return r
}

// Mount registers the recipient-facing routes on an existing router.
// The router must already resolve the councillor into the context.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/track/pixel", h.HandlePixel)
	r.Get("/unsubscribe", h.HandleUnsubscribe)
	r.Post("/unsubscribe", h.HandleUnsubscribe)
}

// HandlePixel records an open and serves the pixel. The image is served
// no matter what: a broken or replayed link must still render invisibly
// in the recipient's mail client.
func (h *Handler) HandlePixel(w http.ResponseWriter, r *http.Request) {
	councillorID := tenant.FromContext(r.Context())
	campaignID := r.URL.Query().Get("campaignId")
	contactID := r.URL.Query().Get("contactId")

	h.engagement.RecordOpen(r.Context(), councillorID, campaignID, contactID, r.UserAgent())

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// HandleUnsubscribe opts the address out and confirms with a small HTML
// page. A missing or malformed address renders an error page with no
// side effect; a storage failure asks the recipient to try again rather
// than silently losing the opt-out.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	councillorID := tenant.FromContext(r.Context())
	email := r.URL.Query().Get("email")
	campaignID := r.URL.Query().Get("campaignId")
	contactID := r.URL.Query().Get("contactId")
	if email == "" && r.Method == http.MethodPost {
		email = r.PostFormValue("email")
	}

	err := h.engagement.RecordUnsubscribe(r.Context(), councillorID, email, campaignID, contactID)
	switch {
	case err == nil:
		servePage(w, http.StatusOK, "You have been unsubscribed",
			"You will no longer receive emails from this sender.")
	case errors.Is(err, suppression.ErrBadAddress):
		servePage(w, http.StatusBadRequest, "Invalid unsubscribe link",
			"This link is missing a valid email address. Please use the link from your email.")
	default:
		logger.Error("unsubscribe failed", "campaign_id", campaignID, "err", err)
		servePage(w, http.StatusServiceUnavailable, "Something went wrong",
			"We could not process your request. Please try the link again in a moment.")
	}
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func servePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
		<h1>` + title + `</h1>
		<p>` + body + `</p>
	</body></html>`))
}
