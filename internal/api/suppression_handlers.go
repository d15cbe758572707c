package api

import (
	"errors"
	"net/http"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/pkg/httputil"
	"github.com/civicworks/councilmail/internal/service/suppression"
	"github.com/civicworks/councilmail/internal/tenant"
)

func (s *Server) handleListSuppressions(w http.ResponseWriter, r *http.Request) {
	ss, err := s.suppression.List(r.Context(), tenant.FromContext(r.Context()))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if ss == nil {
		ss = []domain.Suppression{}
	}
	httputil.OK(w, ss)
}

type addSuppressionRequest struct {
	Email      string `json:"email"`
	CampaignID string `json:"campaignId,omitempty"`
	ContactID  string `json:"contactId,omitempty"`
}

// handleAddSuppression lets the operator block an address without a
// recipient unsubscribe, e.g. a spam complaint received out of band.
func (s *Server) handleAddSuppression(w http.ResponseWriter, r *http.Request) {
	var req addSuppressionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	entry, err := s.suppression.Add(r.Context(), tenant.FromContext(r.Context()), req.Email, req.CampaignID, req.ContactID)
	switch {
	case err == nil:
		httputil.Created(w, entry)
	case errors.Is(err, suppression.ErrBadAddress):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// handleRemoveSuppression re-enables an address the operator suppressed
// by mistake. Removing an address that is not suppressed is a 404.
func (s *Server) handleRemoveSuppression(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.BadRequest(w, "email query parameter is required")
		return
	}

	err := s.suppression.Remove(r.Context(), tenant.FromContext(r.Context()), email)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, suppression.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, suppression.ErrBadAddress):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
