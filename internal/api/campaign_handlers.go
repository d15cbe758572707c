package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/mailer"
	"github.com/civicworks/councilmail/internal/pkg/httputil"
	"github.com/civicworks/councilmail/internal/service/campaign"
	"github.com/civicworks/councilmail/internal/tenant"
)

// handleCreateCampaign creates the campaign and dispatches it in the
// same request, mirroring the single "send my newsletter" action the
// operator UI exposes. The response carries the terminal campaign with
// its dispatch counters filled in.
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaign.CreateInput
	if !httputil.Decode(w, r, &req) {
		return
	}
	councillorID := tenant.FromContext(r.Context())

	c, err := s.campaigns.Create(r.Context(), councillorID, req)
	if err != nil {
		writeCampaignError(w, err)
		return
	}

	attachments := make([]mailer.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		if a.Name == "" || a.ContentType == "" || a.Base64 == "" {
			continue
		}
		attachments = append(attachments, mailer.Attachment{
			Name:        a.Name,
			ContentType: a.ContentType,
			Base64:      a.Base64,
		})
	}

	sent, err := s.campaigns.Send(r.Context(), councillorID, c.ID, attachments)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.Created(w, sent)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	cs, err := s.campaigns.List(r.Context(), tenant.FromContext(r.Context()))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if cs == nil {
		cs = []domain.Campaign{}
	}
	httputil.OK(w, cs)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.campaigns.Get(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	err := s.campaigns.Delete(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCampaignMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.engagement.Metrics(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	httputil.OK(w, m)
}

type recipientsResponse struct {
	Recipients []domain.CampaignRecipient `json:"recipients"`
	Summary    campaign.RecipientSummary  `json:"summary"`
}

func (s *Server) handleCampaignRecipients(w http.ResponseWriter, r *http.Request) {
	rs, sum, err := s.campaigns.Recipients(r.Context(), tenant.FromContext(r.Context()), chi.URLParam(r, "campaignID"))
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	if rs == nil {
		rs = []domain.CampaignRecipient{}
	}
	httputil.OK(w, recipientsResponse{Recipients: rs, Summary: sum})
}

func writeCampaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrValidation):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, campaign.ErrInvalidState):
		httputil.ErrorCode(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, campaign.ErrSendInProgress):
		httputil.ErrorCode(w, http.StatusConflict, "send_in_progress", err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
