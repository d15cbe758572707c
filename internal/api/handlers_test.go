package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/mailer"
	"github.com/civicworks/councilmail/internal/pkg/distlock"
	"github.com/civicworks/councilmail/internal/repository/memory"
	"github.com/civicworks/councilmail/internal/service/campaign"
	"github.com/civicworks/councilmail/internal/service/contacts"
	"github.com/civicworks/councilmail/internal/service/engagement"
	"github.com/civicworks/councilmail/internal/service/suppression"
	"github.com/civicworks/councilmail/internal/tenant"
	"github.com/civicworks/councilmail/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router     http.Handler
	sender     *mailer.LogSender
	engagement *engagement.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	contactRepo := memory.NewContactRepo()
	campaignRepo := memory.NewCampaignRepo()
	suppressionRepo := memory.NewSuppressionRepo()
	engagementRepo := memory.NewEngagementRepo()

	sender := mailer.NewLogSender()
	contactsSvc := contacts.NewService(contactRepo)
	suppressionSvc := suppression.NewService(suppressionRepo)
	campaignSvc := campaign.NewService(campaignRepo, contactRepo, suppressionSvc, sender,
		distlock.NewFactory(nil, nil), campaign.Options{
			BatchSize:          10,
			MaxConcurrent:      2,
			MaxRetries:         1,
			RetryBaseDelay:     time.Millisecond,
			SendBudget:         5 * time.Second,
			ProviderRatePerSec: 10000,
			TrackingBaseURL:    "https://track.example.org",
		})
	engagementSvc := engagement.NewService(engagementRepo, campaignRepo, suppressionSvc, 100*time.Millisecond)
	resolver := tenant.NewResolver("X-Councillor-ID", "councillorId", "public")

	trackingHandler := tracking.NewHandler(engagementSvc, resolver)

	srv := NewServer(contactsSvc, campaignSvc, suppressionSvc, engagementSvc, trackingHandler, resolver, nil)
	return &testEnv{router: srv.Router(), sender: sender, engagement: engagementSvc}
}

func (e *testEnv) do(t *testing.T, method, path, councillorID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if councillorID != "" {
		req.Header.Set("X-Councillor-ID", councillorID)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func createList(t *testing.T, env *testEnv, councillorID, name string) domain.DistributionList {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/lists", councillorID, map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[domain.DistributionList](t, rr)
}

func addContact(t *testing.T, env *testEnv, councillorID, listID, email, first, last string) domain.Contact {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/lists/"+listID+"/contacts", councillorID,
		map[string]string{"email": email, "firstName": first, "lastName": last})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[domain.Contact](t, rr)
}

func TestListLifecycle(t *testing.T) {
	env := newTestEnv(t)

	l := createList(t, env, "cllr-smith", "Ward 3 residents")
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, "cllr-smith", l.CouncillorID)

	addContact(t, env, "cllr-smith", l.ID, "ada@example.org", "Ada", "Lovelace")
	addContact(t, env, "cllr-smith", l.ID, "ben@example.org", "Ben", "Okri")

	// Same address again, different casing: conflict.
	rr := env.do(t, http.MethodPost, "/api/lists/"+l.ID+"/contacts", "cllr-smith",
		map[string]string{"email": "ADA@example.org", "firstName": "Ada", "lastName": "L"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/lists/"+l.ID, "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[domain.DistributionList](t, rr)
	assert.Equal(t, 2, got.ContactCount)

	// Another councillor sees nothing of it.
	rr = env.do(t, http.MethodGet, "/api/lists/"+l.ID, "cllr-jones", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/lists", "cllr-jones", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]domain.DistributionList](t, rr))

	rr = env.do(t, http.MethodDelete, "/api/lists/"+l.ID, "cllr-smith", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	// Idempotent.
	rr = env.do(t, http.MethodDelete, "/api/lists/"+l.ID, "cllr-smith", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestListValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/lists", "cllr-smith", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	l := createList(t, env, "cllr-smith", "Ward 3")
	rr = env.do(t, http.MethodPost, "/api/lists/"+l.ID+"/contacts", "cllr-smith",
		map[string]string{"email": "not-an-email", "firstName": "A", "lastName": "B"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/lists/missing/contacts", "cllr-smith",
		map[string]string{"email": "a@example.org", "firstName": "A", "lastName": "B"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestContactPaging(t *testing.T) {
	env := newTestEnv(t)
	l := createList(t, env, "cllr-smith", "Ward 3")
	addContact(t, env, "cllr-smith", l.ID, "cam@example.org", "Cam", "Zed")
	addContact(t, env, "cllr-smith", l.ID, "ada@example.org", "Ada", "Young")
	addContact(t, env, "cllr-smith", l.ID, "ben@example.org", "Ben", "Xu")

	rr := env.do(t, http.MethodGet,
		"/api/lists/"+l.ID+"/contacts?sort=email&page=1&pageSize=2", "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	p := decode[contacts.ContactPage](t, rr)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 2, p.TotalPages)
	require.Len(t, p.Contacts, 2)
	assert.Equal(t, "ada@example.org", p.Contacts[0].Email)
	assert.Equal(t, "ben@example.org", p.Contacts[1].Email)

	rr = env.do(t, http.MethodGet,
		"/api/lists/"+l.ID+"/contacts?page=zero", "cllr-smith", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImportCSV(t *testing.T) {
	env := newTestEnv(t)
	l := createList(t, env, "cllr-smith", "Ward 3")
	addContact(t, env, "cllr-smith", l.ID, "existing@example.org", "Eve", "Adams")

	csv := "email,firstname,lastname\n" +
		"ada@example.org,Ada,Lovelace\n" +
		"existing@example.org,Eve,Adams\n" +
		"bad-row,,\n"
	req := httptest.NewRequest(http.MethodPost, "/api/lists/"+l.ID+"/contacts/import",
		strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-Councillor-ID", "cllr-smith")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[contacts.ImportResult](t, rr)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.SkippedDuplicates)
	assert.Equal(t, 1, res.SkippedInvalid)
}

func TestCampaignSendFlow(t *testing.T) {
	env := newTestEnv(t)
	l := createList(t, env, "cllr-smith", "Ward 3")
	addContact(t, env, "cllr-smith", l.ID, "ada@example.org", "Ada", "Lovelace")
	addContact(t, env, "cllr-smith", l.ID, "ben@example.org", "Ben", "Okri")
	unsub := addContact(t, env, "cllr-smith", l.ID, "cam@example.org", "Cam", "Zed")

	// Cam opted out before this campaign.
	require.NoError(t, env.engagement.RecordUnsubscribe(
		context.Background(),
		"cllr-smith", unsub.Email, "earlier-campaign", unsub.ID))

	rr := env.do(t, http.MethodPost, "/api/campaigns", "cllr-smith", map[string]any{
		"subject": "Hello {{ first_name }}",
		"content": "<p>News for {{ first_name }}</p>",
		"listIds": []string{l.ID},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decode[domain.Campaign](t, rr)

	assert.Equal(t, domain.CampaignSent, c.Status)
	assert.Equal(t, 2, c.TotalTargeted)
	assert.Equal(t, 2, c.TotalSent)
	assert.Equal(t, 0, c.TotalFailed)
	assert.Equal(t, 1, c.TotalFilteredUnsubscribed)
	require.NotNil(t, c.SentAt)
	assert.Len(t, env.sender.Sent(), 2)

	rr = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/recipients", "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	recipients := decode[recipientsResponse](t, rr)
	assert.Equal(t, 2, recipients.Summary.Sent)
	assert.Zero(t, recipients.Summary.Pending)

	// Re-sending a terminal campaign is rejected.
	rr = env.do(t, http.MethodDelete, "/api/campaigns/"+c.ID, "cllr-smith", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCampaignMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	l := createList(t, env, "cllr-smith", "Ward 3")
	ada := addContact(t, env, "cllr-smith", l.ID, "ada@example.org", "Ada", "Lovelace")
	addContact(t, env, "cllr-smith", l.ID, "ben@example.org", "Ben", "Okri")

	rr := env.do(t, http.MethodPost, "/api/campaigns", "cllr-smith", map[string]any{
		"subject": "s", "content": "<p>b</p>", "listIds": []string{l.ID},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	c := decode[domain.Campaign](t, rr)

	ctx := context.Background()
	env.engagement.RecordOpen(ctx, "cllr-smith", c.ID, ada.ID, "")
	env.engagement.RecordOpen(ctx, "cllr-smith", c.ID, ada.ID, "")

	rr = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/metrics", "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	m := decode[domain.CampaignMetrics](t, rr)
	assert.Equal(t, 2, m.TotalSent)
	assert.Equal(t, 2, m.TotalOpens)
	assert.Equal(t, 1, m.UniqueOpens)
	assert.InDelta(t, 100.0, m.OpenRate, 0.001)

	rr = env.do(t, http.MethodGet, "/api/campaigns/missing/metrics", "cllr-smith", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCampaignValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/campaigns", "cllr-smith", map[string]any{
		"subject": "", "content": "b", "listIds": []string{"l1"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/campaigns/nope", "cllr-smith", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSuppressionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.engagement.RecordUnsubscribe(ctx, "cllr-smith", "ada@example.org", "camp-1", "ct-1"))

	rr := env.do(t, http.MethodGet, "/api/suppressions", "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	entries := decode[[]domain.Suppression](t, rr)
	require.Len(t, entries, 1)
	assert.Equal(t, "ada@example.org", entries[0].Email)

	rr = env.do(t, http.MethodDelete, "/api/suppressions?email=ada%40example.org", "cllr-smith", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodDelete, "/api/suppressions?email=ada%40example.org", "cllr-smith", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(t, http.MethodDelete, "/api/suppressions", "cllr-smith", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOperatorAddsSuppression(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/suppressions", "cllr-smith",
		map[string]string{"email": "Complainer@Example.org"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	entry := decode[domain.Suppression](t, rr)
	assert.Equal(t, "complainer@example.org", entry.Email)

	// Idempotent: posting again returns the existing entry.
	rr = env.do(t, http.MethodPost, "/api/suppressions", "cllr-smith",
		map[string]string{"email": "complainer@example.org"})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, entry.ID, decode[domain.Suppression](t, rr).ID)

	rr = env.do(t, http.MethodPost, "/api/suppressions", "cllr-smith",
		map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/suppressions", "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.Suppression](t, rr), 1)
}

func TestTrackingRoutesServedByAPIServer(t *testing.T) {
	env := newTestEnv(t)
	l := createList(t, env, "cllr-smith", "Ward 3")
	ada := addContact(t, env, "cllr-smith", l.ID, "ada@example.org", "Ada", "Lovelace")

	rr := env.do(t, http.MethodPost, "/api/campaigns", "cllr-smith", map[string]any{
		"subject": "s", "content": "<p>b</p>", "listIds": []string{l.ID},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	c := decode[domain.Campaign](t, rr)

	// The pixel hit and the metrics read go through the same router and
	// the same store, so the open is visible without a second binary.
	rr = env.do(t, http.MethodGet,
		"/track/pixel?campaignId="+c.ID+"&contactId="+ada.ID, "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/gif", rr.Header().Get("Content-Type"))

	rr = env.do(t, http.MethodGet, "/api/campaigns/"+c.ID+"/metrics", "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	m := decode[domain.CampaignMetrics](t, rr)
	assert.Equal(t, 1, m.TotalOpens)
	assert.Equal(t, 1, m.UniqueOpens)

	rr = env.do(t, http.MethodGet, "/unsubscribe?email=ada%40example.org&campaignId="+c.ID, "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "unsubscribed")

	rr = env.do(t, http.MethodGet, "/api/suppressions", "cllr-smith", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	entries := decode[[]domain.Suppression](t, rr)
	require.Len(t, entries, 1)
	assert.Equal(t, "ada@example.org", entries[0].Email)
}

func TestTenantFallbackApplies(t *testing.T) {
	env := newTestEnv(t)
	createList(t, env, "", "Unattributed") // no header: resolver falls back

	rr := env.do(t, http.MethodGet, "/api/lists", "public", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]domain.DistributionList](t, rr), 1)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "councilmail_")

	rr = env.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "POST /api/campaigns")
}
