package tracking

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/service/engagement"
	"github.com/civicworks/councilmail/internal/service/suppression"
	"github.com/civicworks/councilmail/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	mu        sync.Mutex
	events    []domain.EngagementEvent
	appendErr error
}

func (f *fakeEvents) Append(_ context.Context, e *domain.EngagementEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeEvents) EventsForCampaign(_ context.Context, cid, campaignID string) ([]domain.EngagementEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EngagementEvent
	for _, e := range f.events {
		if e.CouncillorID == cid && e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCampaigns struct{}

func (fakeCampaigns) Get(_ context.Context, _, _ string) (*domain.Campaign, error) {
	return nil, errors.New("not found")
}

// fakeSuppression mimics the validation behavior of the real service.
type fakeSuppression struct {
	mu     sync.Mutex
	added  []string
	addErr error
}

func (f *fakeSuppression) Add(_ context.Context, cid, email, _, _ string) (*domain.Suppression, error) {
	if !strings.Contains(email, "@") {
		return nil, suppression.ErrBadAddress
	}
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, cid+":"+email)
	return &domain.Suppression{CouncillorID: cid, Email: email}, nil
}

func newTestHandler(events *fakeEvents, suppr *fakeSuppression) http.Handler {
	eng := engagement.NewService(events, fakeCampaigns{}, suppr, 100*time.Millisecond)
	resolver := tenant.NewResolver("X-Councillor-ID", "councillorId", "public")
	return NewHandler(eng, resolver).Routes()
}

func TestPixelRecordsOpenAndServesGIF(t *testing.T) {
	events := &fakeEvents{}
	h := newTestHandler(events, &fakeSuppression{})

	req := httptest.NewRequest(http.MethodGet,
		"/track/pixel?councillorId=c-1&campaignId=camp-1&contactId=ct-1", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/gif", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
	assert.True(t, bytes.Equal(pixelGIF, rr.Body.Bytes()))

	require.Len(t, events.events, 1)
	e := events.events[0]
	assert.Equal(t, "c-1", e.CouncillorID)
	assert.Equal(t, "camp-1", e.CampaignID)
	assert.Equal(t, "ct-1", e.ContactID)
	assert.Equal(t, "Mozilla/5.0", e.UserAgent)
}

func TestPixelAlwaysServedOnBadLink(t *testing.T) {
	events := &fakeEvents{}
	h := newTestHandler(events, &fakeSuppression{})

	// Missing identifiers: nothing recorded, pixel still served.
	req := httptest.NewRequest(http.MethodGet, "/track/pixel", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.Equal(pixelGIF, rr.Body.Bytes()))
	assert.Empty(t, events.events)
}

func TestPixelServedWhenStoreFails(t *testing.T) {
	events := &fakeEvents{appendErr: errors.New("store down")}
	h := newTestHandler(events, &fakeSuppression{})

	req := httptest.NewRequest(http.MethodGet,
		"/track/pixel?councillorId=c-1&campaignId=camp-1&contactId=ct-1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, bytes.Equal(pixelGIF, rr.Body.Bytes()))
}

func TestUnsubscribeConfirms(t *testing.T) {
	events := &fakeEvents{}
	suppr := &fakeSuppression{}
	h := newTestHandler(events, suppr)

	req := httptest.NewRequest(http.MethodGet,
		"/unsubscribe?email=ada%40example.org&councillorId=c-1&campaignId=camp-1&contactId=ct-1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "unsubscribed")
	assert.Equal(t, []string{"c-1:ada@example.org"}, suppr.added)
	require.Len(t, events.events, 1)
	assert.Equal(t, domain.EventUnsubscribe, events.events[0].Type)
}

func TestUnsubscribePostForm(t *testing.T) {
	suppr := &fakeSuppression{}
	h := newTestHandler(&fakeEvents{}, suppr)

	form := url.Values{"email": {"ada@example.org"}}
	req := httptest.NewRequest(http.MethodPost,
		"/unsubscribe?councillorId=c-1&campaignId=camp-1&contactId=ct-1",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"c-1:ada@example.org"}, suppr.added)
}

func TestUnsubscribeMissingEmailHasNoSideEffect(t *testing.T) {
	events := &fakeEvents{}
	suppr := &fakeSuppression{}
	h := newTestHandler(events, suppr)

	req := httptest.NewRequest(http.MethodGet,
		"/unsubscribe?councillorId=c-1&campaignId=camp-1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid unsubscribe link")
	assert.Empty(t, suppr.added)
	assert.Empty(t, events.events)
}

func TestUnsubscribeStoreFailureAsksForRetry(t *testing.T) {
	suppr := &fakeSuppression{addErr: errors.New("write timeout")}
	h := newTestHandler(&fakeEvents{}, suppr)

	req := httptest.NewRequest(http.MethodGet,
		"/unsubscribe?email=ada%40example.org&councillorId=c-1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "try the link again")
	assert.Empty(t, suppr.added)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeEvents{}, &fakeSuppression{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
