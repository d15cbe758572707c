package campaign

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/mailer"
	"github.com/civicworks/councilmail/internal/pkg/distlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepo is an in-memory Repository for service and dispatcher tests.
type mockRepo struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	recipients map[string]*domain.CampaignRecipient
	statuses   []domain.CampaignStatus
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		campaigns:  make(map[string]*domain.Campaign),
		recipients: make(map[string]*domain.CampaignRecipient),
	}
}

func (m *mockRepo) Create(_ context.Context, c *domain.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *mockRepo) Get(_ context.Context, cid, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.CouncillorID != cid {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, cid string) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.CouncillorID == cid {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) Delete(_ context.Context, cid, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.CouncillorID != cid {
		return ErrNotFound
	}
	delete(m.campaigns, id)
	for rid, r := range m.recipients {
		if r.CampaignID == id {
			delete(m.recipients, rid)
		}
	}
	return nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, cid, id string, status domain.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.CouncillorID != cid {
		return ErrNotFound
	}
	c.Status = status
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockRepo) SetTargeting(_ context.Context, cid, id string, targeted, filtered int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.CouncillorID != cid {
		return ErrNotFound
	}
	c.TotalTargeted = targeted
	c.TotalFilteredUnsubscribed = filtered
	return nil
}

func (m *mockRepo) Finalize(_ context.Context, cid, id string, status domain.CampaignStatus, sent, failed int, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.CouncillorID != cid {
		return ErrNotFound
	}
	c.Status = status
	c.TotalSent = sent
	c.TotalFailed = failed
	c.SentAt = &sentAt
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockRepo) CreateRecipients(_ context.Context, rs []domain.CampaignRecipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range rs {
		cp := rs[i]
		m.recipients[cp.ID] = &cp
	}
	return nil
}

func (m *mockRepo) UpdateRecipient(_ context.Context, cid, recipientID string, status domain.RecipientStatus, messageID, deliveryError string, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok || r.CouncillorID != cid {
		return ErrNotFound
	}
	r.Status = status
	r.MessageID = messageID
	r.DeliveryError = deliveryError
	r.SentAt = sentAt
	return nil
}

func (m *mockRepo) Recipients(_ context.Context, cid, campaignID string) ([]domain.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CampaignRecipient
	for _, r := range m.recipients {
		if r.CouncillorID == cid && r.CampaignID == campaignID {
			out = append(out, *r)
		}
	}
	return out, nil
}

// fakeContacts serves fixed membership per list.
type fakeContacts struct {
	lists map[string][]domain.Contact
}

func (f *fakeContacts) ContactsForList(_ context.Context, _, listID string) ([]domain.Contact, error) {
	return f.lists[listID], nil
}

// fakeSuppression marks a fixed set of normalized addresses, or fails
// every check when err is set.
type fakeSuppression struct {
	suppressed map[string]bool
	err        error
}

func (f *fakeSuppression) IsSuppressed(_ context.Context, _, email string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.suppressed[email], nil
}

func testOptions() Options {
	return Options{
		BatchSize:          2,
		MaxConcurrent:      2,
		MaxRetries:         2,
		RetryBaseDelay:     time.Millisecond,
		SendBudget:         5 * time.Second,
		ProviderRatePerSec: 10000,
		TrackingBaseURL:    "https://track.example.org",
	}
}

func newTestService(repo Repository, contacts ContactSource, suppr SuppressionChecker, sender mailer.Sender) *Service {
	return NewService(repo, contacts, suppr, sender, distlock.NewFactory(nil, nil), testOptions())
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMockRepo(), &fakeContacts{}, &fakeSuppression{}, mailer.NewLogSender())

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"missing subject", CreateInput{Content: "hi", ListIDs: []string{"l1"}}},
		{"blank subject", CreateInput{Subject: "   ", Content: "hi", ListIDs: []string{"l1"}}},
		{"missing content", CreateInput{Subject: "s", ListIDs: []string{"l1"}}},
		{"no lists", CreateInput{Subject: "s", Content: "hi"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "c-1", tc.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateQueuedWithAttachmentMetadata(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeContacts{}, &fakeSuppression{}, mailer.NewLogSender())

	c, err := svc.Create(context.Background(), "c-1", CreateInput{
		Subject: "Ward update",
		Content: "<p>Hello {{ first_name }}</p>",
		ListIDs: []string{"l1", "l2"},
		Attachments: []AttachmentInput{
			{Name: "agenda.pdf", ContentType: "application/pdf", Base64: "aGVsbG8="},
			{Name: "note.txt", ContentType: "text/plain", Base64: "aA=="},
			{Name: "minutes.txt", ContentType: "text/plain", Base64: "aGVsbG8h"},
			{Name: "", ContentType: "application/pdf", Base64: "aGVsbG8="},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignQueued, c.Status)
	assert.NotEmpty(t, c.ID)

	stored, err := svc.Get(context.Background(), "c-1", c.ID)
	require.NoError(t, err)
	require.Len(t, stored.Attachments, 3)
	assert.Equal(t, "agenda.pdf", stored.Attachments[0].Name)
	assert.Equal(t, 5, stored.Attachments[0].SizeBytes, "one padding byte")
	assert.Equal(t, 1, stored.Attachments[1].SizeBytes, "two padding bytes")
	assert.Equal(t, 6, stored.Attachments[2].SizeBytes, "no padding")
}

func TestGetIsTenantScoped(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeContacts{}, &fakeSuppression{}, mailer.NewLogSender())

	c, err := svc.Create(context.Background(), "c-1", CreateInput{
		Subject: "s", Content: "b", ListIDs: []string{"l1"},
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "c-other", c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeContacts{}, &fakeSuppression{}, mailer.NewLogSender())

	c, err := svc.Create(context.Background(), "c-1", CreateInput{
		Subject: "s", Content: "b", ListIDs: []string{"l1"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "c-1", c.ID))
	require.NoError(t, svc.Delete(context.Background(), "c-1", c.ID))
	require.NoError(t, svc.Delete(context.Background(), "c-1", "never-existed"))
}

func TestDeleteBlockedWhileSending(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeContacts{}, &fakeSuppression{}, mailer.NewLogSender())

	c, err := svc.Create(context.Background(), "c-1", CreateInput{
		Subject: "s", Content: "b", ListIDs: []string{"l1"},
	})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(context.Background(), "c-1", c.ID, domain.CampaignSending))

	assert.ErrorIs(t, svc.Delete(context.Background(), "c-1", c.ID), ErrInvalidState)
}

func TestRecipientsSummary(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeContacts{}, &fakeSuppression{}, mailer.NewLogSender())

	c, err := svc.Create(context.Background(), "c-1", CreateInput{
		Subject: "s", Content: "b", ListIDs: []string{"l1"},
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, repo.CreateRecipients(context.Background(), []domain.CampaignRecipient{
		{ID: "r1", CouncillorID: "c-1", CampaignID: c.ID, ContactID: "ct1", Email: "a@example.org", Status: domain.RecipientSent, SentAt: &now},
		{ID: "r2", CouncillorID: "c-1", CampaignID: c.ID, ContactID: "ct2", Email: "b@example.org", Status: domain.RecipientFailed, DeliveryError: "bounced"},
		{ID: "r3", CouncillorID: "c-1", CampaignID: c.ID, ContactID: "ct3", Email: "c@example.org", Status: domain.RecipientPending},
	}))

	rs, sum, err := svc.Recipients(context.Background(), "c-1", c.ID)
	require.NoError(t, err)
	assert.Len(t, rs, 3)
	assert.Equal(t, RecipientSummary{Total: 3, Sent: 1, Failed: 1, Pending: 1}, sum)

	_, _, err = svc.Recipients(context.Background(), "c-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenderFallsBackOnBrokenTemplate(t *testing.T) {
	r := newRenderer()
	ct := &domain.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.org"}

	assert.Equal(t, "Hello Ada", r.render("Hello {{ first_name }}", ct))
	assert.Equal(t, "Hello {{ broken", r.render("Hello {{ broken", ct))
}

func TestBuildHTMLInjectsTracking(t *testing.T) {
	ct := &domain.Contact{ID: "ct-1", Email: "ada@example.org"}
	out := buildHTML("<p>Hi</p>", "https://track.example.org", "c-1", "camp-1", ct)

	assert.Contains(t, out, "<html><body><p>Hi</p>")
	assert.Contains(t, out, "https://track.example.org/track/pixel?councillorId=c-1&campaignId=camp-1&contactId=ct-1")
	assert.Contains(t, out, "https://track.example.org/unsubscribe?email=ada%40example.org")
	// Injection lands inside the document body.
	assert.Less(t, strings.Index(out, "/track/pixel"), strings.Index(out, "</body>"))
}

func TestPlainText(t *testing.T) {
	got := plainText("<html><body><p>Hello</p><p>Second line<br/>third</p></body></html>")
	assert.Equal(t, "Hello\n\nSecond line\nthird", got)
}
