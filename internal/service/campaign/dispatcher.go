package campaign

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/civicworks/councilmail/internal/domain"
	"github.com/civicworks/councilmail/internal/mailer"
	"github.com/civicworks/councilmail/internal/pkg/logger"
	"github.com/civicworks/councilmail/internal/pkg/metrics"
	"github.com/civicworks/councilmail/internal/service/contacts"
	"github.com/google/uuid"
)

// Send dispatches a queued (or draft) campaign. It resolves the
// recipient set, filters suppressed addresses, fans out in fixed-size
// batches under the concurrency limit, and persists per-recipient
// outcomes and final counters. Send is synchronous: it returns the
// campaign in its terminal state.
//
// Attachment payloads are not persisted with the campaign, so the
// caller hands them in for the dispatch that follows creation.
//
// Cancelling ctx aborts the fan-out: recipients already sent keep their
// outcome, the remainder are counted failed, and the campaign is marked
// failed. No attempt is made to undo delivered mail.
func (s *Service) Send(ctx context.Context, councillorID, campaignID string, attachments []mailer.Attachment) (*domain.Campaign, error) {
	c, err := s.repo.Get(ctx, councillorID, campaignID)
	if err != nil {
		return nil, err
	}
	if !c.Sendable() {
		return nil, ErrInvalidState
	}

	lock := s.locks.For("campaign-send:"+campaignID, s.opts.SendBudget+time.Minute)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSendInProgress
	}
	defer func() {
		// Bookkeeping context: the lock must be released even when the
		// dispatch context was cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			logger.Warn("send lock release failed", "campaign_id", campaignID, "err", err)
		}
	}()

	started := time.Now()
	recipients, filtered, err := s.resolveRecipients(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetTargeting(ctx, councillorID, campaignID, len(recipients), filtered); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, councillorID, campaignID, domain.CampaignSending); err != nil {
		return nil, err
	}

	// Nothing left after filtering is a successful, empty send.
	if len(recipients) == 0 {
		now := time.Now().UTC()
		if err := s.repo.Finalize(ctx, councillorID, campaignID, domain.CampaignSent, 0, 0, now); err != nil {
			return nil, err
		}
		metrics.CampaignsDispatched.WithLabelValues(string(domain.CampaignSent)).Inc()
		logger.Info("campaign dispatched to empty recipient set", "campaign_id", campaignID)
		return s.repo.Get(ctx, councillorID, campaignID)
	}

	rows := make([]domain.CampaignRecipient, len(recipients))
	for i, ct := range recipients {
		rows[i] = domain.CampaignRecipient{
			ID:           uuid.New().String(),
			CouncillorID: councillorID,
			CampaignID:   campaignID,
			ContactID:    ct.ID,
			Email:        ct.Email,
			Status:       domain.RecipientPending,
		}
	}
	if err := s.repo.CreateRecipients(ctx, rows); err != nil {
		return nil, err
	}

	sent, failed := s.fanOut(ctx, c, recipients, rows, attachments)

	status := domain.CampaignSent
	if ctx.Err() != nil {
		// Operator abort or budget overrun at the outer context.
		status = domain.CampaignFailed
	} else if sent == 0 {
		status = domain.CampaignFailed
	}

	finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now().UTC()
	if err := s.repo.Finalize(finCtx, councillorID, campaignID, status, sent, failed, now); err != nil {
		return nil, err
	}

	metrics.CampaignsDispatched.WithLabelValues(string(status)).Inc()
	metrics.DispatchDuration.Observe(time.Since(started).Seconds())
	logger.Info("campaign dispatched",
		"campaign_id", campaignID,
		"status", string(status),
		"sent", sent,
		"failed", failed,
		"filtered", filtered)

	return s.repo.Get(finCtx, councillorID, campaignID)
}

// resolveRecipients unions the campaign's lists, dedupes by normalized
// email (first occurrence wins), and drops suppressed addresses. A
// suppression store error counts the recipient as suppressed: when in
// doubt, don't send.
func (s *Service) resolveRecipients(ctx context.Context, c *domain.Campaign) ([]domain.Contact, int, error) {
	seen := make(map[string]bool)
	var union []domain.Contact
	for _, listID := range c.ListIDs {
		cs, err := s.contacts.ContactsForList(ctx, c.CouncillorID, listID)
		if err != nil {
			return nil, 0, err
		}
		for _, ct := range cs {
			norm := contacts.NormalizeEmail(ct.Email)
			if seen[norm] {
				continue
			}
			seen[norm] = true
			union = append(union, ct)
		}
	}

	var kept []domain.Contact
	filtered := 0
	for _, ct := range union {
		suppressed, err := s.suppr.IsSuppressed(ctx, c.CouncillorID, ct.Email)
		if err != nil {
			logger.Warn("suppression check failed, treating as suppressed",
				"email", ct.Email, "err", err)
			suppressed = true
		}
		if suppressed {
			filtered++
			continue
		}
		kept = append(kept, ct)
	}
	return kept, filtered, nil
}

// fanOut sends to every recipient in fixed-size batches, at most
// MaxConcurrent batches in flight, and returns the sent/failed counts.
// Recipients that never got an attempt (budget or cancellation) are
// recorded as failed so the counters always sum to the targeted total.
func (s *Service) fanOut(ctx context.Context, c *domain.Campaign, recipients []domain.Contact, rows []domain.CampaignRecipient, attachments []mailer.Attachment) (int, int) {
	dispatchCtx, cancel := context.WithTimeout(ctx, s.opts.SendBudget)
	defer cancel()

	var sent, failed atomic.Int64
	sem := make(chan struct{}, s.opts.MaxConcurrent)
	var wg sync.WaitGroup

	for start := 0; start < len(recipients); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batchContacts := recipients[start:end]
		batchRows := rows[start:end]

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			for i := range batchContacts {
				if s.sendOne(dispatchCtx, c, &batchContacts[i], &batchRows[i], attachments) {
					sent.Add(1)
				} else {
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	return int(sent.Load()), int(failed.Load())
}

// sendOne personalizes, sends with retry, and records the outcome for a
// single recipient. Returns true on success. A recipient that exhausts
// its retries is a final failure; it never aborts the batch.
func (s *Service) sendOne(ctx context.Context, c *domain.Campaign, ct *domain.Contact, row *domain.CampaignRecipient, attachments []mailer.Attachment) bool {
	recordCtx, cancelRecord := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelRecord()

	if err := ctx.Err(); err != nil {
		s.recordOutcome(recordCtx, row, domain.RecipientFailed, "", "send aborted: "+err.Error(), nil)
		return false
	}

	body := buildHTML(s.renderer.render(c.Content, ct), s.opts.TrackingBaseURL, c.CouncillorID, c.ID, ct)
	msg := &mailer.Message{
		To:          ct.Email,
		Subject:     s.renderer.render(c.Subject, ct),
		HTMLBody:    body,
		TextBody:    plainText(body),
		CampaignID:  c.ID,
		ContactID:   ct.ID,
		Attachments: attachments,
	}

	messageID, err := s.sendWithRetry(ctx, msg)
	if err != nil {
		s.recordOutcome(recordCtx, row, domain.RecipientFailed, "", err.Error(), nil)
		metrics.EmailsSent.WithLabelValues("failed").Inc()
		logger.Warn("recipient send failed", "email", ct.Email, "campaign_id", c.ID, "err", err)
		return false
	}

	now := time.Now().UTC()
	s.recordOutcome(recordCtx, row, domain.RecipientSent, messageID, "", &now)
	metrics.EmailsSent.WithLabelValues("sent").Inc()
	return true
}

func (s *Service) recordOutcome(ctx context.Context, row *domain.CampaignRecipient, status domain.RecipientStatus, messageID, deliveryError string, sentAt *time.Time) {
	err := s.repo.UpdateRecipient(ctx, row.CouncillorID, row.ID, status, messageID, deliveryError, sentAt)
	if err != nil {
		logger.Error("recipient outcome write failed", "recipient_id", row.ID, "err", err)
	}
}

// sendWithRetry attempts a provider send up to 1+MaxRetries times with
// exponential backoff and jitter, honoring the provider rate limit
// before each attempt.
func (s *Service) sendWithRetry(ctx context.Context, msg *mailer.Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.opts.RetryBaseDelay << (attempt - 1)
			delay += time.Duration(rand.Int63n(int64(s.opts.RetryBaseDelay)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", errors.Join(ctx.Err(), lastErr)
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return "", errors.Join(err, lastErr)
		}

		messageID, err := s.sender.Send(ctx, msg)
		if err == nil {
			return messageID, nil
		}
		lastErr = err
	}
	return "", lastErr
}
