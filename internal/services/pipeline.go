package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/joshua-takyi/reviewtrust/internal/models"
)

// SubmitRequest is an anonymous review as received from the web layer.
type SubmitRequest struct {
	BusinessID        string   `json:"business_id" validate:"required,max=64"`
	Rating            int      `json:"rating" validate:"required,min=1,max=5"`
	Title             string   `json:"title" validate:"max=150"`
	Body              string   `json:"body" validate:"required,max=10000"`
	ReviewerName      string   `json:"reviewer_name" validate:"required,max=80"`
	ReviewerEmail     string   `json:"reviewer_email" validate:"required,email,max=254"`
	Media             []string `json:"media" validate:"max=10,dive,url"`
	IP                string   `json:"-" validate:"required"`
	UserAgent         string   `json:"-"`
	DeviceFingerprint string   `json:"-"`
}

func (r *SubmitRequest) normalize() {
	r.BusinessID = strings.TrimSpace(r.BusinessID)
	r.Title = strings.TrimSpace(r.Title)
	r.Body = strings.TrimSpace(r.Body)
	r.ReviewerName = strings.TrimSpace(r.ReviewerName)
	r.ReviewerEmail = strings.ToLower(strings.TrimSpace(r.ReviewerEmail))
}

type SubmitResult struct {
	SubmissionID         string                 `json:"submission_id"`
	VerificationRequired bool                   `json:"verification_required"`
	State                models.SubmissionState `json:"state"`
}

type VerifyResult struct {
	SubmissionID string `json:"submission_id"`
	BusinessID   string `json:"business_id"`
	ReviewerName string `json:"reviewer_name"`
}

type ResendResult struct {
	// Email is masked: first character of the local part, then ***.
	Email string `json:"email"`
}

type PipelineConfig struct {
	LockTTL  time.Duration
	LockWait time.Duration
}

// ReviewPipeline sequences the trust components for the submit and verify
// entry points.
type ReviewPipeline struct {
	cfg        PipelineConfig
	store      models.SubmissionStore
	businesses models.BusinessDirectory
	guard      *DuplicateGuard
	scorer     *SpamScorer
	tokens     *TokenManager
	aggregator *RatingAggregator
	alerts     *AlertDispatcher
	publisher  Publisher
	locker     Locker
	clock      Clock
	logger     *slog.Logger
}

func NewReviewPipeline(
	cfg PipelineConfig,
	store models.SubmissionStore,
	businesses models.BusinessDirectory,
	guard *DuplicateGuard,
	scorer *SpamScorer,
	tokens *TokenManager,
	aggregator *RatingAggregator,
	alerts *AlertDispatcher,
	publisher Publisher,
	locker Locker,
	clock Clock,
	logger *slog.Logger,
) *ReviewPipeline {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 2 * time.Second
	}
	return &ReviewPipeline{
		cfg:        cfg,
		store:      store,
		businesses: businesses,
		guard:      guard,
		scorer:     scorer,
		tokens:     tokens,
		aggregator: aggregator,
		alerts:     alerts,
		publisher:  publisher,
		locker:     locker,
		clock:      clock,
		logger:     logger,
	}
}

// Submit accepts an anonymous review. Duplicate and rate-limit rejections
// happen before anything is written.
func (p *ReviewPipeline) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	req.normalize()
	if err := models.Validate.Struct(req); err != nil {
		return nil, newValidationError(err)
	}

	business, err := p.lookupBusiness(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}

	fp := helpers.BuildFingerprint(req.ReviewerEmail, req.IP, req.UserAgent, req.DeviceFingerprint)

	releaseIP, err := AcquireLock(ctx, p.locker, "submit:ip:"+fp.IP, p.cfg.LockTTL, p.cfg.LockWait, 50*time.Millisecond)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, ErrBusy
		}
		return nil, err
	}
	defer releaseIP()

	releaseEmail, err := p.locker.TryLock(ctx, "submit:email:"+business.ID+":"+fp.Email, p.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, ErrDuplicateSubmission
		}
		return nil, err
	}
	defer releaseEmail()

	activity, err := p.guard.Check(ctx, business.ID, fp)
	if err != nil {
		return nil, err
	}

	now := p.clock()
	sub := &models.Submission{
		ID:            uuid.NewString(),
		BusinessID:    business.ID,
		Rating:        req.Rating,
		Title:         req.Title,
		Body:          req.Body,
		Media:         req.Media,
		ReviewerName:  req.ReviewerName,
		ReviewerEmail: fp.Email,
		SourceIP:      fp.IP,
		DeviceKey:     fp.DeviceKey,
		UserAgent:     fp.UserAgent,
		AttemptCount:  activity.AttemptCount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	sub.Sanitize()

	spam := p.scorer.Score(sub, activity)
	sub.Spam = spam.Assessment()

	var token string
	if spam.IsSpam {
		sub.State = models.StateFlagged
	} else {
		sub.State = models.StatePending
		if token, err = p.tokens.Issue(sub); err != nil {
			return nil, err
		}
	}

	if err := p.store.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("saving submission: %w", err)
	}

	p.logger.Info("Anonymous review submitted",
		"submission_id", sub.ID,
		"business_id", sub.BusinessID,
		"state", sub.State,
		"spam_score", spam.Score,
		"spam_reasons", spam.Reasons,
	)

	if !spam.IsSpam {
		p.publisher.Publish(OutboundMessage{
			Kind:         KindVerificationEmail,
			Email:        sub.ReviewerEmail,
			Name:         sub.ReviewerName,
			Token:        token,
			BusinessID:   business.ID,
			BusinessName: business.Name,
		})
	}

	return &SubmitResult{
		SubmissionID:         sub.ID,
		VerificationRequired: !spam.IsSpam,
		State:                sub.State,
	}, nil
}

// Verify redeems a token, publishes the submission and reacts to the new
// rating. Once the redemption is committed nothing below can undo it.
func (p *ReviewPipeline) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	sub, err := p.tokens.Redeem(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		SubmissionID: sub.ID,
		BusinessID:   sub.BusinessID,
		ReviewerName: sub.ReviewerName,
	}

	business, err := p.businesses.GetBusiness(ctx, sub.BusinessID)
	if err != nil {
		p.logger.Error("Business lookup failed after publish",
			"business_id", sub.BusinessID,
			"submission_id", sub.ID,
			"error", err,
		)
		business = &models.Business{ID: sub.BusinessID}
	}

	p.publisher.Publish(OutboundMessage{
		Kind:         KindPublishedConfirmation,
		Email:        sub.ReviewerEmail,
		Name:         sub.ReviewerName,
		BusinessID:   sub.BusinessID,
		BusinessName: business.Name,
	})

	prior, current, err := p.aggregator.Recompute(ctx, sub.BusinessID)
	if err != nil {
		p.logger.Error("Rating recompute failed",
			"business_id", sub.BusinessID,
			"submission_id", sub.ID,
			"error", err,
		)
		return result, nil
	}

	p.publisher.Publish(OutboundMessage{
		Kind:       KindNewReviewPush,
		BusinessID: sub.BusinessID,
		Review: &models.ReviewNotification{
			BusinessID: sub.BusinessID,
			Average:    current.Average,
			Count:      current.Count,
			Submission: sub.Summary(snippetLength),
			At:         p.clock(),
		},
	})

	p.alerts.Evaluate(business, prior, current, sub)

	p.logger.Info("Review verified and published",
		"submission_id", sub.ID,
		"business_id", sub.BusinessID,
		"average", current.Average,
		"count", current.Count,
	)
	return result, nil
}

// ResendVerification issues a new token and sends it again. The old link dies.
func (p *ReviewPipeline) ResendVerification(ctx context.Context, submissionID string) (*ResendResult, error) {
	sub, token, err := p.tokens.Reissue(ctx, strings.TrimSpace(submissionID))
	if err != nil {
		return nil, err
	}

	name := ""
	if business, err := p.businesses.GetBusiness(ctx, sub.BusinessID); err == nil {
		name = business.Name
	} else {
		p.logger.Warn("Business lookup failed during resend", "business_id", sub.BusinessID, "error", err)
	}

	p.publisher.Publish(OutboundMessage{
		Kind:         KindVerificationEmail,
		Email:        sub.ReviewerEmail,
		Name:         sub.ReviewerName,
		Token:        token,
		BusinessID:   sub.BusinessID,
		BusinessName: name,
	})

	p.logger.Info("Verification email reissued", "submission_id", sub.ID)
	return &ResendResult{Email: maskEmail(sub.ReviewerEmail)}, nil
}

func (p *ReviewPipeline) Rating(ctx context.Context, businessID string) (*models.BusinessRatingSnapshot, error) {
	business, err := p.lookupBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return p.aggregator.Snapshot(ctx, business.ID)
}

func (p *ReviewPipeline) lookupBusiness(ctx context.Context, id string) (*models.Business, error) {
	business, err := p.businesses.GetBusiness(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}
	return business, nil
}

// maskEmail keeps the first character of the local part: j***@example.com.
func maskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return email
	}
	return local[:1] + "***@" + domain
}
