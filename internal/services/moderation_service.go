package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

type ModerationAction string

const (
	ActionRemove  ModerationAction = "remove"
	ActionReject  ModerationAction = "reject"
	ActionRelease ModerationAction = "release"
)

// ModerationService is the admin side of the flagged queue.
type ModerationService struct {
	store      models.SubmissionStore
	businesses models.BusinessDirectory
	tokens     *TokenManager
	aggregator *RatingAggregator
	publisher  Publisher
	clock      Clock
	logger     *slog.Logger
}

func NewModerationService(
	store models.SubmissionStore,
	businesses models.BusinessDirectory,
	tokens *TokenManager,
	aggregator *RatingAggregator,
	publisher Publisher,
	clock Clock,
	logger *slog.Logger,
) *ModerationService {
	return &ModerationService{
		store:      store,
		businesses: businesses,
		tokens:     tokens,
		aggregator: aggregator,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
	}
}

func (ms *ModerationService) ListFlagged(ctx context.Context, limit int) ([]*models.Submission, error) {
	if limit <= 0 || limit > 200 {
		return nil, fmt.Errorf("%w: limit must be between 1 and 200", ErrValidation)
	}
	return ms.store.ListByState(ctx, models.StateFlagged, limit)
}

func (ms *ModerationService) Apply(ctx context.Context, submissionID string, action ModerationAction) (*models.Submission, error) {
	switch action {
	case ActionRemove:
		return ms.remove(ctx, submissionID)
	case ActionReject:
		return ms.transition(ctx, submissionID, []models.SubmissionState{models.StatePending, models.StateFlagged}, models.StateRejected)
	case ActionRelease:
		return ms.release(ctx, submissionID)
	default:
		return nil, &ValidationError{Fields: map[string]string{"action": "must be one of remove, reject, release"}}
	}
}

func (ms *ModerationService) transition(ctx context.Context, id string, from []models.SubmissionState, to models.SubmissionState) (*models.Submission, error) {
	sub, err := ms.store.UpdateState(ctx, id, from, to, ms.clock())
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, ms.explainConflict(ctx, id, to)
		}
		return nil, err
	}
	ms.logger.Info("Submission moderated", "submission_id", id, "state", to)
	return sub, nil
}

// remove takes a submission out of circulation. Removing a published review
// changes the business rating, so the aggregate is recomputed.
func (ms *ModerationService) remove(ctx context.Context, id string) (*models.Submission, error) {
	before, err := ms.store.FindSubmissionByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	sub, err := ms.transition(ctx, id, []models.SubmissionState{
		models.StatePending,
		models.StatePublished,
		models.StateFlagged,
	}, models.StateRemoved)
	if err != nil {
		return nil, err
	}

	if before.State == models.StatePublished {
		if _, _, err := ms.aggregator.Recompute(ctx, sub.BusinessID); err != nil {
			ms.logger.Error("Rating recompute after removal failed",
				"business_id", sub.BusinessID,
				"submission_id", sub.ID,
				"error", err,
			)
		}
	}
	return sub, nil
}

// release sends a flagged submission back through email verification.
func (ms *ModerationService) release(ctx context.Context, id string) (*models.Submission, error) {
	sub, token, err := ms.tokens.ReissueForRelease(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotEligibleForResend) {
			return nil, ms.explainConflict(ctx, id, models.StatePending)
		}
		return nil, err
	}

	name := ""
	if business, err := ms.businesses.GetBusiness(ctx, sub.BusinessID); err == nil {
		name = business.Name
	}
	ms.publisher.Publish(OutboundMessage{
		Kind:         KindVerificationEmail,
		Email:        sub.ReviewerEmail,
		Name:         sub.ReviewerName,
		Token:        token,
		BusinessID:   sub.BusinessID,
		BusinessName: name,
	})
	ms.logger.Info("Flagged submission released", "submission_id", id)
	return sub, nil
}

var ErrInvalidTransition = errors.New("submission cannot move to the requested state")

func (ms *ModerationService) explainConflict(ctx context.Context, id string, to models.SubmissionState) error {
	if _, err := ms.store.FindSubmissionByID(ctx, id); errors.Is(err, models.ErrNotFound) {
		return ErrSubmissionNotFound
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, to)
}
