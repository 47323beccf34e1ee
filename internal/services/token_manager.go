package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

const tokenBytes = 32

// TokenManager issues and redeems the single-use email verification tokens.
type TokenManager struct {
	store  models.SubmissionStore
	ttl    time.Duration
	clock  Clock
	logger *slog.Logger
}

func NewTokenManager(store models.SubmissionStore, ttl time.Duration, clock Clock, logger *slog.Logger) *TokenManager {
	return &TokenManager{
		store:  store,
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating verification token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue stamps a fresh token on a submission that has not been stored yet.
// Any token already on the value is replaced.
func (tm *TokenManager) Issue(s *models.Submission) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	expires := tm.clock().Add(tm.ttl)
	s.Verification.Token = token
	s.Verification.ExpiresAt = &expires
	s.Verification.Verified = false
	s.Verification.VerifiedAt = nil
	return token, nil
}

// Redeem consumes a token. Unknown, expired, already used and flagged tokens
// all fail the same way and leave the store untouched.
func (tm *TokenManager) Redeem(ctx context.Context, token string) (*models.Submission, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	now := tm.clock()
	sub, err := tm.store.RedeemToken(ctx, token, now)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, models.ErrConflict) {
		return nil, err
	}

	// Lookup only to explain the failure in the logs.
	if existing, lookupErr := tm.store.FindSubmissionByToken(ctx, token); lookupErr == nil {
		tm.logger.Info("Verification token rejected",
			"submission_id", existing.ID,
			"state", existing.State,
			"expired", !existing.HasLiveToken(now),
		)
	} else {
		tm.logger.Debug("Unknown verification token presented")
	}
	return nil, ErrInvalidOrExpiredToken
}

// Reissue replaces the token of a submission still waiting for verification.
// The previous token stops working immediately.
func (tm *TokenManager) Reissue(ctx context.Context, submissionID string) (*models.Submission, string, error) {
	sub, err := tm.store.FindSubmissionByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, "", ErrSubmissionNotFound
		}
		return nil, "", err
	}
	if sub.State != models.StatePending || sub.Verification.Verified || sub.Spam.IsSpam {
		return nil, "", ErrNotEligibleForResend
	}

	token, err := generateToken()
	if err != nil {
		return nil, "", err
	}
	now := tm.clock()
	updated, err := tm.store.UpdateVerification(ctx, submissionID, token, now.Add(tm.ttl), now)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// redeemed or moderated between the read and the write
			return nil, "", ErrNotEligibleForResend
		}
		return nil, "", err
	}
	return updated, token, nil
}

// ReissueForRelease issues a token for a flagged submission a moderator released.
func (tm *TokenManager) ReissueForRelease(ctx context.Context, submissionID string) (*models.Submission, string, error) {
	token, err := generateToken()
	if err != nil {
		return nil, "", err
	}
	now := tm.clock()
	updated, err := tm.store.ReleaseFlagged(ctx, submissionID, token, now.Add(tm.ttl), now)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, "", ErrNotEligibleForResend
		}
		return nil, "", err
	}
	return updated, token, nil
}
