package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/joshua-takyi/reviewtrust/internal/models"
)

var (
	liveStates   = []models.SubmissionState{models.StatePending, models.StatePublished}
	failedStates = []models.SubmissionState{models.StateFlagged, models.StateRejected, models.StateRemoved}
)

// ActivityContext carries the recent-activity counts the spam scorer needs.
type ActivityContext struct {
	// RecentFromFingerprint counts submissions from the same source IP in the window.
	RecentFromFingerprint int
	// AttemptCount is 1 plus the failed submissions for the same business and email in the window.
	AttemptCount int
}

type DuplicateGuard struct {
	store   models.SubmissionStore
	window  time.Duration
	ipLimit int64
	clock   Clock
	logger  *slog.Logger
}

func NewDuplicateGuard(store models.SubmissionStore, window time.Duration, ipLimit int64, clock Clock, logger *slog.Logger) *DuplicateGuard {
	return &DuplicateGuard{
		store:   store,
		window:  window,
		ipLimit: ipLimit,
		clock:   clock,
		logger:  logger,
	}
}

// IsDuplicate reports a pending or published submission for the business inside
// the window that shares the email, the IP or the device key.
func (g *DuplicateGuard) IsDuplicate(ctx context.Context, email, businessID, ip, deviceKey string) (bool, error) {
	matches, err := g.store.FindRecentByFingerprint(ctx, models.FingerprintQuery{
		BusinessID: businessID,
		Email:      email,
		IP:         ip,
		DeviceKey:  deviceKey,
		Since:      g.clock().Add(-g.window),
		States:     liveStates,
	})
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Check runs the global per-IP limit and then the per-business duplicate test.
// Nothing is written in either case.
func (g *DuplicateGuard) Check(ctx context.Context, businessID string, fp helpers.Fingerprint) (ActivityContext, error) {
	since := g.clock().Add(-g.window)

	ipCount, err := g.store.CountByIP(ctx, fp.IP, since)
	if err != nil {
		return ActivityContext{}, err
	}
	if ipCount >= g.ipLimit {
		g.logger.Info("Submission rate limited",
			"business_id", businessID,
			"ip", fp.IP,
			"count", ipCount,
		)
		return ActivityContext{}, ErrRateLimited
	}

	dup, err := g.IsDuplicate(ctx, fp.Email, businessID, fp.IP, fp.DeviceKey)
	if err != nil {
		return ActivityContext{}, err
	}
	if dup {
		g.logger.Info("Duplicate submission rejected",
			"business_id", businessID,
			"ip", fp.IP,
			"device_key", fp.DeviceKey,
		)
		return ActivityContext{}, ErrDuplicateSubmission
	}

	failed, err := g.store.FindRecentByFingerprint(ctx, models.FingerprintQuery{
		BusinessID: businessID,
		Email:      fp.Email,
		Since:      since,
		States:     failedStates,
	})
	if err != nil {
		return ActivityContext{}, err
	}

	return ActivityContext{
		RecentFromFingerprint: int(ipCount),
		AttemptCount:          len(failed) + 1,
	}, nil
}
