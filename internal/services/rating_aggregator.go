package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

// RatingAggregator is the only writer of BusinessRatingSnapshot.
type RatingAggregator struct {
	submissions models.SubmissionStore
	snapshots   models.RatingSnapshotStore
	clock       Clock
	logger      *slog.Logger
}

func NewRatingAggregator(submissions models.SubmissionStore, snapshots models.RatingSnapshotStore, clock Clock, logger *slog.Logger) *RatingAggregator {
	return &RatingAggregator{
		submissions: submissions,
		snapshots:   snapshots,
		clock:       clock,
		logger:      logger,
	}
}

// Recompute re-derives the rating from every published submission and
// overwrites the snapshot. It returns the snapshot it replaced (zero valued
// when there was none) and the new one.
func (a *RatingAggregator) Recompute(ctx context.Context, businessID string) (prior, current *models.BusinessRatingSnapshot, err error) {
	prior, err = a.snapshots.GetSnapshot(ctx, businessID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading rating snapshot: %w", err)
	}
	if prior == nil {
		prior = &models.BusinessRatingSnapshot{BusinessID: businessID}
	}

	totals, err := a.submissions.SumPublishedRatings(ctx, businessID)
	if err != nil {
		return nil, nil, fmt.Errorf("summing published ratings: %w", err)
	}

	current = &models.BusinessRatingSnapshot{
		BusinessID:   businessID,
		Average:      averageOf(totals),
		Sum:          totals.Sum,
		Count:        totals.Count,
		RecomputedAt: a.clock(),
	}
	if err := a.snapshots.UpsertSnapshot(ctx, current); err != nil {
		return nil, nil, fmt.Errorf("saving rating snapshot: %w", err)
	}

	a.logger.Debug("Rating recomputed",
		"business_id", businessID,
		"prior_average", prior.Average,
		"average", current.Average,
		"count", current.Count,
	)
	return prior, current, nil
}

func (a *RatingAggregator) Snapshot(ctx context.Context, businessID string) (*models.BusinessRatingSnapshot, error) {
	snap, err := a.snapshots.GetSnapshot(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return &models.BusinessRatingSnapshot{BusinessID: businessID}, nil
	}
	return snap, nil
}

// averageOf rounds to one decimal place, the precision shown on profiles.
// Threshold checks use BusinessRatingSnapshot.ExactAverage instead.
func averageOf(t models.RatingTotals) float64 {
	if t.Count == 0 {
		return 0
	}
	avg := float64(t.Sum) / float64(t.Count)
	return math.Round(avg*10) / 10
}
