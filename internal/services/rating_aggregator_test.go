package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

func TestRecomputeAverages(t *testing.T) {
	repo := models.NewMemoryRepo()
	agg := NewRatingAggregator(repo, repo, newTestClock().Now, discardLogger())
	ctx := context.Background()

	for i, r := range []int{5, 5, 5, 1} {
		publishRating(t, repo, fmt.Sprintf("s%d", i), r, testStart)
	}
	prior, current, err := agg.Recompute(ctx, testBusinessID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if prior.Count != 0 || prior.Average != 0 {
		t.Errorf("prior = %+v, want zero snapshot", prior)
	}
	if current.Average != 4.0 || current.Count != 4 {
		t.Errorf("current = %.1f/%d, want 4.0/4", current.Average, current.Count)
	}

	publishRating(t, repo, "s4", 1, testStart)
	prior, current, err = agg.Recompute(ctx, testBusinessID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if prior.Average != 4.0 {
		t.Errorf("prior average = %.1f, want 4.0", prior.Average)
	}
	if current.Average != 3.4 || current.Count != 5 {
		t.Errorf("current = %.1f/%d, want 3.4/5", current.Average, current.Count)
	}
}

func TestRecomputeIgnoresUnpublished(t *testing.T) {
	repo := models.NewMemoryRepo()
	agg := NewRatingAggregator(repo, repo, newTestClock().Now, discardLogger())
	publishRating(t, repo, "p1", 5, testStart)
	seedSubmission(t, repo, "f1", testBusinessID, "f@x.com", "10.0.0.1", models.StateFlagged, testStart)
	seedSubmission(t, repo, "q1", testBusinessID, "q@x.com", "10.0.0.2", models.StatePending, testStart)

	_, current, err := agg.Recompute(context.Background(), testBusinessID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if current.Count != 1 || current.Average != 5.0 {
		t.Errorf("current = %.1f/%d, want 5.0/1", current.Average, current.Count)
	}
}

func TestAverageOfRounding(t *testing.T) {
	tests := []struct {
		sum, count int64
		want       float64
	}{
		{0, 0, 0},
		{10, 3, 3.3},
		{11, 3, 3.7},
		{9, 2, 4.5},
	}
	for _, tt := range tests {
		if got := averageOf(models.RatingTotals{Sum: tt.sum, Count: tt.count}); got != tt.want {
			t.Errorf("averageOf(%d/%d) = %v, want %v", tt.sum, tt.count, got, tt.want)
		}
	}
}

func TestSnapshotDefaultsToEmpty(t *testing.T) {
	repo := models.NewMemoryRepo()
	agg := NewRatingAggregator(repo, repo, newTestClock().Now, discardLogger())
	snap, err := agg.Snapshot(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.BusinessID != "nobody" || snap.Count != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}
