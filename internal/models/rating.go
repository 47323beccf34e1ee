package models

import "time"

// BusinessRatingSnapshot is the derived public rating of a business.
type BusinessRatingSnapshot struct {
	BusinessID   string    `bson:"_id" json:"business_id"`
	Average      float64   `bson:"average" json:"average"`
	Sum          int64     `bson:"sum" json:"-"`
	Count        int64     `bson:"count" json:"count"`
	RecomputedAt time.Time `bson:"recomputed_at" json:"recomputed_at"`
}

// ExactAverage is Sum/Count before display rounding. Snapshots stored without
// a sum fall back to Average.
func (s *BusinessRatingSnapshot) ExactAverage() float64 {
	if s.Count == 0 {
		return 0
	}
	if s.Sum == 0 {
		return s.Average
	}
	return float64(s.Sum) / float64(s.Count)
}

type RatingTotals struct {
	Sum   int64 `bson:"sum"`
	Count int64 `bson:"count"`
}

// AlertEvent is emitted when a newly published low rating pulls a business
// below the alert threshold. It is never persisted.
type AlertEvent struct {
	BusinessID   string            `json:"business_id"`
	BusinessName string            `json:"business_name,omitempty"`
	PriorAverage float64           `json:"prior_average"`
	NewAverage   float64           `json:"new_average"`
	Count        int64             `json:"count"`
	Submission   SubmissionSummary `json:"submission"`
	At           time.Time         `json:"at"`
}

type ReviewNotification struct {
	BusinessID string            `json:"business_id"`
	Average    float64           `json:"average"`
	Count      int64             `json:"count"`
	Submission SubmissionSummary `json:"submission"`
	At         time.Time         `json:"at"`
}
