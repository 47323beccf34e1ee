package services

import (
	"log/slog"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

const snippetLength = 160

type AlertDispatcher struct {
	publisher        Publisher
	averageThreshold float64
	maxRating        int
	clock            Clock
	logger           *slog.Logger
}

func NewAlertDispatcher(publisher Publisher, averageThreshold float64, maxRating int, clock Clock, logger *slog.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		publisher:        publisher,
		averageThreshold: averageThreshold,
		maxRating:        maxRating,
		clock:            clock,
		logger:           logger,
	}
}

// Evaluate runs after a recompute. A low new average alone is not enough: the
// submission that was just published must itself be a low rating. The
// threshold is compared against the unrounded average.
func (d *AlertDispatcher) Evaluate(business *models.Business, prior, current *models.BusinessRatingSnapshot, sub *models.Submission) *models.AlertEvent {
	if current == nil || sub == nil {
		return nil
	}
	if current.ExactAverage() >= d.averageThreshold || sub.Rating > d.maxRating {
		return nil
	}

	event := &models.AlertEvent{
		BusinessID: current.BusinessID,
		NewAverage: current.Average,
		Count:      current.Count,
		Submission: sub.Summary(snippetLength),
		At:         d.clock(),
	}
	if prior != nil {
		event.PriorAverage = prior.Average
	}
	if business != nil {
		event.BusinessName = business.Name
	}

	d.logger.Info("Low rating alert",
		"business_id", event.BusinessID,
		"exact_average", current.ExactAverage(),
		"prior_average", event.PriorAverage,
		"new_average", event.NewAverage,
		"submission_id", sub.ID,
	)

	if business != nil && business.OwnerEmail != "" {
		d.publisher.Publish(OutboundMessage{
			Kind:         KindLowRatingEmail,
			Email:        business.OwnerEmail,
			BusinessID:   event.BusinessID,
			BusinessName: business.Name,
			Alert:        event,
		})
	}
	d.publisher.Publish(OutboundMessage{
		Kind:       KindLowRatingPush,
		BusinessID: event.BusinessID,
		Alert:      event,
	})
	return event
}
