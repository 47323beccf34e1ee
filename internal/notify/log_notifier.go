package notify

import (
	"context"
	"log/slog"

	"github.com/joshua-takyi/reviewtrust/internal/models"
)

// LogNotifier writes notifications to the log instead of sending them.
// Used when no SMTP host is configured.
type LogNotifier struct {
	logger  *slog.Logger
	baseURL string
}

func NewLogNotifier(logger *slog.Logger, baseURL string) *LogNotifier {
	return &LogNotifier{logger: logger, baseURL: baseURL}
}

func (n *LogNotifier) SendVerificationEmail(_ context.Context, email, name, token, businessName string) error {
	n.logger.Info("Verification email (not sent)",
		"to", email,
		"name", name,
		"business", businessName,
		"link", n.baseURL+"/api/v1/reviews/verify?token="+token,
	)
	return nil
}

func (n *LogNotifier) SendPublishedConfirmation(_ context.Context, email, businessName string) error {
	n.logger.Info("Published confirmation (not sent)", "to", email, "business", businessName)
	return nil
}

func (n *LogNotifier) SendLowRatingAlert(_ context.Context, ownerEmail, businessName string, averageRating float64, summary models.SubmissionSummary) error {
	n.logger.Warn("Low rating alert (not sent)",
		"to", ownerEmail,
		"business", businessName,
		"average", averageRating,
		"submission_id", summary.SubmissionID,
	)
	return nil
}
