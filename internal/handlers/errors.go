package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/joshua-takyi/reviewtrust/internal/services"
)

// respondError maps service errors onto HTTP answers. Anything unrecognised
// is recorded on the context for ErrorHandler.
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"code":    "validation_failed",
			"error":   "Validation failed",
			"fields":  verr.Fields,
		})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, helpers.CodedErrorResponse("validation_failed", err.Error()))
	case errors.Is(err, services.ErrBusinessNotFound):
		c.JSON(http.StatusNotFound, helpers.CodedErrorResponse("business_not_found", "Business not found"))
	case errors.Is(err, services.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, helpers.CodedErrorResponse("submission_not_found", "Submission not found"))
	case errors.Is(err, services.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, helpers.CodedErrorResponse("duplicate_submission", "You have already reviewed this business recently"))
	case errors.Is(err, services.ErrNotEligibleForResend):
		c.JSON(http.StatusConflict, helpers.CodedErrorResponse("not_eligible_for_resend", "This submission is not awaiting verification"))
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, helpers.CodedErrorResponse("invalid_transition", err.Error()))
	case errors.Is(err, services.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, helpers.CodedErrorResponse("rate_limited", "Too many submissions from your network, try again later"))
	case errors.Is(err, services.ErrBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, helpers.CodedErrorResponse("busy", "Another submission is in progress, please retry"))
	case errors.Is(err, services.ErrInvalidOrExpiredToken):
		c.JSON(http.StatusBadRequest, helpers.CodedErrorResponse("invalid_or_expired_token", "This verification link is invalid or has expired"))
	case errors.Is(err, services.ErrStoreUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, helpers.CodedErrorResponse("store_unavailable", "Service temporarily unavailable"))
	default:
		_ = c.Error(err)
	}
}
