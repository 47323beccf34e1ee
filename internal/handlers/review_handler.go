package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/joshua-takyi/reviewtrust/internal/services"
)

// SubmitAnonymousReview accepts a review from a visitor without an account.
func SubmitAnonymousReview(p *services.ReviewPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, helpers.CodedErrorResponse("validation_failed", "invalid request body"))
			return
		}
		req.IP = c.ClientIP()
		req.UserAgent = c.Request.UserAgent()
		req.DeviceFingerprint = c.GetHeader(helpers.DeviceFingerprintHeader)

		result, err := p.Submit(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}

		message := "Check your e-mail to confirm your review"
		if !result.VerificationRequired {
			message = "Review received and queued for moderation"
		}
		c.JSON(http.StatusCreated, helpers.SuccessResponse(result, message))
	}
}

// VerifySubmission redeems the token from the e-mail link.
func VerifySubmission(p *services.ReviewPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := helpers.StringTrim(c.Query("token"))
		if token == "" {
			c.JSON(http.StatusBadRequest, helpers.CodedErrorResponse("validation_failed", "token is required"))
			return
		}

		result, err := p.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrInvalidOrExpiredToken) {
				c.JSON(http.StatusBadRequest, gin.H{
					"success":          false,
					"code":             "invalid_or_expired_token",
					"error":            "This verification link is invalid or has expired",
					"resend_available": true,
				})
				return
			}
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(result, "Review published"))
	}
}

// ResendVerification issues a fresh link for a pending submission. The response
// carries the destination masked as a***@example.com, never the full address.
func ResendVerification(p *services.ReviewPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := p.ResendVerification(c.Request.Context(), helpers.StringTrim(c.Param("id")))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(result, "Verification e-mail sent"))
	}
}

func GetBusinessRating(p *services.ReviewPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := p.Rating(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(snapshot, ""))
	}
}
