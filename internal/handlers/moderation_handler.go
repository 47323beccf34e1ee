package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/joshua-takyi/reviewtrust/internal/services"
)

func ListFlaggedSubmissions(ms *services.ModerationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("invalid limit parameter"))
			return
		}
		subs, err := ms.ListFlagged(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.PaginatedResponse(subs, 1, limit, len(subs)))
	}
}

type moderationRequest struct {
	Action services.ModerationAction `json:"action" binding:"required"`
}

// ModerateSubmission applies remove, reject or release to one submission.
func ModerateSubmission(ms *services.ModerationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req moderationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, helpers.ErrorResponse("action is required"))
			return
		}
		sub, err := ms.Apply(c.Request.Context(), c.Param("id"), req.Action)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, helpers.SuccessResponse(gin.H{
			"submission_id": sub.ID,
			"state":         sub.State,
		}, "Submission updated"))
	}
}

func OutboxStats(o *services.Outbox) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, helpers.SuccessResponse(o.Stats(), ""))
	}
}
