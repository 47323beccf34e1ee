package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
	"github.com/joshua-takyi/reviewtrust/internal/middleware"
	"github.com/joshua-takyi/reviewtrust/internal/models"
	"github.com/joshua-takyi/reviewtrust/internal/notify"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 70 * time.Second
)

// newUpgrader accepts requests without an Origin header (non-browser clients)
// and browsers on one of the allowed origins.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		},
	}
}

// BusinessAlertsWebSocket streams alert and new-review events to the business
// owner's dashboard.
func BusinessAlertsWebSocket(businesses models.BusinessDirectory, sub notify.Subscriber, allowedOrigins []string, logger *slog.Logger) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, helpers.ErrorResponse("Unauthorized access"))
			return
		}

		businessID := c.Param("id")
		business, err := businesses.GetBusiness(c.Request.Context(), businessID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.JSON(http.StatusNotFound, helpers.CodedErrorResponse("business_not_found", "Business not found"))
				return
			}
			_ = c.Error(err)
			return
		}
		if !user.IsAdmin() && !user.IsOwner(business.OwnerID) {
			c.JSON(http.StatusForbidden, helpers.ErrorResponse("Only the business owner can subscribe to alerts"))
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := sub.Subscribe(ctx, business.ID)
		if err != nil {
			_ = c.Error(err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("WebSocket upgrade failed", "business_id", business.ID, "error", err)
			return
		}
		defer conn.Close()

		logger.Info("Alerts subscriber connected", "business_id", business.ID, "user_id", user.UserID)

		// reader: only pongs and the close frame are expected
		go func() {
			defer cancel()
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(gin.H{"type": "connected", "business_id": business.ID}); err != nil {
			return
		}

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-events:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					logger.Debug("WebSocket write failed", "business_id", business.ID, "error", err)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
