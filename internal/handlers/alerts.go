package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/requestdata"
	"github.com/learnloop/analytics-engine/internal/services"
)

type AlertHandler struct {
	log      *logger.Logger
	alertSvc services.AlertService
}

func NewAlertHandler(log *logger.Logger, alertSvc services.AlertService) *AlertHandler {
	return &AlertHandler{
		log:      log.With("handler", "AlertHandler"),
		alertSvc: alertSvc,
	}
}

// GET /api/alerts?include_acknowledged=true&limit=50
// Alerts for the authenticated user, newest first.
func (h *AlertHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	includeAcknowledged := c.Query("include_acknowledged") == "true"
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			RespondError(c, http.StatusBadRequest, "bad_limit", err)
			return
		}
		limit = parsed
	}

	alerts, err := h.alertSvc.ListForUser(c.Request.Context(), rd.UserID, includeAcknowledged, limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"alerts": alerts})
}

// POST /api/alerts/:id/ack
// Acknowledge an alert. Safe to repeat.
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	alertID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_alert_id", err)
		return
	}

	alert, err := h.alertSvc.Acknowledge(c.Request.Context(), rd.UserID, alertID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"alert": alert})
}
