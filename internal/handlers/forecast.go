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

type ForecastHandler struct {
	log         *logger.Logger
	forecastSvc services.ForecastService
}

func NewForecastHandler(log *logger.Logger, forecastSvc services.ForecastService) *ForecastHandler {
	return &ForecastHandler{
		log:         log.With("handler", "ForecastHandler"),
		forecastSvc: forecastSvc,
	}
}

// GET /api/forecast?horizon_days=30
// Completion-probability forecast for the authenticated user.
func (h *ForecastHandler) Get(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	horizonDays := 30
	if raw := c.Query("horizon_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_horizon", err)
			return
		}
		horizonDays = parsed
	}

	forecast, err := h.forecastSvc.GetForecast(c.Request.Context(), rd.UserID, horizonDays)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"forecast": forecast})
}

// GET /api/forecast/history?limit=20
// Prior forecasts, newest first.
func (h *ForecastHandler) History(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			RespondError(c, http.StatusBadRequest, "bad_limit", err)
			return
		}
		limit = parsed
	}

	forecasts, err := h.forecastSvc.History(c.Request.Context(), rd.UserID, limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"forecasts": forecasts})
}
