package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/requestdata"
	"github.com/learnloop/analytics-engine/internal/services"
)

type SessionHandler struct {
	log        *logger.Logger
	sessionSvc services.SessionService
}

func NewSessionHandler(log *logger.Logger, sessionSvc services.SessionService) *SessionHandler {
	return &SessionHandler{
		log:        log.With("handler", "SessionHandler"),
		sessionSvc: sessionSvc,
	}
}

// POST /api/sessions
// Open a live session for the authenticated user.
func (h *SessionHandler) Start(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	metrics, err := h.sessionSvc.StartSession(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": metrics})
}

// POST /api/sessions/:id/events
// Push one session event (answer or heartbeat).
func (h *SessionHandler) RecordEvent(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_session_id", err)
		return
	}

	var event services.SessionEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_json", err)
		return
	}

	if err := h.sessionSvc.RecordEvent(c.Request.Context(), rd.UserID, sessionID, event); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GET /api/sessions/:id/metrics
// Live metrics for an open session.
func (h *SessionHandler) GetMetrics(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_session_id", err)
		return
	}

	metrics, err := h.sessionSvc.GetMetrics(c.Request.Context(), rd.UserID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"metrics": metrics})
}

// POST /api/sessions/:id/end
// Close the session and record its summary snapshot.
func (h *SessionHandler) End(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_session_id", err)
		return
	}

	metrics, err := h.sessionSvc.EndSession(c.Request.Context(), rd.UserID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": metrics})
}
