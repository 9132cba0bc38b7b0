package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/requestdata"
	"github.com/learnloop/analytics-engine/internal/services"
)

type SnapshotHandler struct {
	log         *logger.Logger
	snapshotSvc services.SnapshotService
}

func NewSnapshotHandler(log *logger.Logger, snapshotSvc services.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{
		log:         log.With("handler", "SnapshotHandler"),
		snapshotSvc: snapshotSvc,
	}
}

// POST /api/snapshots
// Record one performance observation for the authenticated user.
func (h *SnapshotHandler) Record(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var input services.RecordSnapshotInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_json", err)
		return
	}
	input.UserID = rd.UserID

	snapshot, err := h.snapshotSvc.Record(c.Request.Context(), input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"snapshot": snapshot})
}

// GET /api/snapshots?since=RFC3339
// Snapshot history for the authenticated user, oldest first.
func (h *SnapshotHandler) GetHistory(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_since", err)
			return
		}
		since = parsed
	}

	snapshots, err := h.snapshotSvc.GetHistory(c.Request.Context(), rd.UserID, since)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"snapshots": snapshots})
}
