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

type ReviewHandler struct {
	log       *logger.Logger
	reviewSvc services.ReviewService
}

func NewReviewHandler(log *logger.Logger, reviewSvc services.ReviewService) *ReviewHandler {
	return &ReviewHandler{
		log:       log.With("handler", "ReviewHandler"),
		reviewSvc: reviewSvc,
	}
}

// POST /api/reviews
// Register spaced-repetition items for the authenticated user.
func (h *ReviewHandler) CreateItems(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var body struct {
		ItemIDs []uuid.UUID `json:"item_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_json", err)
		return
	}

	items, err := h.reviewSvc.CreateItems(c.Request.Context(), rd.UserID, body.ItemIDs)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": items})
}

// POST /api/reviews/:item_id/grade
// Grade one due item with recall quality 0..5.
func (h *ReviewHandler) Grade(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_item_id", err)
		return
	}

	var body struct {
		Quality int `json:"quality"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_json", err)
		return
	}

	item, err := h.reviewSvc.GradeReview(c.Request.Context(), rd.UserID, itemID, body.Quality)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"item": item})
}

// GET /api/reviews/due?as_of=RFC3339
// Items due for review, most overdue first.
func (h *ReviewHandler) GetDue(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "bad_as_of", err)
			return
		}
		asOf = parsed
	}

	items, err := h.reviewSvc.GetDueReviews(c.Request.Context(), rd.UserID, asOf)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"items": items})
}

// POST /api/reviews/retire
// Retire all cards backed by removed content, across users.
func (h *ReviewHandler) Retire(c *gin.Context) {
	var body struct {
		ItemIDs []uuid.UUID `json:"item_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_json", err)
		return
	}

	count, err := h.reviewSvc.RetireItemsForContent(c.Request.Context(), body.ItemIDs)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"retired": count})
}
