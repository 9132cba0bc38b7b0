package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/requestdata"
	"github.com/learnloop/analytics-engine/internal/services"
)

type SignatureHandler struct {
	log          *logger.Logger
	signatureSvc services.SignatureService
}

func NewSignatureHandler(log *logger.Logger, signatureSvc services.SignatureService) *SignatureHandler {
	return &SignatureHandler{
		log:          log.With("handler", "SignatureHandler"),
		signatureSvc: signatureSvc,
	}
}

// GET /api/signature
// The stored learning signature for the authenticated user.
func (h *SignatureHandler) Get(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	signature, err := h.signatureSvc.Get(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"signature": signature})
}

// POST /api/signature/analyze
// Recompute the signature from the recent snapshot window.
func (h *SignatureHandler) Analyze(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	signature, err := h.signatureSvc.Analyze(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"signature": signature})
}
