package handlers

import (
	"context"
	"net/http"

	"github.com/film4u/film4u-ai/internal/guard"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// QuotaReader reports a caller's quota without consuming it.
type QuotaReader interface {
	Status(ctx context.Context, caller guard.Caller) (guard.QuotaStatus, error)
}

// QuotaHandler serves the caller's own quota status.
type QuotaHandler struct {
	quotas QuotaReader
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(quotas QuotaReader) *QuotaHandler {
	return &QuotaHandler{quotas: quotas}
}

// Get returns today's usage for the caller.
func (h *QuotaHandler) Get(c *gin.Context) {
	status, errStatus := h.quotas.Status(c.Request.Context(), callerFrom(c))
	if errStatus != nil {
		log.WithError(errStatus).Error("quota status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quota status unavailable"})
		return
	}
	c.JSON(http.StatusOK, status)
}
