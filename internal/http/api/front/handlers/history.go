package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/film4u/film4u-ai/internal/assistant"
	"github.com/film4u/film4u-ai/internal/history"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HistoryHandler records and lists the signed-in caller's watch history.
type HistoryHandler struct {
	store HistoryStore
}

// NewHistoryHandler constructs a HistoryHandler.
func NewHistoryHandler(store HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

type trackRequest struct {
	Movie assistant.Movie `json:"movie"`
}

// Track appends the opened title to the caller's history. Guests are not tracked.
func (h *HistoryHandler) Track(c *gin.Context) {
	var body trackRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(string(body.Movie.ID)) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "movie.id is required"})
		return
	}
	caller := callerFrom(c)
	if !caller.Identified() {
		c.Status(http.StatusNoContent)
		return
	}
	if errTrack := h.store.Track(c.Request.Context(), caller.UserID, history.EntryFromMovie(body.Movie)); errTrack != nil {
		log.WithError(errTrack).Error("track watch history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "track failed"})
		return
	}
	c.Status(http.StatusCreated)
}

// List returns the caller's recent history, newest first. Guests get an empty list.
func (h *HistoryHandler) List(c *gin.Context) {
	limit := history.DefaultLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	caller := callerFrom(c)
	if !caller.Identified() {
		c.JSON(http.StatusOK, gin.H{"history": []history.Entry{}})
		return
	}
	entries, errRecent := h.store.Recent(c.Request.Context(), caller.UserID, limit)
	if errRecent != nil {
		log.WithError(errRecent).Error("list watch history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
