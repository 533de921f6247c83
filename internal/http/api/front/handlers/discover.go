package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/film4u/film4u-ai/internal/assistant"
	"github.com/film4u/film4u-ai/internal/history"
	"github.com/film4u/film4u-ai/internal/tmdb"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// TrendingSource lists this week's trending titles.
type TrendingSource interface {
	Trending(ctx context.Context) ([]tmdb.Title, error)
}

// HistoryStore records and reads a signed-in user's watch history.
type HistoryStore interface {
	Track(ctx context.Context, userID string, entry history.Entry) error
	Recent(ctx context.Context, userID string, limit int) ([]history.Entry, error)
}

// DiscoverHandler serves trending titles and history-aware catalog ranking.
type DiscoverHandler struct {
	trending TrendingSource
	history  HistoryStore
}

// NewDiscoverHandler constructs a DiscoverHandler; either dependency may be nil.
func NewDiscoverHandler(trending TrendingSource, store HistoryStore) *DiscoverHandler {
	return &DiscoverHandler{trending: trending, history: store}
}

// Trending returns the weekly trending list. Upstream failures yield an empty list.
func (h *DiscoverHandler) Trending(c *gin.Context) {
	titles := []tmdb.Title{}
	if h.trending != nil {
		fetched, errTrending := h.trending.Trending(c.Request.Context())
		if errTrending != nil {
			log.WithError(errTrending).Warn("trending lookup failed")
		} else if fetched != nil {
			titles = fetched
		}
	}
	c.JSON(http.StatusOK, gin.H{"titles": titles})
}

type rankRequest struct {
	Catalog    []assistant.Movie        `json:"catalog"`
	Mood       string                   `json:"mood"`
	Categories []assistant.Category     `json:"categories"`
	History    []assistant.HistoryEntry `json:"history"`
}

type rankedMovie struct {
	assistant.Movie
	MatchScore int `json:"matchScore"`
}

// Rank filters the catalog by mood, scores each title against the caller's history and
// reorders the category rows. Signed-in callers are ranked on their stored history.
func (h *DiscoverHandler) Rank(c *gin.Context) {
	var body rankRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	viewed := body.History
	if stored, ok := loadStoredHistory(c, h.history); ok {
		viewed = history.ForRanking(stored)
	}

	catalog := body.Catalog
	if mood := strings.TrimSpace(body.Mood); mood != "" {
		catalog = assistant.MoviesByMood(catalog, mood)
	}
	movies := make([]rankedMovie, 0, len(catalog))
	for _, movie := range catalog {
		movies = append(movies, rankedMovie{Movie: movie, MatchScore: assistant.MatchScore(movie, viewed)})
	}
	c.JSON(http.StatusOK, gin.H{
		"movies":     movies,
		"categories": assistant.PriorityCategories(viewed, body.Categories),
	})
}

// loadStoredHistory reads the caller's recent history when the caller is signed in and a store is wired.
func loadStoredHistory(c *gin.Context, store HistoryStore) ([]history.Entry, bool) {
	caller := callerFrom(c)
	if store == nil || !caller.Identified() {
		return nil, false
	}
	entries, errRecent := store.Recent(c.Request.Context(), caller.UserID, history.DefaultLimit)
	if errRecent != nil {
		log.WithError(errRecent).Warn("load watch history failed")
		return nil, false
	}
	return entries, true
}
