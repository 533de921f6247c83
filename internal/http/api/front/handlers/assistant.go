package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/film4u/film4u-ai/internal/assistant"
	"github.com/film4u/film4u-ai/internal/guard"
	"github.com/film4u/film4u-ai/internal/history"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// CallerKey is the gin context key holding the resolved guard.Caller.
const CallerKey = "film4uCaller"

// AssistantHandler serves the AI assistant endpoints.
type AssistantHandler struct {
	svc     *assistant.Service
	history HistoryStore
}

// NewAssistantHandler constructs an AssistantHandler. store may be nil.
func NewAssistantHandler(svc *assistant.Service, store HistoryStore) *AssistantHandler {
	return &AssistantHandler{svc: svc, history: store}
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat replies to a free-form message.
func (h *AssistantHandler) Chat(c *gin.Context) {
	var body chatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	reply, errChat := h.svc.Chat(c.Request.Context(), callerFrom(c), body.Message)
	if errChat != nil {
		writeAssistantError(c, errChat)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

type recommendRequest struct {
	Query   string            `json:"query"`
	Catalog []assistant.Movie `json:"catalog"`
	Profile assistant.Profile `json:"profile"`
}

// Recommend returns catalog ids matching the query.
func (h *AssistantHandler) Recommend(c *gin.Context) {
	var body recommendRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	ids, errRecommend := h.svc.Recommend(c.Request.Context(), callerFrom(c), body.Query, body.Catalog, body.Profile)
	if errRecommend != nil {
		writeAssistantError(c, errRecommend)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

type insightRequest struct {
	Movie assistant.Movie `json:"movie"`
	Kind  string          `json:"kind"`
}

// Insight answers a question about one title.
func (h *AssistantHandler) Insight(c *gin.Context) {
	var body insightRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Movie.Title) == "" || strings.TrimSpace(body.Kind) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "movie.title and kind are required"})
		return
	}
	insight, errInsight := h.svc.Insight(c.Request.Context(), callerFrom(c), body.Movie, body.Kind)
	if errInsight != nil {
		writeAssistantError(c, errInsight)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insight": insight})
}

type profileRequest struct {
	History []json.RawMessage `json:"history"`
}

// AnalyzeProfile infers viewing preferences from a watch history. Signed-in callers that send
// no history are analyzed on their stored one.
func (h *AssistantHandler) AnalyzeProfile(c *gin.Context) {
	var body profileRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.History) == 0 {
		if stored, ok := loadStoredHistory(c, h.history); ok {
			body.History = historyMessages(stored)
		}
	}
	analysis, errAnalyze := h.svc.AnalyzeProfile(c.Request.Context(), callerFrom(c), body.History)
	if errAnalyze != nil {
		writeAssistantError(c, errAnalyze)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": analysis})
}

func historyMessages(entries []history.Entry) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		raw, errMarshal := json.Marshal(entry)
		if errMarshal != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func callerFrom(c *gin.Context) guard.Caller {
	if raw, ok := c.Get(CallerKey); ok {
		if caller, okCaller := raw.(guard.Caller); okCaller {
			return caller
		}
	}
	return guard.Caller{}
}

func writeAssistantError(c *gin.Context, err error) {
	if rejection, ok := assistant.AsRejection(err); ok {
		decision := rejection.Decision
		status := http.StatusTooManyRequests
		switch decision.Reason {
		case guard.ReasonAccountBlocked:
			status = http.StatusForbidden
		case guard.ReasonStoreUnavailable:
			status = http.StatusServiceUnavailable
		case guard.ReasonBurstExceeded:
			c.Header("Retry-After", "1")
		}
		c.JSON(status, gin.H{
			"error":  decision.Message,
			"reason": decision.Reason.String(),
		})
		return
	}

	var upstream *assistant.UpstreamError
	if errors.As(err, &upstream) {
		log.WithError(err).Warn("assistant upstream failed")
		if errors.Is(err, assistant.ErrModelUnavailable) {
			c.Header("Retry-After", "30")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": upstream.Message})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": upstream.Message})
		return
	}
	log.WithError(err).Error("assistant request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "assistant request failed"})
}
