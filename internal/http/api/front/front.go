package front

import (
	"github.com/film4u/film4u-ai/internal/assistant"
	"github.com/film4u/film4u-ai/internal/config"
	"github.com/film4u/film4u-ai/internal/http/api/front/handlers"
	"github.com/gin-gonic/gin"
)

// Dependencies are the services behind the front routes. Only Assistant is required.
type Dependencies struct {
	Assistant *assistant.Service
	Quotas    handlers.QuotaReader
	Trending  handlers.TrendingSource
	History   handlers.HistoryStore
}

// RegisterFrontRoutes registers the assistant, discovery, history and quota endpoints used by the web app.
func RegisterFrontRoutes(r *gin.Engine, deps Dependencies, jwtCfg config.JWTConfig) {
	if r == nil || deps.Assistant == nil {
		return
	}

	v1 := r.Group("/v1")
	v1.Use(callerMiddleware(jwtCfg.Secret))

	assistantHandler := handlers.NewAssistantHandler(deps.Assistant, deps.History)
	v1.POST("/assistant/chat", assistantHandler.Chat)
	v1.POST("/assistant/recommendations", assistantHandler.Recommend)
	v1.POST("/assistant/insight", assistantHandler.Insight)
	v1.POST("/assistant/profile", assistantHandler.AnalyzeProfile)

	discoverHandler := handlers.NewDiscoverHandler(deps.Trending, deps.History)
	v1.GET("/discover/trending", discoverHandler.Trending)
	v1.POST("/discover/rank", discoverHandler.Rank)

	if deps.History != nil {
		historyHandler := handlers.NewHistoryHandler(deps.History)
		v1.GET("/history", historyHandler.List)
		v1.POST("/history", historyHandler.Track)
	}

	if deps.Quotas != nil {
		quotaHandler := handlers.NewQuotaHandler(deps.Quotas)
		v1.GET("/quota", quotaHandler.Get)
	}
}
