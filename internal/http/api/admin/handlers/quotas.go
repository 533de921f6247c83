package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	dbutil "github.com/film4u/film4u-ai/internal/db"
	"github.com/film4u/film4u-ai/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaHandler handles admin endpoints for per-user AI quotas.
type QuotaHandler struct {
	db *gorm.DB
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(db *gorm.DB) *QuotaHandler {
	return &QuotaHandler{db: db}
}

// quotaListQuery defines filters for the quota list view.
type quotaListQuery struct {
	Page    int    `form:"page,default=1"`   // Page number.
	Limit   int    `form:"limit,default=12"` // Page size.
	ID      string `form:"id"`               // User id filter.
	Blocked string `form:"blocked"`          // "true" or "false".
}

// List returns user quota rows with paging and filters.
func (h *QuotaHandler) List(c *gin.Context) {
	var q quotaListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 12
	}

	base := h.db.WithContext(c.Request.Context()).Model(&models.UserQuota{})
	if idQ := strings.TrimSpace(q.ID); idQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+idQ+"%")
		base = base.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "id"), pattern)
	}
	switch strings.ToLower(strings.TrimSpace(q.Blocked)) {
	case "":
	case "true", "1":
		base = base.Where("is_blocked = ?", true)
	case "false", "0":
		base = base.Where("is_blocked = ?", false)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid blocked"})
		return
	}

	var total int64
	if errCount := base.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count quotas failed"})
		return
	}

	var rows []models.UserQuota
	if errFind := base.
		Order("updated_at DESC, id ASC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list quotas failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatQuota(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"quotas": out,
		"total":  total,
		"page":   q.Page,
		"limit":  q.Limit,
	})
}

// Get returns the quota row for a user.
func (h *QuotaHandler) Get(c *gin.Context) {
	row, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatQuota(row))
}

// createQuotaRequest captures the payload for creating a quota row.
type createQuotaRequest struct {
	ID        string `json:"id"`         // User id from the account backend.
	IsBlocked bool   `json:"is_blocked"` // Start blocked.
}

// Create provisions a quota row for a user. Existing rows are left unchanged.
func (h *QuotaHandler) Create(c *gin.Context) {
	var body createQuotaRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	id := strings.TrimSpace(body.ID)
	if id == "" || len(id) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	now := time.Now().UTC()
	row := models.UserQuota{
		ID:        id,
		IsBlocked: body.IsBlocked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := h.db.WithContext(c.Request.Context()).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create quota failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "quota already exists"})
		return
	}
	c.JSON(http.StatusCreated, formatQuota(&row))
}

// Block flags a user so every AI request is refused.
func (h *QuotaHandler) Block(c *gin.Context) {
	h.update(c, map[string]any{"is_blocked": true})
}

// Unblock clears the blocked flag.
func (h *QuotaHandler) Unblock(c *gin.Context) {
	h.update(c, map[string]any{"is_blocked": false})
}

// Reset zeroes today's counter. The lifetime total is kept.
func (h *QuotaHandler) Reset(c *gin.Context) {
	h.update(c, map[string]any{"daily_ai_requests": 0})
}

func (h *QuotaHandler) update(c *gin.Context, updates map[string]any) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	updates["updated_at"] = time.Now().UTC()
	res := h.db.WithContext(c.Request.Context()).Model(&models.UserQuota{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	row, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formatQuota(row))
}

func (h *QuotaHandler) load(c *gin.Context) (*models.UserQuota, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	var row models.UserQuota
	if errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	return &row, true
}

// formatQuota formats a quota row into response JSON.
func formatQuota(row *models.UserQuota) gin.H {
	return gin.H{
		"id":                row.ID,
		"daily_ai_requests": row.DailyAIRequests,
		"total_requests":    row.TotalRequests,
		"last_request_date": row.LastRequestDate,
		"is_blocked":        row.IsBlocked,
		"created_at":        row.CreatedAt,
		"updated_at":        row.UpdatedAt,
	}
}
