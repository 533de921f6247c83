package models

import "time"

// UserQuota tracks AI assistant usage for a signed-in backend user.
type UserQuota struct {
	ID string `gorm:"type:varchar(64);primaryKey"` // Backend user identity (JWT subject).

	DailyAIRequests int    `gorm:"column:daily_ai_requests;not null;default:0"` // Requests consumed on LastRequestDate.
	TotalRequests   int64  `gorm:"not null;default:0"`                          // Lifetime request counter.
	LastRequestDate string `gorm:"type:varchar(10);not null;default:''"`        // YYYY-MM-DD of the last counted request.
	IsBlocked       bool   `gorm:"not null;default:false;index"`                // Moderation block flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (UserQuota) TableName() string {
	return "user_quotas"
}
