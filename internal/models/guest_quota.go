package models

import "time"

// GuestQuota tracks AI assistant usage for an anonymous guest scope.
type GuestQuota struct {
	Scope string `gorm:"type:varchar(128);primaryKey"` // Guest scope, s:<session id>.

	Date  string `gorm:"type:varchar(10);not null;default:''"` // YYYY-MM-DD the count applies to.
	Count int    `gorm:"not null;default:0"`                   // Requests consumed on Date.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (GuestQuota) TableName() string {
	return "guest_quotas"
}
