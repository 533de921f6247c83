package models

import "time"

// WatchHistory records one title a signed-in user opened.
type WatchHistory struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	UserID    string `gorm:"type:varchar(64);not null;index:idx_watch_history_user_time,priority:1"` // Backend user identity (JWT subject).
	MovieID   string `gorm:"type:varchar(64);not null"`                                              // Catalog id as sent by the client.
	MovieType string `gorm:"type:varchar(8);not null;default:'ott'"`                                 // indie or ott.
	Genre     string `gorm:"type:varchar(64);not null;default:'Unknown'"`                            // Lead genre tag.
	Language  string `gorm:"type:varchar(64);not null;default:'English'"`

	WatchedAt time.Time `gorm:"not null;index:idx_watch_history_user_time,priority:2"`
}

// TableName overrides the default table name.
func (WatchHistory) TableName() string {
	return "watch_history"
}
