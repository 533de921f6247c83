// Package history stores the titles signed-in users open, for ranking and profile analysis.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/film4u/film4u-ai/internal/assistant"
	"github.com/film4u/film4u-ai/internal/models"
	"gorm.io/gorm"
)

const (
	// DefaultLimit bounds Recent when the caller asks for no limit.
	DefaultLimit = 50
	// MaxLimit is the most entries Recent returns.
	MaxLimit = 200

	unknownGenre    = "Unknown"
	defaultLanguage = "English"
)

// ErrUserRequired is returned when an entry has no owner.
var ErrUserRequired = errors.New("history: user id is required")

// Entry is one watched title.
type Entry struct {
	MovieID   string    `json:"movie_id"`
	MovieType string    `json:"movie_type"`
	Genre     string    `json:"genre"`
	Language  string    `json:"language"`
	WatchedAt time.Time `json:"watched_at"`
}

// EntryFromMovie records movie the way it is ranked later: its lead tag as the genre,
// English when no language is known, and indie or ott by origin.
func EntryFromMovie(movie assistant.Movie) Entry {
	entry := Entry{
		MovieID:   strings.TrimSpace(string(movie.ID)),
		MovieType: "ott",
		Genre:     unknownGenre,
		Language:  strings.TrimSpace(movie.Language),
	}
	if movie.IsIndie {
		entry.MovieType = "indie"
	}
	if len(movie.Tags) > 0 && strings.TrimSpace(movie.Tags[0]) != "" {
		entry.Genre = strings.TrimSpace(movie.Tags[0])
	}
	if entry.Language == "" {
		entry.Language = defaultLanguage
	}
	return entry
}

// ForRanking projects entries onto the fields the ranking helpers weigh.
func ForRanking(entries []Entry) []assistant.HistoryEntry {
	out := make([]assistant.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, assistant.HistoryEntry{Genre: entry.Genre, Language: entry.Language})
	}
	return out
}

// GormStore keeps watch history in the watch_history table.
type GormStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewGormStore constructs a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, nowFn: time.Now}
}

// Track appends entry to the user's history. A zero WatchedAt is stamped with the current time.
func (s *GormStore) Track(ctx context.Context, userID string, entry Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("history: store not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserRequired
	}
	if entry.MovieID == "" {
		return fmt.Errorf("history: movie id is required")
	}
	watchedAt := entry.WatchedAt
	if watchedAt.IsZero() {
		watchedAt = s.nowFn()
	}
	row := models.WatchHistory{
		UserID:    userID,
		MovieID:   entry.MovieID,
		MovieType: entry.MovieType,
		Genre:     entry.Genre,
		Language:  entry.Language,
		WatchedAt: watchedAt.UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("history: track: %w", errCreate)
	}
	return nil
}

// Recent returns the user's latest entries, newest first.
func (s *GormStore) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("history: store not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserRequired
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	var rows []models.WatchHistory
	errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("watched_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("history: recent: %w", errFind)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, Entry{
			MovieID:   row.MovieID,
			MovieType: row.MovieType,
			Genre:     row.Genre,
			Language:  row.Language,
			WatchedAt: row.WatchedAt,
		})
	}
	return out, nil
}
