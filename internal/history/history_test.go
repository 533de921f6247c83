package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/film4u/film4u-ai/internal/assistant"
	"github.com/film4u/film4u-ai/internal/db"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "history-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewGormStore(conn)
}

func TestEntryFromMovie(t *testing.T) {
	entry := EntryFromMovie(assistant.Movie{ID: "12", Tags: []string{"Thriller", "Drama"}, Language: "Malayalam", IsIndie: true})
	if entry.MovieID != "12" || entry.MovieType != "indie" || entry.Genre != "Thriller" || entry.Language != "Malayalam" {
		t.Fatalf("unexpected entry %+v", entry)
	}

	bare := EntryFromMovie(assistant.Movie{ID: "13"})
	if bare.MovieType != "ott" || bare.Genre != "Unknown" || bare.Language != "English" {
		t.Fatalf("unexpected defaults %+v", bare)
	}
}

func TestGormStoreTrackAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	for i, genre := range []string{"Drama", "Comedy", "Thriller"} {
		entry := Entry{MovieID: string(rune('a' + i)), MovieType: "ott", Genre: genre, Language: "Malayalam", WatchedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.Track(ctx, "u1", entry); err != nil {
			t.Fatalf("track %d: %v", i, err)
		}
	}
	if err := store.Track(ctx, "u2", Entry{MovieID: "z", Genre: "Horror", Language: "English", WatchedAt: base}); err != nil {
		t.Fatalf("track other user: %v", err)
	}

	entries, err := store.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 || entries[0].Genre != "Thriller" || entries[1].Genre != "Comedy" {
		t.Fatalf("expected newest first, got %+v", entries)
	}
	if !entries[0].WatchedAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected watched_at %v", entries[0].WatchedAt)
	}

	all, err := store.Recent(ctx, "u1", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected default limit to return all 3, got %d err=%v", len(all), err)
	}
	ranking := ForRanking(all)
	if ranking[2].Genre != "Drama" || ranking[2].Language != "Malayalam" {
		t.Fatalf("unexpected ranking projection %+v", ranking)
	}
}

func TestGormStoreStampsWatchedAt(t *testing.T) {
	store := newTestStore(t)
	stamp := time.Date(2025, 5, 1, 18, 30, 0, 0, time.UTC)
	store.nowFn = func() time.Time { return stamp }

	if err := store.Track(context.Background(), "u1", Entry{MovieID: "1", Genre: "Drama", Language: "English"}); err != nil {
		t.Fatalf("track: %v", err)
	}
	entries, err := store.Recent(context.Background(), "u1", 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("recent: %d err=%v", len(entries), err)
	}
	if !entries[0].WatchedAt.Equal(stamp) {
		t.Fatalf("expected stamped time %v, got %v", stamp, entries[0].WatchedAt)
	}
}

func TestGormStoreRequiresUser(t *testing.T) {
	store := newTestStore(t)
	if err := store.Track(context.Background(), " ", Entry{MovieID: "1"}); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if _, err := store.Recent(context.Background(), "", 5); !errors.Is(err, ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
	if err := store.Track(context.Background(), "u1", Entry{}); err == nil {
		t.Fatalf("expected error for missing movie id")
	}
}
