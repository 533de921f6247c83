package assistant

import (
	"hash/fnv"
	"sort"
	"strings"
)

// Moods maps each discovery mood to the catalog genres that satisfy it.
var Moods = map[string][]string{
	"Comfort":   {"Comedy", "Animation", "Family", "Music", "Romance"},
	"Dark":      {"Horror", "Crime", "Mystery", "Thriller"},
	"Nostalgic": {"Drama", "History", "Documentary"},
	"Hype":      {"Action", "Adventure", "Fantasy"},
	"Bored":     {"Sci-Fi", "Animation", "Documentary"},
	"Excited":   {"Action", "War", "Crime", "Thriller"},
}

const (
	matchScoreBase       = 50
	matchScoreGenreStep  = 10
	matchScoreGenreMax   = 30
	matchScoreLanguage   = 15
	matchScoreJitter     = 5
	matchScoreCap        = 99
	newViewerScoreFloor  = 70
	newViewerScoreSpread = 26
)

// HistoryEntry is one watched title as the ranking helpers see it.
type HistoryEntry struct {
	Genre    string `json:"genre"`
	Language string `json:"language"`
}

// Category is a named catalog row the client lays out top to bottom.
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Items []ID   `json:"items,omitempty"`
}

// MoviesByMood keeps the movies tagged with one of the mood's genres or labelled with the mood itself.
// An unknown mood only matches explicit labels.
func MoviesByMood(movies []Movie, mood string) []Movie {
	genres := Moods[mood]
	out := make([]Movie, 0, len(movies))
	for _, movie := range movies {
		if containsAny(movie.Tags, genres) || containsAny(movie.Moods, []string{mood}) {
			out = append(out, movie)
		}
	}
	return out
}

// MatchScore estimates how well movie fits a viewer with the given history, as a percentage.
// Viewers without history land between 70 and 95. Otherwise the score starts at 50 and gains
// up to 30 for the lead genre and 15 for the language, capped at 99. The small per-title jitter
// is derived from the movie id so a title keeps its score across requests.
func MatchScore(movie Movie, history []HistoryEntry) int {
	seed := titleSeed(movie)
	if len(history) == 0 {
		return newViewerScoreFloor + int(seed%newViewerScoreSpread)
	}

	genres, languages := countHistory(history)
	score := matchScoreBase
	if len(movie.Tags) > 0 {
		if n := genres[movie.Tags[0]]; n > 0 {
			score += min(n*matchScoreGenreStep, matchScoreGenreMax)
		}
	}
	if movie.Language != "" && languages[movie.Language] > 0 {
		score += matchScoreLanguage
	}
	score += int(seed % matchScoreJitter)
	return min(score, matchScoreCap)
}

// PriorityCategories reorders categories so rows named after the viewer's most watched languages
// and genres come first. A category id matches a language or genre by case-insensitive name;
// ties keep their original order.
func PriorityCategories(history []HistoryEntry, categories []Category) []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	if len(history) == 0 {
		return out
	}

	genres, languages := countHistory(history)
	weights := make(map[string]int, len(genres)+len(languages))
	for name, n := range languages {
		weights[strings.ToLower(name)] += n
	}
	for name, n := range genres {
		weights[strings.ToLower(name)] += n
	}
	sort.SliceStable(out, func(i, j int) bool {
		return weights[strings.ToLower(out[i].ID)] > weights[strings.ToLower(out[j].ID)]
	})
	return out
}

func countHistory(history []HistoryEntry) (genres, languages map[string]int) {
	genres = make(map[string]int)
	languages = make(map[string]int)
	for _, entry := range history {
		if entry.Genre != "" {
			genres[entry.Genre]++
		}
		if entry.Language != "" {
			languages[entry.Language]++
		}
	}
	return genres, languages
}

func titleSeed(movie Movie) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(movie.ID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(movie.Title))
	return h.Sum32()
}

func containsAny(values, wanted []string) bool {
	for _, v := range values {
		for _, w := range wanted {
			if v == w {
				return true
			}
		}
	}
	return false
}
