package assistant

import (
	"encoding/json"
	"regexp"
	"strings"
)

const maxLocalResults = 6

var (
	jsonArrayPattern  = regexp.MustCompile(`(?s)\[.*\]`)
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	searchVerbPattern = regexp.MustCompile(`search|find|scan|movies|movie|for`)
)

// LocalKeywordSearch returns up to six ids whose title, tags or description contain query.
func LocalKeywordSearch(query string, movies []Movie) []ID {
	q := strings.ToLower(query)
	ids := make([]ID, 0, maxLocalResults)
	for _, movie := range movies {
		if len(ids) == maxLocalResults {
			break
		}
		if movieMatches(movie, q) {
			ids = append(ids, movie.ID)
		}
	}
	return ids
}

func movieMatches(movie Movie, q string) bool {
	if strings.Contains(strings.ToLower(movie.Title), q) {
		return true
	}
	for _, tag := range movie.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return movie.Description != "" && strings.Contains(strings.ToLower(movie.Description), q)
}

// parseIDArray decodes the first [...] span of text.
func parseIDArray(text string) ([]ID, bool) {
	match := jsonArrayPattern.FindString(text)
	if match == "" {
		return nil, false
	}
	var ids []ID
	if err := json.Unmarshal([]byte(match), &ids); err != nil {
		return nil, false
	}
	if ids == nil {
		ids = []ID{}
	}
	return ids, true
}

// parseProfileObject decodes the first {...} span of text.
func parseProfileObject(text string) (*ProfileAnalysis, bool) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil, false
	}
	var analysis ProfileAnalysis
	if err := json.Unmarshal([]byte(match), &analysis); err != nil {
		return nil, false
	}
	return &analysis, true
}

// searchQuery strips the search verbs from a lowercased chat message.
func searchQuery(lowerMsg string) string {
	return strings.TrimSpace(searchVerbPattern.ReplaceAllString(lowerMsg, ""))
}

func wantsSearch(lowerMsg string) bool {
	return strings.Contains(lowerMsg, "search") || strings.Contains(lowerMsg, "find") || strings.Contains(lowerMsg, "scan")
}
