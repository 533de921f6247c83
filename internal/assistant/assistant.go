// Package assistant answers the Film4u concierge requests after they pass admission control.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/film4u/film4u-ai/internal/guard"
	"github.com/film4u/film4u-ai/internal/tmdb"
	log "github.com/sirupsen/logrus"
)

const (
	maxCatalogItems   = 40
	maxHistoryEntries = 10
	minHistoryEntries = 3
	searchSnippetLen  = 100
)

// Admitter decides whether an AI request may proceed.
type Admitter interface {
	Check(ctx context.Context, caller guard.Caller) (guard.Decision, error)
}

// TitleSearcher looks up titles to ground chat replies.
type TitleSearcher interface {
	SearchMulti(ctx context.Context, query string) ([]tmdb.Title, error)
}

// Service runs the assistant operations. A nil completer puts it in offline mode.
type Service struct {
	guard     Admitter
	completer Completer
	search    TitleSearcher
}

// NewService constructs a Service. completer and search may be nil.
func NewService(admitter Admitter, completer Completer, search TitleSearcher) *Service {
	return &Service{guard: admitter, completer: completer, search: search}
}

// Online reports whether a completion backend is configured.
func (s *Service) Online() bool {
	return s != nil && s.completer != nil
}

func (s *Service) admit(ctx context.Context, caller guard.Caller) error {
	if s.guard == nil {
		return nil
	}
	decision, errCheck := s.guard.Check(ctx, caller)
	if errCheck != nil {
		return fmt.Errorf("assistant: admission: %w", errCheck)
	}
	if !decision.Admitted {
		return &RejectionError{Decision: decision}
	}
	return nil
}

// Chat answers a free-form message.
func (s *Service) Chat(ctx context.Context, caller guard.Caller, message string) (string, error) {
	if errAdmit := s.admit(ctx, caller); errAdmit != nil {
		return "", errAdmit
	}
	if !s.Online() {
		return offlineReply, nil
	}

	lowerMsg := strings.ToLower(strings.TrimSpace(message))
	if _, ok := greetings[lowerMsg]; ok {
		return greetingReply, nil
	}
	for _, phrase := range creatorPhrases {
		if strings.Contains(lowerMsg, phrase) {
			return creatorReply, nil
		}
	}

	system := systemInstructions
	if wantsSearch(lowerMsg) {
		system += s.searchContext(ctx, searchQuery(lowerMsg))
	}

	reply, errComplete := s.completer.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: message},
		},
		Temperature: 0.9,
		MaxTokens:   1000,
	})
	if errComplete != nil {
		return "", errComplete
	}
	return reply, nil
}

func (s *Service) searchContext(ctx context.Context, query string) string {
	if s.search == nil || len(query) <= 2 {
		return ""
	}
	titles, errSearch := s.search.SearchMulti(ctx, query)
	if errSearch != nil {
		log.WithError(errSearch).Warn("assistant: title search failed")
		return ""
	}
	if len(titles) == 0 {
		return ""
	}
	lines := make([]string, 0, len(titles))
	for _, title := range titles {
		lines = append(lines, fmt.Sprintf("%s (%s) - %s...", title.Title, title.ReleaseDate, truncate(title.Description, searchSnippetLen)))
	}
	encoded, errMarshal := json.Marshal(lines)
	if errMarshal != nil {
		return ""
	}
	return fmt.Sprintf("\n\n[REAL-TIME TMDB DATA FOUND]\nHere are the actual search results from TMDB for %q:\n%s\n\nUse this data to answer the user accurately.", query, encoded)
}

// Recommend picks catalog ids matching query. Without a completion backend, or when it fails,
// the local keyword search answers instead.
func (s *Service) Recommend(ctx context.Context, caller guard.Caller, query string, catalog []Movie, profile Profile) ([]ID, error) {
	if errAdmit := s.admit(ctx, caller); errAdmit != nil {
		return nil, errAdmit
	}
	if !s.Online() {
		return s.localSearch(query, catalog), nil
	}

	type catalogItem struct {
		ID    ID       `json:"id"`
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	limit := len(catalog)
	if limit > maxCatalogItems {
		limit = maxCatalogItems
	}
	items := make([]catalogItem, 0, limit)
	for _, movie := range catalog[:limit] {
		items = append(items, catalogItem{ID: movie.ID, Title: movie.Title, Tags: movie.Tags})
	}
	if profile.PreferredMoods == nil {
		profile.PreferredMoods = []string{}
	}
	if profile.PreferredGenres == nil {
		profile.PreferredGenres = []string{}
	}
	profileJSON, errProfile := json.Marshal(struct {
		PreferredMoods  []string `json:"preferredMoods"`
		PreferredGenres []string `json:"preferredGenres"`
	}{profile.PreferredMoods, profile.PreferredGenres})
	catalogJSON, errCatalog := json.Marshal(items)
	if errProfile != nil || errCatalog != nil {
		return s.localSearch(query, catalog), nil
	}

	prompt := fmt.Sprintf("User Profile: %s\nCatalog: %s\nUser Request: %q\n"+
		"For the \"Catalog\" items provided, return ONLY a JSON array of matching movie IDs based on the user request. "+
		"Do not include any text, just the array like [1, 2, 3].", profileJSON, catalogJSON, query)

	reply, errComplete := s.completer.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: systemInstructions},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if errComplete != nil {
		log.WithError(errComplete).Warn("assistant: recommendations fell back to keyword search")
		return s.localSearch(query, catalog), nil
	}
	ids, ok := parseIDArray(reply)
	if !ok {
		return s.localSearch(query, catalog), nil
	}
	return ids, nil
}

func (s *Service) localSearch(query string, catalog []Movie) []ID {
	fallbackSearchesTotal.Inc()
	return LocalKeywordSearch(query, catalog)
}

// Insight answers a question about one title. kind is ending, emotional, vibe or a free-form task.
func (s *Service) Insight(ctx context.Context, caller guard.Caller, movie Movie, kind string) (string, error) {
	if errAdmit := s.admit(ctx, caller); errAdmit != nil {
		return "", errAdmit
	}
	if !s.Online() {
		return discoveryModeText, nil
	}

	task := kind
	if format, ok := insightTasks[strings.TrimSpace(kind)]; ok {
		task = fmt.Sprintf(format, movie.Title)
	}
	return s.completer.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: systemInstructions},
			{Role: "user", Content: fmt.Sprintf("Task: %s\nContext: %s", task, movie.Description)},
		},
		Temperature: 0.8,
		MaxTokens:   512,
	})
}

// AnalyzeProfile infers mood and genre preferences from a watch history.
// Short histories, offline mode and unusable replies all yield a nil analysis.
func (s *Service) AnalyzeProfile(ctx context.Context, caller guard.Caller, history []json.RawMessage) (*ProfileAnalysis, error) {
	if len(history) < minHistoryEntries {
		return nil, nil
	}
	if errAdmit := s.admit(ctx, caller); errAdmit != nil {
		return nil, errAdmit
	}
	if !s.Online() {
		return nil, nil
	}

	if len(history) > maxHistoryEntries {
		history = history[:maxHistoryEntries]
	}
	historyJSON, errMarshal := json.Marshal(history)
	if errMarshal != nil {
		return nil, nil
	}
	reply, errComplete := s.completer.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: profileAnalystInstructions},
			{Role: "user", Content: fmt.Sprintf("History: %s\nAnalyze and return JSON only.", historyJSON)},
		},
		Temperature: 0.5,
		MaxTokens:   512,
	})
	if errComplete != nil {
		log.WithError(errComplete).Warn("assistant: profile analysis failed")
		return nil, nil
	}
	analysis, ok := parseProfileObject(reply)
	if !ok {
		return nil, nil
	}
	return analysis, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
