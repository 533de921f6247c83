package assistant

import (
	"bytes"
	"encoding/json"
	"regexp"
)

var jsonNumberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// ID identifies a catalog title. Catalog ids arrive as JSON numbers or strings and are echoed back in the same form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if jsonNumberPattern.MatchString(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Movie is a catalog entry the assistant may recommend.
type Movie struct {
	ID          ID       `json:"id"`
	Title       string   `json:"title"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`
	Moods       []string `json:"moods,omitempty"`
	IsIndie     bool     `json:"isIndie,omitempty"`
}

// Profile holds the caller's stated preferences.
type Profile struct {
	PreferredMoods  []string `json:"preferred_moods"`
	PreferredGenres []string `json:"preferred_genres"`
}

// ProfileAnalysis is the assistant's reading of a watch history.
type ProfileAnalysis struct {
	CurrentMood            string   `json:"currentMood"`
	PreferredGenres        []string `json:"preferredGenres"`
	SuggestedCategoryOrder []string `json:"suggestedCategoryOrder"`
}
