// Package tmdb queries The Movie Database for titles the assistant can cite.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const maxSearchResults = 10

var genreNames = map[int]string{
	28: "Action", 12: "Adventure", 16: "Animation", 35: "Comedy", 80: "Crime",
	99: "Documentary", 18: "Drama", 10751: "Family", 14: "Fantasy", 36: "History",
	27: "Horror", 10402: "Music", 9648: "Mystery", 10749: "Romance", 878: "Sci-Fi",
	10770: "TV Movie", 53: "Thriller", 10752: "War", 37: "Western",
}

// ErrNotConfigured indicates the client has no API key.
var ErrNotConfigured = errors.New("tmdb: api key not configured")

// Title is a movie or series search hit.
type Title struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Poster      string   `json:"poster,omitempty"`
	Banner      string   `json:"banner,omitempty"`
	Description string   `json:"description"`
	ReleaseDate string   `json:"releaseDate"`
	Type        string   `json:"type"`
	Language    string   `json:"language"`
	Tags        []string `json:"tags"`
	Moods       []string `json:"moods,omitempty"`
	Platform    string   `json:"platform,omitempty"`
}

// Options configures a Client.
type Options struct {
	APIKey     string
	BaseURL    string
	ImageBase  string
	HTTPClient *http.Client
	// Region is the watch provider country; empty uses IN.
	Region string
	// TrendingTTL caches Trending results; zero disables the cache.
	TrendingTTL time.Duration
}

// Client talks to the TMDB v3 API.
type Client struct {
	apiKey      string
	baseURL     string
	imageBase   string
	region      string
	httpClient  *http.Client
	trendingTTL time.Duration
	nowFn       func() time.Time

	trendingMu sync.Mutex
	trending   []Title
	trendingAt time.Time
}

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}
	imageBase := strings.TrimRight(strings.TrimSpace(opts.ImageBase), "/")
	if imageBase == "" {
		imageBase = "https://image.tmdb.org/t/p"
	}
	region := strings.ToUpper(strings.TrimSpace(opts.Region))
	if region == "" {
		region = DefaultRegion
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		imageBase:   imageBase,
		region:      region,
		httpClient:  httpClient,
		trendingTTL: opts.TrendingTTL,
		nowFn:       time.Now,
	}
}

// Enabled reports whether the client has an API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type searchResult struct {
	ID               int64  `json:"id"`
	MediaType        string `json:"media_type"`
	Title            string `json:"title"`
	Name             string `json:"name"`
	PosterPath       string `json:"poster_path"`
	BackdropPath     string `json:"backdrop_path"`
	Overview         string `json:"overview"`
	ReleaseDate      string `json:"release_date"`
	FirstAirDate     string `json:"first_air_date"`
	OriginalLanguage string `json:"original_language"`
	GenreIDs         []int  `json:"genre_ids"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// SearchMulti returns up to ten movie or series hits for query.
func (c *Client) SearchMulti(ctx context.Context, query string) ([]Title, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	var payload searchResponse
	if errGet := c.getJSON(ctx, "/search/multi", params, &payload); errGet != nil {
		return nil, fmt.Errorf("tmdb: search: %w", errGet)
	}

	titles := make([]Title, 0, maxSearchResults)
	for _, item := range payload.Results {
		if item.MediaType != "movie" && item.MediaType != "tv" {
			continue
		}
		titles = append(titles, c.toTitle(item))
		if len(titles) == maxSearchResults {
			break
		}
	}
	return titles, nil
}

// getJSON issues an authenticated GET for path and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if errReq != nil {
		return fmt.Errorf("build request: %w", errReq)
	}
	req.Header.Set("Accept", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return errDo
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("tmdb: close response body")
		}
	}()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if errRead != nil {
		return fmt.Errorf("read response: %w", errRead)
	}
	if resp.StatusCode != http.StatusOK {
		var status struct {
			StatusMessage string `json:"status_message"`
		}
		if errUnmarshal := json.Unmarshal(body, &status); errUnmarshal == nil && strings.TrimSpace(status.StatusMessage) != "" {
			return errors.New(strings.TrimSpace(status.StatusMessage))
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if errUnmarshal := json.Unmarshal(body, out); errUnmarshal != nil {
		return fmt.Errorf("decode response: %w", errUnmarshal)
	}
	return nil
}

func (c *Client) toTitle(item searchResult) Title {
	title := Title{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Overview,
		ReleaseDate: item.ReleaseDate,
		Type:        "Movie",
		Language:    LanguageName(item.OriginalLanguage),
		Tags:        make([]string, 0, len(item.GenreIDs)),
	}
	if title.Title == "" {
		title.Title = item.Name
	}
	if title.Description == "" {
		title.Description = "No description available."
	}
	if title.ReleaseDate == "" {
		title.ReleaseDate = item.FirstAirDate
	}
	if title.ReleaseDate == "" {
		title.ReleaseDate = "Unknown"
	}
	if item.MediaType == "tv" {
		title.Type = "Series"
	}
	if item.PosterPath != "" {
		title.Poster = c.imageBase + "/w500" + item.PosterPath
	}
	if item.BackdropPath != "" {
		title.Banner = c.imageBase + "/original" + item.BackdropPath
	}
	for _, id := range item.GenreIDs {
		title.Tags = append(title.Tags, GenreName(id))
	}
	return title
}

// GenreName maps a TMDB genre id to a display name. Unknown ids read as Drama.
func GenreName(id int) string {
	if name, ok := genreNames[id]; ok {
		return name
	}
	return "Drama"
}

// LanguageName maps an ISO 639-1 code to the label shown in the catalog.
func LanguageName(code string) string {
	switch code {
	case "ml":
		return "Malayalam"
	case "en":
		return "English"
	default:
		return code
	}
}
