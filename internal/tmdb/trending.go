package tmdb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRegion is the watch provider country used when none is configured.
	DefaultRegion = "IN"
	// PlatformUnlisted is reported when TMDB lists no subscription provider for the region.
	PlatformUnlisted = "Search Google"
	// PlatformUnknown is reported when the provider lookup fails.
	PlatformUnknown = "Official Platform"

	defaultMood           = "Bored"
	providerLookupWorkers = 4
)

var genreMoods = map[int]string{
	28: "Hype", 12: "Hype", 16: "Comfort", 35: "Comfort", 80: "Dark",
	99: "Nostalgic", 18: "Nostalgic", 10751: "Comfort", 14: "Hype", 36: "Nostalgic",
	27: "Dark", 10402: "Comfort", 9648: "Dark", 10749: "Comfort", 878: "Bored",
	53: "Dark", 10752: "Excited", 37: "Excited",
}

// MoodForGenre maps a TMDB genre id to a discovery mood. Unknown ids read as Bored.
func MoodForGenre(id int) string {
	if mood, ok := genreMoods[id]; ok {
		return mood
	}
	return defaultMood
}

type watchProvidersResponse struct {
	Results map[string]struct {
		Flatrate []struct {
			ProviderName string `json:"provider_name"`
		} `json:"flatrate"`
	} `json:"results"`
}

// WatchProvider returns the first subscription service streaming the title in region,
// or PlatformUnlisted when there is none.
func (c *Client) WatchProvider(ctx context.Context, id int64, mediaType, region string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if mediaType != "tv" {
		mediaType = "movie"
	}
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = c.region
	}

	var payload watchProvidersResponse
	path := "/" + mediaType + "/" + strconv.FormatInt(id, 10) + "/watch/providers"
	if errGet := c.getJSON(ctx, path, nil, &payload); errGet != nil {
		return "", fmt.Errorf("tmdb: watch providers %d: %w", id, errGet)
	}
	if providers, ok := payload.Results[region]; ok && len(providers.Flatrate) > 0 {
		if name := strings.TrimSpace(providers.Flatrate[0].ProviderName); name != "" {
			return name, nil
		}
	}
	return PlatformUnlisted, nil
}

// Trending returns this week's trending movies and series, each tagged with a mood and the
// platform streaming it in the configured region. Results are cached for TrendingTTL; a failed
// refresh serves the previous list when there is one.
func (c *Client) Trending(ctx context.Context) ([]Title, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	c.trendingMu.Lock()
	defer c.trendingMu.Unlock()
	now := c.nowFn()
	if c.trending != nil && c.trendingTTL > 0 && now.Sub(c.trendingAt) < c.trendingTTL {
		return cloneTitles(c.trending), nil
	}

	titles, errFetch := c.fetchTrending(ctx)
	if errFetch != nil {
		if c.trending != nil {
			log.WithError(errFetch).Warn("tmdb: trending refresh failed, serving cached list")
			return cloneTitles(c.trending), nil
		}
		return nil, errFetch
	}
	c.trending = titles
	c.trendingAt = now
	return cloneTitles(titles), nil
}

func (c *Client) fetchTrending(ctx context.Context) ([]Title, error) {
	var payload searchResponse
	if errGet := c.getJSON(ctx, "/trending/all/week", url.Values{}, &payload); errGet != nil {
		return nil, fmt.Errorf("tmdb: trending: %w", errGet)
	}

	items := make([]searchResult, 0, len(payload.Results))
	for _, item := range payload.Results {
		if item.MediaType == "movie" || item.MediaType == "tv" {
			items = append(items, item)
		}
	}
	titles := make([]Title, len(items))
	var group errgroup.Group
	group.SetLimit(providerLookupWorkers)
	for i, item := range items {
		title := c.toTitle(item)
		if strings.TrimSpace(item.Overview) != "" {
			title.Description = "AI Summary: " + item.Overview
		}
		title.Moods = []string{defaultMood}
		if len(item.GenreIDs) > 0 {
			title.Moods[0] = MoodForGenre(item.GenreIDs[0])
		}
		titles[i] = title
		i, item := i, item
		group.Go(func() error {
			platform, errLookup := c.WatchProvider(ctx, item.ID, item.MediaType, c.region)
			if errLookup != nil {
				log.WithError(errLookup).Debug("tmdb: watch provider lookup failed")
				platform = PlatformUnknown
			}
			titles[i].Platform = platform
			return nil
		})
	}
	_ = group.Wait()
	return titles, nil
}

func cloneTitles(titles []Title) []Title {
	out := make([]Title, len(titles))
	copy(out, titles)
	return out
}
