// Package spotify provides a client for the Spotify recommendations API.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Suggestion is a recommended track as Spotify describes it. Spotify
// IDs do not match catalog IDs, so suggestions carry only the metadata
// needed to resolve them against the catalog.
type Suggestion struct {
	Title  string
	Artist string
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
	)

	// Token with only the refresh token set; the oauth2 transport
	// exchanges it for access tokens as needed.
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	httpClient := auth.Client(ctx, token)
	client := spotify.New(httpClient)

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Recommend returns suggestions seeded by a track title and artist.
// The seed track is located with a search first because the caller
// only knows catalog metadata, not Spotify IDs.
func (c *Client) Recommend(ctx context.Context, seedTitle, seedArtist string, limit int) ([]Suggestion, error) {
	if seedTitle == "" {
		return nil, errors.New("seed title is required")
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	seedID, err := c.findSeedTrack(ctx, seedTitle, seedArtist)
	if err != nil {
		return nil, err
	}

	var recs *spotify.Recommendations
	err = c.retry(func() error {
		r, err := c.client.GetRecommendations(ctx,
			spotify.Seeds{Tracks: []spotify.ID{seedID}},
			nil,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		recs = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recommendations")
	}

	suggestions := make([]Suggestion, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		if t.Name == "" || len(t.Artists) == 0 {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Title:  t.Name,
			Artist: t.Artists[0].Name,
		})
	}

	return suggestions, nil
}

// findSeedTrack searches Spotify for the track and returns its ID.
func (c *Client) findSeedTrack(ctx context.Context, title, artist string) (spotify.ID, error) {
	query := title
	if artist != "" {
		query = fmt.Sprintf("track:%s artist:%s", title, artist)
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to search for seed track")
	}

	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return "", errors.Newf("no spotify match for %q", title)
	}

	return result.Tracks.Tracks[0].ID, nil
}

// retry retries an operation with exponential backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
