// Package catalog provides a client for the catalog service: track
// lookup, stream resolution and similar-track recommendations.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/yusa21/tunedeck/internal/domain/track"
	"github.com/yusa21/tunedeck/internal/platform/media"
)

// Errors
var (
	// ErrNotFound means the track does not exist or has no playable
	// stream. Terminal; not worth retrying.
	ErrNotFound = errors.New("catalog: track not found")

	// ErrUnavailable means the catalog service is temporarily failing
	// or throttling. Transient; safe to retry shortly.
	ErrUnavailable = errors.New("catalog: service temporarily unavailable")
)

// Config represents catalog client configuration.
type Config struct {
	BaseURL   string        // Catalog service base URL
	Timeout   time.Duration // Per-request timeout (default 10s)
	RateLimit float64       // Requests per second (default 10)
}

// Client is a catalog service client. Requests are rate-limited to stay
// inside the service quota.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)),
	}, nil
}

// trackDTO is the catalog wire representation of a track.
type trackDTO struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Duration int64  `json:"duration"` // seconds
	Artist   struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		CoverSmall  string `json:"cover_small"`
		CoverMedium string `json:"cover_medium"`
		CoverBig    string `json:"cover_big"`
		CoverXL     string `json:"cover_xl"`
	} `json:"album"`
}

func (d trackDTO) toDomain() track.Track {
	return track.Track{
		ID:       d.ID,
		Title:    d.Title,
		Duration: time.Duration(d.Duration) * time.Second,
		Artist:   track.Artist{ID: d.Artist.ID, Name: d.Artist.Name},
		Album: track.Album{
			ID:    d.Album.ID,
			Title: d.Album.Title,
			Covers: track.CoverSet{
				Small:  d.Album.CoverSmall,
				Medium: d.Album.CoverMedium,
				Large:  d.Album.CoverBig,
				XL:     d.Album.CoverXL,
			},
		},
	}
}

// ResolveStream resolves a playable stream reference for the track.
func (c *Client) ResolveStream(ctx context.Context, trackID int64) (media.StreamRef, error) {
	var payload struct {
		URL string `json:"url"`
	}
	path := fmt.Sprintf("/tracks/%d/stream", trackID)
	if err := c.get(ctx, path, &payload); err != nil {
		return media.StreamRef{}, err
	}
	if payload.URL == "" {
		return media.StreamRef{}, errors.Wrapf(ErrNotFound, "track %d has no stream", trackID)
	}
	return media.StreamRef{TrackID: trackID, URL: payload.URL}, nil
}

// GetTrack retrieves track information by ID.
func (c *Client) GetTrack(ctx context.Context, trackID int64) (*track.Track, error) {
	var dto trackDTO
	if err := c.get(ctx, fmt.Sprintf("/tracks/%d", trackID), &dto); err != nil {
		return nil, err
	}
	t := dto.toDomain()
	return &t, nil
}

// Similar returns up to count tracks similar to the seed track. An
// empty result is not an error: it means no recommendations exist.
func (c *Client) Similar(ctx context.Context, seedID int64, count int) ([]track.Track, error) {
	if count <= 0 {
		count = 5
	}
	var payload struct {
		Data []trackDTO `json:"data"`
	}
	path := fmt.Sprintf("/tracks/%d/similar?limit=%d", seedID, count)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	tracks := make([]track.Track, 0, len(payload.Data))
	for _, dto := range payload.Data {
		tracks = append(tracks, dto.toDomain())
	}
	return tracks, nil
}

// Search queries the catalog search service and returns matching
// tracks, best match first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 10
	}
	var payload struct {
		Data []trackDTO `json:"data"`
	}
	path := fmt.Sprintf("/search?q=%s&limit=%d", url.QueryEscape(query), limit)
	if err := c.get(ctx, path, &payload); err != nil {
		return nil, err
	}
	tracks := make([]track.Track, 0, len(payload.Data))
	for _, dto := range payload.Data {
		tracks = append(tracks, dto.toDomain())
	}
	return tracks, nil
}

// get performs a rate-limited GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures are treated as temporary outages.
		return errors.Wrapf(ErrUnavailable, "request %s: %v", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return errors.Wrapf(ErrNotFound, "GET %s: status %d", path, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.Wrapf(ErrUnavailable, "GET %s: status %d", path, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("GET %s: unexpected status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response for %s", path)
	}
	zlog.Debug().Msgf("catalog: GET %s ok", path)
	return nil
}
