package advisor

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/domain/track"
	"github.com/yusa21/tunedeck/internal/infra/spotify"
)

// Recommender defines the Spotify operations the provider needs.
type Recommender interface {
	Recommend(ctx context.Context, seedTitle, seedArtist string, limit int) ([]spotify.Suggestion, error)
}

// Searcher resolves a free-text query to catalog tracks.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// SpotifyProviderConfig holds spotify-provider settings.
type SpotifyProviderConfig struct {
	SuggestionLimit int `yaml:"suggestion_limit" mapstructure:"suggestion_limit" default:"10" validate:"gte=1,lte=50"`
}

// SpotifyProvider asks Spotify for recommendations seeded by the
// current track, then resolves each suggestion back to a playable
// catalog track through the search service. Suggestions that cannot be
// resolved are skipped.
type SpotifyProvider struct {
	recommender Recommender
	searcher    Searcher
	config      SpotifyProviderConfig
}

// NewSpotifyProvider creates a Spotify-backed provider.
func NewSpotifyProvider(recommender Recommender, searcher Searcher, settings map[string]any) (*SpotifyProvider, error) {
	if recommender == nil {
		return nil, errors.New("spotify client is required")
	}
	if searcher == nil {
		return nil, errors.New("catalog search client is required")
	}

	var config SpotifyProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &SpotifyProvider{recommender: recommender, searcher: searcher, config: config}, nil
}

// Name implements Provider.
func (p *SpotifyProvider) Name() string { return "spotify" }

// Candidates implements Provider.
func (p *SpotifyProvider) Candidates(ctx context.Context, seed track.Track, count int, exclude map[int64]bool) ([]track.Track, error) {
	suggestions, err := p.recommender.Recommend(ctx, seed.Title, seed.Artist.Name, p.config.SuggestionLimit)
	if err != nil {
		return nil, errors.Wrap(err, "spotify recommendations")
	}

	result := make([]track.Track, 0, count)
	for _, s := range suggestions {
		if len(result) >= count {
			break
		}
		matches, err := p.searcher.Search(ctx, fmt.Sprintf("%s %s", s.Artist, s.Title), 1)
		if err != nil {
			zlog.Debug().Msgf("advisor: resolving %q by %q failed: %v", s.Title, s.Artist, err)
			continue
		}
		if len(matches) == 0 {
			continue
		}
		t := matches[0]
		if exclude[t.ID] || !t.Complete() {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}
