package advisor

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/yusa21/tunedeck/internal/domain/track"
)

// SimilarClient defines the catalog operations the similar provider needs.
type SimilarClient interface {
	Similar(ctx context.Context, seedID int64, count int) ([]track.Track, error)
}

// SimilarProviderConfig holds similar-provider settings.
type SimilarProviderConfig struct {
	FetchFactor int `yaml:"fetch_factor" mapstructure:"fetch_factor" default:"2" validate:"gte=1,lte=5"`
}

// SimilarProvider recommends tracks via the catalog's similar-tracks
// service, seeded by the current track. Over-fetches by FetchFactor so
// that exclusions still leave enough candidates.
type SimilarProvider struct {
	catalog SimilarClient
	config  SimilarProviderConfig
}

// NewSimilarProvider creates a similar-tracks provider.
func NewSimilarProvider(catalog SimilarClient, settings map[string]any) (*SimilarProvider, error) {
	if catalog == nil {
		return nil, errors.New("catalog client is required")
	}

	var config SimilarProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &SimilarProvider{catalog: catalog, config: config}, nil
}

// Name implements Provider.
func (p *SimilarProvider) Name() string { return "similar" }

// Candidates implements Provider.
func (p *SimilarProvider) Candidates(ctx context.Context, seed track.Track, count int, exclude map[int64]bool) ([]track.Track, error) {
	fetched, err := p.catalog.Similar(ctx, seed.ID, count*p.config.FetchFactor)
	if err != nil {
		return nil, errors.Wrapf(err, "similar tracks for %d", seed.ID)
	}

	result := make([]track.Track, 0, count)
	for _, t := range fetched {
		if len(result) >= count {
			break
		}
		if exclude[t.ID] || !t.Complete() {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}
