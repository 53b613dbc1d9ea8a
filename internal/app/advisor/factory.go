package advisor

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/infra/config"
)

// CatalogClient bundles the catalog operations providers draw on.
type CatalogClient interface {
	SimilarClient
	Searcher
}

// NewChainFromConfig creates a provider chain from configuration.
// recommender may be nil when Spotify credentials are absent; a
// configured spotify provider then fails construction.
func NewChainFromConfig(cfg *config.Config, catalog CatalogClient, recommender Recommender) (*Chain, error) {
	if len(cfg.Advisor.Providers) == 0 {
		return nil, errors.New("no advisor providers configured")
	}

	var providers []Provider

	for i, pcfg := range cfg.Advisor.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating advisor provider: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)
		switch pcfg.Type {
		case "similar":
			provider, err = NewSimilarProvider(catalog, pcfg.Settings)

		case "spotify":
			provider, err = NewSpotifyProvider(recommender, catalog, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, provider)

		zlog.Info().Msgf("registered advisor provider: index=%d type=%s", i+1, pcfg.Type)
	}

	return NewChain(providers...), nil
}
