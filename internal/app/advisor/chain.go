package advisor

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/domain/track"
)

// Chain tries providers in order, accumulating candidates until count
// is reached. A failing provider is logged and skipped; the chain as a
// whole only comes up empty when every provider does.
type Chain struct {
	providers []Provider
}

// NewChain creates a provider chain.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Candidates implements Provider over the whole chain.
func (c *Chain) Candidates(ctx context.Context, seed track.Track, count int, exclude map[int64]bool) ([]track.Track, error) {
	var all []track.Track
	seen := make(map[int64]bool, len(exclude))
	for id := range exclude {
		seen[id] = true
	}

	for _, p := range c.providers {
		if len(all) >= count {
			break
		}
		candidates, err := p.Candidates(ctx, seed, count-len(all), seen)
		if err != nil {
			zlog.Warn().Msgf("advisor: provider %s failed, trying next: %v", p.Name(), err)
			continue
		}
		if len(candidates) == 0 {
			zlog.Debug().Msgf("advisor: provider %s returned no candidates", p.Name())
			continue
		}
		for _, t := range candidates {
			if seen[t.ID] || !t.Complete() {
				continue
			}
			seen[t.ID] = true
			all = append(all, t)
		}
		zlog.Debug().Msgf("advisor: provider %s contributed %d candidates (total %d)",
			p.Name(), len(candidates), len(all))
	}

	if len(all) > count {
		all = all[:count]
	}
	return all, nil
}

// Name implements Provider.
func (c *Chain) Name() string { return "chain" }
