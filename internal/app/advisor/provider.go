// Package advisor provides the auto-queue advisor: when the queue runs
// low it asks recommendation providers for supplemental tracks and
// appends them with smart provenance. The whole feature is optional and
// never fatal: empty or failed results simply mean no supplemental
// tracks this round.
package advisor

import (
	"context"

	"github.com/yusa21/tunedeck/internal/domain/track"
)

// Provider supplies supplemental track candidates. Different
// implementations use different strategies (catalog similar-tracks,
// external recommendation APIs).
type Provider interface {
	// Candidates returns up to count candidate tracks seeded by the
	// given track. IDs in exclude are already queued or played and
	// must not be returned.
	Candidates(ctx context.Context, seed track.Track, count int, exclude map[int64]bool) ([]track.Track, error)

	// Name returns the provider name (used in config).
	Name() string
}
