package advisor

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/domain/track"
)

// QueueState is the read-only slice of the queue engine the advisor
// needs for seeding and staleness checks.
type QueueState interface {
	Current() (track.QueueEntry, bool)
	Queue() []track.QueueEntry
	History() []track.Track
	Version() uint64
}

// Supplementer adds smart-provenance tracks to the queue and returns
// how many were accepted.
type Supplementer func(tracks []track.Track) int

// Config holds advisor tuning.
type Config struct {
	Enabled   bool
	BatchSize int
}

// Advisor keeps the queue from running dry. When the engine reports
// depletion, it asks the provider chain for candidates seeded by the
// current track, excluding everything already queued or recently
// played, and hands survivors to the engine as smart additions.
//
// Results are fetched without holding any engine lock, so the queue
// can move while a fetch is in flight. The engine version captured
// before the fetch is compared afterwards; stale results are dropped
// rather than appended to a queue the user has since rearranged.
type Advisor struct {
	engine     QueueState
	supplement Supplementer
	chain      *Chain
	config     Config

	mu      sync.Mutex
	running bool
}

// New creates an advisor.
func New(engine QueueState, supplement Supplementer, chain *Chain, cfg Config) *Advisor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	return &Advisor{
		engine:     engine,
		supplement: supplement,
		chain:      chain,
		config:     cfg,
	}
}

// Enabled reports whether the advisor should react to depletion.
func (a *Advisor) Enabled() bool { return a.config.Enabled }

// TopUp fetches candidates and appends them to the queue. It returns
// the number of tracks added. A zero return is normal when providers
// come up empty or the queue moved during the fetch.
func (a *Advisor) TopUp(ctx context.Context) int {
	if !a.config.Enabled {
		return 0
	}

	// Drop overlapping invocations instead of stacking fetches.
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return 0
	}
	a.running = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	seed, ok := a.engine.Current()
	if !ok {
		return 0
	}

	version := a.engine.Version()
	exclude := a.excludeSet()

	candidates, err := a.chain.Candidates(ctx, seed.Track, a.config.BatchSize, exclude)
	if err != nil {
		zlog.Warn().Msgf("advisor: candidate fetch failed: %v", err)
		return 0
	}
	if len(candidates) == 0 {
		zlog.Debug().Msg("advisor: no candidates available")
		return 0
	}

	if a.engine.Version() != version {
		zlog.Debug().Msgf("advisor: queue moved during fetch (version %d -> %d), discarding %d candidates",
			version, a.engine.Version(), len(candidates))
		return 0
	}

	added := a.supplement(candidates)
	zlog.Info().Msgf("advisor: added %d smart tracks seeded by %q", added, seed.Track.Title)
	return added
}

// excludeSet collects every track ID already queued or in history.
func (a *Advisor) excludeSet() map[int64]bool {
	exclude := make(map[int64]bool)
	for _, entry := range a.engine.Queue() {
		exclude[entry.Track.ID] = true
	}
	for _, t := range a.engine.History() {
		exclude[t.ID] = true
	}
	return exclude
}
