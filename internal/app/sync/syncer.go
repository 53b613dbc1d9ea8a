package sync

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/app/queue"
)

// Syncer debounces snapshot writes. Callers mark the state dirty after
// every user action; the syncer coalesces marks within the debounce
// window into a single save so rapid queue edits do not hammer the
// store.
type Syncer struct {
	engine   *queue.Engine
	store    Store
	debounce time.Duration

	kick chan struct{}
}

// NewSyncer creates a syncer. debounce <= 0 gets a sane default.
func NewSyncer(engine *queue.Engine, store Store, debounce time.Duration) *Syncer {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Syncer{
		engine:   engine,
		store:    store,
		debounce: debounce,
		kick:     make(chan struct{}, 1),
	}
}

// MarkDirty schedules a save. Safe to call from any goroutine; calls
// during a pending window are absorbed.
func (s *Syncer) MarkDirty() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run services the debounce loop until ctx is cancelled. A final flush
// happens on shutdown so the last window is not lost.
func (s *Syncer) Run(ctx context.Context) {
	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			if pending {
				if err := s.Flush(context.Background()); err != nil {
					zlog.Error().Msgf("sync: final flush failed: %v", err)
				}
			}
			return

		case <-s.kick:
			if pending {
				if !timer.Stop() {
					<-timer.C
				}
			}
			timer.Reset(s.debounce)
			pending = true

		case <-timer.C:
			pending = false
			if err := s.Flush(ctx); err != nil {
				zlog.Error().Msgf("sync: save failed: %v", err)
			}
		}
	}
}

// Flush saves the current engine state immediately.
func (s *Syncer) Flush(ctx context.Context) error {
	snapshot := Capture(s.engine.ExportState())
	if err := s.store.Save(ctx, snapshot); err != nil {
		return errors.Wrap(err, "failed to save snapshot")
	}
	zlog.Debug().Msgf("sync: saved snapshot (queue=%d history=%d)", len(snapshot.Queue), len(snapshot.History))
	return nil
}

// Restore loads the persisted snapshot into the engine. A missing
// snapshot is not an error; a snapshot from a newer build is logged
// and skipped rather than half-applied.
func (s *Syncer) Restore(ctx context.Context) error {
	snapshot, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			zlog.Debug().Msg("sync: no snapshot to restore")
			return nil
		}
		return errors.Wrap(err, "failed to load snapshot")
	}

	if snapshot.SchemaVersion > SchemaVersion {
		zlog.Warn().Msgf("sync: snapshot schema %d is newer than supported %d, starting fresh",
			snapshot.SchemaVersion, SchemaVersion)
		return nil
	}

	s.engine.Restore(snapshot.RestoreState())
	zlog.Info().Msgf("sync: restored %d queued and %d played tracks", len(snapshot.Queue), len(snapshot.History))
	return nil
}

// Clear removes the persisted snapshot, e.g. when the user signs out.
func (s *Syncer) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "failed to clear snapshot")
	}
	return nil
}
