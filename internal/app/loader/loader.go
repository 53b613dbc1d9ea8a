// Package loader turns "the now-playing track changed" into "the output
// element has the right source attached and playing", tolerating
// transient failures with bounded exponential backoff. Overlapping loads
// are resolved by a monotonically increasing generation counter: only
// the newest load's result is ever applied, older in-flight attempts are
// abandoned silently.
package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/domain/track"
	"github.com/yusa21/tunedeck/internal/platform/media"
)

// Errors
var (
	// ErrAborted marks attempts superseded by a newer load. Never
	// user-visible; logged at debug at most.
	ErrAborted = errors.New("load superseded")

	// ErrUpstream marks the stream service as temporarily unavailable.
	// Retried; never blacklists the track.
	ErrUpstream = errors.New("stream service temporarily unavailable")

	// ErrBlacklisted rejects tracks that already failed permanently.
	ErrBlacklisted = errors.New("track permanently failed")

	// ErrRetriesExhausted reports that the attempt budget ran out.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// FailureClass buckets load failures for propagation policy.
type FailureClass int

const (
	ClassNone      FailureClass = iota // Success
	ClassAborted                       // Superseded; suppressed
	ClassTransient                     // Attach hiccup; retried, exhaustion blacklists
	ClassUpstream                      // Temporary upstream outage; retried, never blacklists
	ClassTerminal                      // Not-found/unsupported or budget exhausted; blacklisted
)

// String returns the string representation of the failure class.
func (c FailureClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassAborted:
		return "aborted"
	case ClassTransient:
		return "transient"
	case ClassUpstream:
		return "upstream"
	case ClassTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome is the settled result of a load request. Aborted attempts
// never produce an outcome.
type Outcome struct {
	Track track.Track
	Err   error // nil on success
	Class FailureClass
}

// Resolver resolves a track ID to a playable stream reference.
// Terminal failures (not found, unsupported) must be distinguishable
// from temporary upstream outages via errors.Is.
type Resolver interface {
	ResolveStream(ctx context.Context, trackID int64) (media.StreamRef, error)
}

// Classifier maps a resolve error to a failure class. The catalog
// client supplies one matching its own sentinels; temporary outages
// map to ClassUpstream, not-found to ClassTerminal.
type Classifier func(err error) FailureClass

// Config holds loader configuration.
type Config struct {
	MaxAttempts  int           // Attempt budget per load (default 3)
	BaseDelay    time.Duration // First backoff delay (default 500ms)
	MaxDelay     time.Duration // Backoff cap (default 8s)
	ReadyTimeout time.Duration // Bound on waiting for the source to become playable (default 10s)
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 8 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 10 * time.Second
	}
}

// Loader attaches resolved streams to the output element.
type Loader struct {
	element  media.Element
	resolver Resolver
	classify Classifier
	config   Config

	gen atomic.Uint64

	mu     sync.Mutex
	failed map[int64]struct{} // Permanently-failed track IDs

	outcomes chan Outcome

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a loader for the given element and resolver.
func New(element media.Element, resolver Resolver, classify Classifier, config Config) *Loader {
	config.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		element:  element,
		resolver: resolver,
		classify: classify,
		config:   config,
		failed:   make(map[int64]struct{}),
		outcomes: make(chan Outcome, 8),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Outcomes returns the settled-result channel.
func (l *Loader) Outcomes() <-chan Outcome {
	return l.outcomes
}

// Close abandons any in-flight load.
func (l *Loader) Close() {
	l.gen.Add(1)
	l.cancel()
}

// Blacklisted reports whether the track ID has failed permanently.
func (l *Loader) Blacklisted(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.failed[id]
	return ok
}

// Load starts loading t, superseding any in-flight load. When autoplay
// is set, playback starts as soon as the source is ready.
func (l *Loader) Load(t track.Track, autoplay bool) {
	gen := l.gen.Add(1)
	go l.run(gen, t, autoplay)
}

// SyncWithCurrent reconciles the element with the now-playing track. A
// mismatched source triggers a load; a matching but paused source is
// resumed unless the pause was an explicit user action (the restored-
// session case never overrides user intent).
func (l *Loader) SyncWithCurrent(t track.Track, userPaused bool) {
	if ref, ok := l.element.Source(); ok && ref.TrackID == t.ID {
		if l.element.Paused() && !userPaused {
			if err := l.element.Play(); err != nil {
				zlog.Warn().Msgf("loader: resume after restore: %v", err)
			}
		}
		return
	}
	l.Load(t, !userPaused)
}

// run drives one load through the retry state machine:
// Idle -> Attempting -> Backoff(n) -> ... -> FailedTerminal.
func (l *Loader) run(gen uint64, t track.Track, autoplay bool) {
	if l.Blacklisted(t.ID) {
		l.emit(gen, Outcome{
			Track: t,
			Err:   errors.Wrapf(ErrBlacklisted, "track %d", t.ID),
			Class: ClassTerminal,
		})
		return
	}

	for attempt := 1; ; attempt++ {
		if l.superseded(gen) {
			zlog.Debug().Msgf("loader: load of track %d superseded before attempt %d", t.ID, attempt)
			return
		}

		err := l.attempt(gen, t, autoplay)
		if err == nil {
			l.emit(gen, Outcome{Track: t, Class: ClassNone})
			return
		}
		if errors.Is(err, ErrAborted) || l.superseded(gen) {
			zlog.Debug().Msgf("loader: discarding late result for track %d: %v", t.ID, err)
			return
		}

		class := l.classifyError(err)
		if class == ClassTerminal {
			l.blacklist(t.ID)
			l.emit(gen, Outcome{Track: t, Err: err, Class: ClassTerminal})
			return
		}

		if attempt >= l.config.MaxAttempts {
			if class == ClassUpstream {
				// Upstream outages never blacklist: the next explicit
				// request gets a fresh attempt budget.
				l.emit(gen, Outcome{
					Track: t,
					Err:   errors.Wrapf(ErrUpstream, "track %d after %d attempts", t.ID, attempt),
					Class: ClassUpstream,
				})
				return
			}
			l.blacklist(t.ID)
			l.emit(gen, Outcome{
				Track: t,
				Err:   errors.Wrapf(ErrRetriesExhausted, "track %d after %d attempts", t.ID, attempt),
				Class: ClassTerminal,
			})
			return
		}

		delay := l.backoff(attempt)
		zlog.Debug().Msgf("loader: attempt %d/%d for track %d failed (%v), backing off %v",
			attempt, l.config.MaxAttempts, t.ID, err, delay)

		select {
		case <-time.After(delay):
		case <-l.ctx.Done():
			return
		}
		// The backoff timer itself is subject to the generation check;
		// the loop head re-checks before the next attempt.
	}
}

// attempt resolves and attaches one time. Generation is re-checked
// after every asynchronous step.
func (l *Loader) attempt(gen uint64, t track.Track, autoplay bool) error {
	ref, err := l.resolver.ResolveStream(l.ctx, t.ID)
	if err != nil {
		return err
	}
	if l.superseded(gen) {
		return ErrAborted
	}

	loadCtx, cancel := context.WithTimeout(l.ctx, l.config.ReadyTimeout)
	defer cancel()
	if err := l.element.Load(loadCtx, ref); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.Wrapf(err, "source not ready within %v", l.config.ReadyTimeout)
		}
		return err
	}
	if l.superseded(gen) {
		return ErrAborted
	}

	if autoplay {
		if err := l.element.Play(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) classifyError(err error) FailureClass {
	switch {
	case errors.Is(err, media.ErrUnsupported):
		return ClassTerminal
	case l.classify != nil:
		if class := l.classify(err); class != ClassNone {
			return class
		}
	}
	// Unclassified attach failures are treated as transient and retried
	// against the budget.
	return ClassTransient
}

func (l *Loader) backoff(attempt int) time.Duration {
	delay := l.config.BaseDelay << uint(attempt-1)
	if delay > l.config.MaxDelay || delay <= 0 {
		delay = l.config.MaxDelay
	}
	return delay
}

func (l *Loader) superseded(gen uint64) bool {
	return l.gen.Load() != gen
}

func (l *Loader) blacklist(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed[id] = struct{}{}
}

// emit delivers an outcome unless the load was superseded meanwhile.
func (l *Loader) emit(gen uint64, o Outcome) {
	if l.superseded(gen) {
		zlog.Debug().Msgf("loader: suppressing stale outcome for track %d", o.Track.ID)
		return
	}
	select {
	case l.outcomes <- o:
	case <-l.ctx.Done():
	default:
		zlog.Warn().Msg("loader: outcome channel full, dropping")
	}
}
