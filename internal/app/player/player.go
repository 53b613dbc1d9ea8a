// Package player coordinates the queue engine, track loader, audio
// graph and session persistence behind one playback facade.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/app/advisor"
	"github.com/yusa21/tunedeck/internal/app/graph"
	"github.com/yusa21/tunedeck/internal/app/loader"
	"github.com/yusa21/tunedeck/internal/app/queue"
	appsync "github.com/yusa21/tunedeck/internal/app/sync"
	"github.com/yusa21/tunedeck/internal/domain/track"
	"github.com/yusa21/tunedeck/internal/infra/config"
	"github.com/yusa21/tunedeck/internal/platform/media"
)

// Notifier surfaces playback problems to the user. Transient outage
// and skipped-track messages come from configuration.
type Notifier func(message string)

// Deps are the collaborators the player coordinates. Advisor and
// Syncer are optional; the rest are required.
type Deps struct {
	Engine   *queue.Engine
	Loader   *loader.Loader
	Registry *graph.Registry
	Element  media.Element
	Advisor  *advisor.Advisor
	Syncer   *appsync.Syncer
	Messages config.MessagesConfig
	Notify   Notifier
}

// Player is the playback coordinator. All user-facing operations go
// through it; the event loop in Run reconciles the engine, the loader
// and the platform element with each other.
type Player struct {
	engine   *queue.Engine
	loader   *loader.Loader
	registry *graph.Registry
	element  media.Element
	advisor  *advisor.Advisor
	syncer   *appsync.Syncer
	messages config.MessagesConfig
	notify   Notifier

	// Graph state, guarded by graphMu: the event loop rebuilds the
	// chain after loads while user calls toggle the stages. conn is nil
	// when the element's source slot was already taken; playback then
	// runs without the processing graph.
	graphMu   sync.Mutex
	conn      *graph.Connection
	equalizer []media.Node
	analyser  media.Node
}

// equalizer band layout when enabled.
var equalizerBands = []string{"eq-low", "eq-mid", "eq-high"}

// New creates the coordinator and acquires the audio graph connection.
// A taken source slot degrades to graphless playback instead of
// failing.
func New(deps Deps) (*Player, error) {
	if deps.Engine == nil || deps.Loader == nil || deps.Registry == nil || deps.Element == nil {
		return nil, errors.New("engine, loader, registry and element are required")
	}
	if deps.Notify == nil {
		deps.Notify = func(message string) {
			zlog.Info().Msgf("player: %s", message)
		}
	}

	p := &Player{
		engine:   deps.Engine,
		loader:   deps.Loader,
		registry: deps.Registry,
		element:  deps.Element,
		advisor:  deps.Advisor,
		syncer:   deps.Syncer,
		messages: deps.Messages,
		notify:   deps.Notify,
	}

	conn, err := deps.Registry.Acquire(deps.Element)
	if err != nil {
		if errors.Is(err, media.ErrSourceTaken) {
			zlog.Warn().Msg("player: element already bound, running without audio graph")
		} else {
			return nil, errors.Wrap(err, "failed to acquire audio graph")
		}
	} else {
		p.conn = conn
	}

	return p, nil
}

// Run drives the event loop until ctx is cancelled.
func (p *Player) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-p.engine.Events():
			if !ok {
				return
			}
			p.handleEngineEvent(ctx, ev)

		case outcome, ok := <-p.loader.Outcomes():
			if !ok {
				return
			}
			p.handleOutcome(outcome)

		case ev, ok := <-p.element.Events():
			if !ok {
				return
			}
			p.handleElementEvent(ev)
		}
	}
}

func (p *Player) handleEngineEvent(ctx context.Context, ev queue.Event) {
	switch ev.Type {
	case queue.EventCurrentChanged:
		if ev.Entry != nil {
			p.engine.SetLoading(true)
			p.loader.SyncWithCurrent(ev.Entry.Track, p.engine.UserPaused())
		}
		p.markDirty()

	case queue.EventQueueChanged, queue.EventStateChanged:
		p.markDirty()

	case queue.EventQueueDepleting:
		if p.advisor != nil && p.advisor.Enabled() {
			go p.advisor.TopUp(ctx)
		}

	case queue.EventQueueEnded:
		p.element.Pause()
		p.markDirty()
	}
}

func (p *Player) handleOutcome(outcome loader.Outcome) {
	switch outcome.Class {
	case loader.ClassNone:
		p.engine.SetLoading(false)
		p.engine.SetHasSource(true)
		p.engine.SetPlaying(!p.engine.UserPaused())
		p.repairChain()

	case loader.ClassTerminal:
		zlog.Warn().Msgf("player: track %d failed permanently: %v", outcome.Track.ID, outcome.Err)
		p.notify(p.messages.TrackUnavailable)
		p.engine.SetLoading(false)
		p.engine.SetHasSource(false)
		p.skipUnplayable(outcome.Track.ID)

	case loader.ClassUpstream:
		zlog.Warn().Msgf("player: stream service unavailable for track %d: %v", outcome.Track.ID, outcome.Err)
		p.notify(p.messages.ServiceDown)
		p.engine.SetLoading(false)
		p.engine.SetPlaying(false)

	default:
		// Transient outcomes are handled inside the loader's retry
		// budget; anything else surfacing here is a bug worth seeing.
		zlog.Error().Msgf("player: unexpected outcome class %s for track %d", outcome.Class, outcome.Track.ID)
	}
}

// skipUnplayable advances past a permanently failed track, but only if
// it is still the current one; last-intent-wins may already have moved
// the queue on.
func (p *Player) skipUnplayable(id int64) {
	current, ok := p.engine.Current()
	if !ok || current.Track.ID != id {
		return
	}
	p.engine.HandleTrackEnded()
	p.notify(p.messages.TrackSkipped)
}

func (p *Player) handleElementEvent(ev media.Event) {
	switch ev.Type {
	case media.EventEnded:
		p.engine.HandleTrackEnded()

	case media.EventTimeUpdate:
		p.engine.SetProgress(ev.Position, p.element.Duration())

	case media.EventError:
		zlog.Warn().Msgf("player: playback error at %s: %v", ev.Position, ev.Err)
		p.engine.SetPlaying(false)
		if current, ok := p.engine.Current(); ok {
			p.loader.Load(current.Track, !p.engine.UserPaused())
		}
	}
}

// Restore hydrates persisted state and reconciles the element with it.
// Playback never auto-resumes from a restore.
func (p *Player) Restore(ctx context.Context) error {
	if p.syncer == nil {
		return nil
	}
	if err := p.syncer.Restore(ctx); err != nil {
		return err
	}
	if current, ok := p.engine.Current(); ok {
		p.loader.SyncWithCurrent(current.Track, true)
	}
	return nil
}

// PlayTrack plays t immediately. If t is already current, playback
// restarts from the beginning.
func (p *Player) PlayTrack(t track.Track) error {
	current, hadCurrent := p.engine.Current()
	if err := p.engine.PlayTrack(t); err != nil {
		return err
	}
	if hadCurrent && current.Track.ID == t.ID {
		p.element.Seek(0)
		p.resume()
	}
	return nil
}

// PlayFromIndex promotes the queue entry at i to now playing.
func (p *Player) PlayFromIndex(i int) error {
	_, err := p.engine.PlayFromIndex(i)
	return err
}

// Next skips to the next queued track. No-op on a single-entry queue.
func (p *Player) Next() {
	p.engine.PlayNext()
}

// Previous returns to the most recently played track.
func (p *Player) Previous() {
	p.engine.PlayPrevious()
}

// Play resumes playback as an explicit user action.
func (p *Player) Play() {
	p.engine.SetUserPaused(false)
	p.resume()
}

// Pause pauses playback as an explicit user action.
func (p *Player) Pause() {
	p.engine.SetUserPaused(true)
	p.element.Pause()
	p.engine.SetPlaying(false)
}

func (p *Player) resume() {
	if err := p.element.Play(); err != nil {
		zlog.Warn().Msgf("player: resume failed: %v", err)
		return
	}
	p.engine.SetPlaying(true)
}

// Seek jumps to pos in the current track.
func (p *Player) Seek(pos time.Duration) {
	p.element.Seek(pos)
	p.engine.SetProgress(p.element.Position(), p.element.Duration())
}

// SetVolume sets the output volume in [0, 1].
func (p *Player) SetVolume(v float64) {
	p.engine.SetVolume(v)
	p.element.SetVolume(p.engine.Volume())
}

// ToggleMute flips the mute flag and returns the new value.
func (p *Player) ToggleMute() bool {
	muted := p.engine.ToggleMute()
	p.element.SetMuted(muted)
	return muted
}

// SetRate sets the playback rate.
func (p *Player) SetRate(rate float64) {
	p.engine.SetRate(rate)
	p.element.SetRate(rate)
}

// AddToQueue appends tracks as explicit user additions.
func (p *Player) AddToQueue(tracks []track.Track) queue.AddReport {
	return p.engine.AddToQueue(tracks, true)
}

// AddToPlayNext inserts tracks right after the current one.
func (p *Player) AddToPlayNext(tracks []track.Track) queue.AddReport {
	return p.engine.AddToPlayNext(tracks)
}

// RemoveFromQueue removes the entry at i. The now-playing entry cannot
// be removed.
func (p *Player) RemoveFromQueue(i int) error {
	return p.engine.RemoveFromQueue(i)
}

// ReorderQueue moves an upcoming entry to a new position.
func (p *Player) ReorderQueue(from, to int) error {
	return p.engine.ReorderQueue(from, to)
}

// ClearQueue drops the upcoming entries, keeping the current track.
func (p *Player) ClearQueue() {
	p.engine.ClearQueue()
}

// ToggleShuffle flips shuffle mode and returns the new value.
func (p *Player) ToggleShuffle() bool {
	return p.engine.ToggleShuffle()
}

// CycleRepeatMode advances the repeat mode and returns the new one.
func (p *Player) CycleRepeatMode() queue.RepeatMode {
	return p.engine.CycleRepeatMode()
}

// EnableEqualizer inserts or removes the equalizer stages. Without a
// graph connection this is a logged no-op.
func (p *Player) EnableEqualizer(enabled bool) error {
	p.graphMu.Lock()
	defer p.graphMu.Unlock()

	if p.conn == nil {
		zlog.Warn().Msg("player: no audio graph, equalizer unavailable")
		return nil
	}

	if enabled && p.equalizer == nil {
		bands := make([]media.Node, 0, len(equalizerBands))
		for _, name := range equalizerBands {
			node, err := p.conn.Context().CreateFilter(name)
			if err != nil {
				return errors.Wrapf(err, "failed to create %s", name)
			}
			bands = append(bands, node)
		}
		p.equalizer = bands
	} else if !enabled {
		p.equalizer = nil
	}

	return p.rebuildChainLocked()
}

// EnableVisualizer inserts or removes the analyser tap. Without a
// graph connection this is a logged no-op.
func (p *Player) EnableVisualizer(enabled bool) error {
	p.graphMu.Lock()
	defer p.graphMu.Unlock()

	if p.conn == nil {
		zlog.Warn().Msg("player: no audio graph, visualizer unavailable")
		return nil
	}

	if enabled && p.analyser == nil {
		node, err := p.conn.Context().CreateAnalyser()
		if err != nil {
			return errors.Wrap(err, "failed to create analyser")
		}
		p.analyser = node
	} else if !enabled {
		p.analyser = nil
	}

	return p.rebuildChainLocked()
}

func (p *Player) rebuildChainLocked() error {
	if err := p.registry.Verify(p.conn); err != nil {
		return errors.Wrap(err, "audio graph unusable")
	}
	return p.registry.RebuildChain(p.conn, p.equalizer, p.analyser)
}

// repairChain runs after a successful load. The platform exposes no
// edge-level introspection, so Verify can only rule out a dead
// connection; the chain itself is reconnected unconditionally to clear
// any silent disconnect left behind by a platform hiccup.
func (p *Player) repairChain() {
	p.graphMu.Lock()
	defer p.graphMu.Unlock()

	if p.conn == nil {
		return
	}
	p.registry.EnsureRunning(p.conn)
	if err := p.rebuildChainLocked(); err != nil {
		zlog.Warn().Msgf("player: audio graph repair failed: %v", err)
	}
}

// SwitchUser clears all playback state for an account change.
func (p *Player) SwitchUser(ctx context.Context) error {
	p.element.Pause()
	p.engine.ClearQueueAndHistory()
	if p.syncer != nil {
		if err := p.syncer.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Flush persists the current state immediately.
func (p *Player) Flush(ctx context.Context) error {
	if p.syncer == nil {
		return nil
	}
	return p.syncer.Flush(ctx)
}

// Close releases the loader, the graph connection and the engine.
func (p *Player) Close() {
	p.loader.Close()
	p.graphMu.Lock()
	if p.conn != nil {
		p.registry.Release(p.element)
		p.conn = nil
	}
	p.graphMu.Unlock()
	p.engine.Close()
}

func (p *Player) markDirty() {
	if p.syncer != nil {
		p.syncer.MarkDirty()
	}
}
