package queue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/domain/track"
)

// Errors
var (
	ErrInvalidTrack  = errors.New("track is missing required fields")
	ErrHeadImmutable = errors.New("now-playing entry cannot be removed or reordered")
	ErrIndexRange    = errors.New("queue index out of range")
)

// Config holds engine configuration.
type Config struct {
	CleanInterval      time.Duration // Interval for the self-healing clean pass (0 disables)
	DepletionThreshold int           // Upcoming-entry count at or below which EventQueueDepleting fires
	EventBuffer        int           // Event channel capacity
}

// AddReport describes the outcome of an add operation. Rejected tracks
// are returned so the caller can surface per-track feedback.
type AddReport struct {
	Added      []track.QueueEntry
	Duplicates []track.Track
	Invalid    []track.Track
}

// RestoreState is the engine state carried across sessions.
type RestoreState struct {
	Queue         []track.QueueEntry
	History       []track.Track
	OriginalOrder []track.QueueEntry
	Shuffled      bool
	Repeat        RepeatMode
	Volume        float64
	Muted         bool
	Rate          float64
	Position      time.Duration
	UserPaused    bool
}

// Engine owns the playback queue. queue[0], whenever the queue is
// non-empty, is the now-playing entry; it changes only through the
// transition operations (PlayTrack, PlayNext, PlayPrevious,
// PlayFromIndex, HandleTrackEnded). History holds previously-played
// tracks oldest first and never contains the current head.
type Engine struct {
	mu sync.RWMutex

	queue         []track.QueueEntry
	history       []track.Track
	originalOrder []track.QueueEntry // Pre-shuffle order of queue[1:]

	isPlaying   bool
	isLoading   bool
	isShuffled  bool
	repeat      RepeatMode
	currentTime time.Duration
	duration    time.Duration
	volume      float64
	muted       bool
	rate        float64

	// hasSource tracks whether the output element has a loaded source;
	// userPaused records an explicit pause intent. Kept separate so a
	// restored session is only auto-resumed when the user had not
	// paused it.
	hasSource  bool
	userPaused bool

	version           uint64
	depletionNotified bool

	config  Config
	rng     *rand.Rand
	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates an empty engine.
func NewEngine(config Config) *Engine {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 32
	}
	if config.DepletionThreshold <= 0 {
		config.DepletionThreshold = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		queue:   make([]track.QueueEntry, 0),
		history: make([]track.Track, 0),
		volume:  1.0,
		rate:    1.0,
		config:  config,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		eventCh: make(chan Event, config.EventBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	if config.CleanInterval > 0 {
		go e.maintenanceLoop(config.CleanInterval)
	}
	return e
}

// Events returns the event channel.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Close stops the maintenance loop and closes the event channel. The
// channel is closed under the engine lock so an in-flight operation can
// never send on it afterwards; Close is idempotent.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.eventCh)
}

// PlayTrack makes t the now-playing entry. A track already at the head
// restarts from zero; a track elsewhere in the queue is promoted via
// PlayFromIndex; anything else replaces the head, moving the old head to
// history while queue[1:] is preserved.
func (e *Engine) PlayTrack(t track.Track) error {
	if !t.Complete() {
		return errors.Wrapf(ErrInvalidTrack, "track %d", t.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) > 0 && e.queue[0].Track.ID == t.ID {
		// Same track: restart from time zero.
		e.currentTime = 0
		e.bumpLocked()
		e.sendEventLocked(EventCurrentChanged)
		return nil
	}

	if idx := e.indexOfLocked(t.ID); idx > 0 {
		e.playFromIndexLocked(idx)
		return nil
	}

	entry := track.NewEntry(t, track.ProvenanceUser)
	if len(e.queue) == 0 {
		e.queue = append(e.queue, entry)
	} else {
		e.history = append(e.history, e.queue[0].Track)
		e.queue[0] = entry
	}
	e.currentTime = 0
	e.bumpLocked()
	e.sendEventLocked(EventCurrentChanged)
	e.checkDepletionLocked()
	return nil
}

// PlayFromIndex promotes the entry at index i to the head. Entries at
// positions [0, i) move to the tail of history in their original order;
// entries after i are retained unchanged.
func (e *Engine) PlayFromIndex(i int) (*track.QueueEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.queue) {
		return nil, errors.Wrapf(ErrIndexRange, "index %d, queue length %d", i, len(e.queue))
	}
	if i == 0 {
		head := e.queue[0]
		return &head, nil
	}
	e.playFromIndexLocked(i)
	head := e.queue[0]
	return &head, nil
}

func (e *Engine) playFromIndexLocked(i int) {
	for _, entry := range e.queue[:i] {
		e.history = append(e.history, entry.Track)
	}
	e.queue = e.queue[i:]
	e.currentTime = 0
	e.bumpLocked()
	e.sendEventLocked(EventCurrentChanged)
	e.checkDepletionLocked()
}

// PlayNext advances to the next upcoming entry. The old head moves to
// the tail of history. Returns nil without changing anything when there
// is no upcoming entry.
func (e *Engine) PlayNext() *track.QueueEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playNextLocked()
}

func (e *Engine) playNextLocked() *track.QueueEntry {
	if len(e.queue) < 2 {
		return nil
	}
	e.history = append(e.history, e.queue[0].Track)
	e.queue = e.queue[1:]
	e.currentTime = 0
	e.bumpLocked()
	e.sendEventLocked(EventCurrentChanged)
	e.checkDepletionLocked()
	head := e.queue[0]
	return &head
}

// PlayPrevious pops the most recent history track and inserts it as the
// new head. The old head is not discarded: it shifts to position 1.
// Returns nil when history is empty.
func (e *Engine) PlayPrevious() *track.QueueEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) == 0 {
		return nil
	}
	last := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]

	entry := track.NewEntry(last, track.ProvenanceUser)
	e.queue = append([]track.QueueEntry{entry}, e.queue...)
	e.currentTime = 0
	e.bumpLocked()
	e.sendEventLocked(EventCurrentChanged)
	return &entry
}

// AddToQueue validates tracks and appends the survivors to the tail.
// Incomplete tracks are dropped, and with checkDuplicates any track ID
// already present in the queue (or earlier in the same batch) is dropped
// too; rejects are reported for caller feedback.
func (e *Engine) AddToQueue(tracks []track.Track, checkDuplicates bool) AddReport {
	return e.add(tracks, track.ProvenanceUser, checkDuplicates, false)
}

// AddSupplemental appends advisor-provided tracks with smart provenance.
// Duplicate checking is always on for supplemental tracks.
func (e *Engine) AddSupplemental(tracks []track.Track) AddReport {
	return e.add(tracks, track.ProvenanceSmart, true, false)
}

// AddToPlayNext validates tracks and inserts the survivors immediately
// after the now-playing entry, before the previously-first upcoming one.
func (e *Engine) AddToPlayNext(tracks []track.Track) AddReport {
	return e.add(tracks, track.ProvenanceUser, true, true)
}

func (e *Engine) add(tracks []track.Track, source track.Provenance, checkDuplicates, playNext bool) AddReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var report AddReport
	seen := make(map[int64]bool, len(e.queue))
	for _, entry := range e.queue {
		seen[entry.Track.ID] = true
	}

	hadHead := len(e.queue) > 0
	for _, t := range tracks {
		if !t.Complete() {
			report.Invalid = append(report.Invalid, t)
			continue
		}
		if checkDuplicates && seen[t.ID] {
			report.Duplicates = append(report.Duplicates, t)
			continue
		}
		seen[t.ID] = true
		report.Added = append(report.Added, track.NewEntry(t, source))
	}
	if len(report.Added) == 0 {
		return report
	}

	if playNext && len(e.queue) > 1 {
		rest := append([]track.QueueEntry{}, e.queue[1:]...)
		e.queue = append(e.queue[:1], append(report.Added, rest...)...)
	} else {
		e.queue = append(e.queue, report.Added...)
	}

	e.depletionNotified = false
	e.bumpLocked()
	e.sendEventLocked(EventQueueChanged)
	if !hadHead {
		e.sendEventLocked(EventCurrentChanged)
	}
	return report
}

// RemoveFromQueue removes the entry at index i. The now-playing entry
// cannot be removed through this path; use a transition operation.
func (e *Engine) RemoveFromQueue(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i == 0 {
		return ErrHeadImmutable
	}
	if i < 0 || i >= len(e.queue) {
		return errors.Wrapf(ErrIndexRange, "index %d, queue length %d", i, len(e.queue))
	}
	e.queue = append(e.queue[:i], e.queue[i+1:]...)
	e.bumpLocked()
	e.sendEventLocked(EventQueueChanged)
	e.checkDepletionLocked()
	return nil
}

// ReorderQueue performs a stable move of the entry at from to position
// to. Index 0 is rejected on either side.
func (e *Engine) ReorderQueue(from, to int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if from == 0 || to == 0 {
		return ErrHeadImmutable
	}
	if from < 0 || from >= len(e.queue) || to < 0 || to >= len(e.queue) {
		return errors.Wrapf(ErrIndexRange, "from %d to %d, queue length %d", from, to, len(e.queue))
	}
	if from == to {
		return nil
	}
	entry := e.queue[from]
	e.queue = append(e.queue[:from], e.queue[from+1:]...)
	rest := append([]track.QueueEntry{}, e.queue[to:]...)
	e.queue = append(e.queue[:to], append([]track.QueueEntry{entry}, rest...)...)
	e.bumpLocked()
	e.sendEventLocked(EventQueueChanged)
	return nil
}

// ClearQueue discards all upcoming entries. The now-playing entry, if
// any, is untouched.
func (e *Engine) ClearQueue() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) > 1 {
		e.queue = e.queue[:1]
	}
	e.originalOrder = nil
	e.bumpLocked()
	e.sendEventLocked(EventQueueChanged)
}

// ClearQueueAndHistory resets the engine to its initial empty state.
// Invoked at session boundaries (user sign-in/out/switch).
func (e *Engine) ClearQueueAndHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = e.queue[:0]
	e.history = e.history[:0]
	e.originalOrder = nil
	e.isShuffled = false
	e.isPlaying = false
	e.hasSource = false
	e.userPaused = false
	e.currentTime = 0
	e.duration = 0
	e.bumpLocked()
	e.sendEventLocked(EventCurrentChanged)
	e.sendEventLocked(EventQueueChanged)
}

// ToggleShuffle enables or disables shuffle. Enabling snapshots the
// upcoming entries and applies the artist-diversity shuffle; disabling
// restores the snapshot exactly.
func (e *Engine) ToggleShuffle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isShuffled {
		if len(e.queue) > 1 {
			e.originalOrder = append([]track.QueueEntry{}, e.queue[1:]...)
			shuffled := diversityShuffle(e.queue[1:], e.rng)
			e.queue = append(e.queue[:1], shuffled...)
		}
		e.isShuffled = true
	} else {
		if e.originalOrder != nil {
			e.queue = append(e.queue[:1], e.originalOrder...)
		}
		e.originalOrder = nil
		e.isShuffled = false
	}
	e.bumpLocked()
	e.sendEventLocked(EventQueueChanged)
	e.sendEventLocked(EventStateChanged)
	return e.isShuffled
}

// CycleRepeatMode advances none -> all -> one -> none.
func (e *Engine) CycleRepeatMode() RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.repeat = e.repeat.Next()
	e.bumpLocked()
	e.sendEventLocked(EventStateChanged)
	return e.repeat
}

// RemoveDuplicates drops entries whose track ID already appeared earlier
// in the queue. The head is always the first occurrence of itself, so it
// is never removed. Idempotent.
func (e *Engine) RemoveDuplicates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replaceQueueLocked(dedupeEntries(e.queue))
}

// CleanInvalidTracks drops upcoming entries whose track fails the
// completeness predicate. The head is preserved regardless: it only
// changes through transition operations. Idempotent.
func (e *Engine) CleanInvalidTracks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replaceQueueLocked(dropInvalidEntries(e.queue))
}

// CleanQueue removes invalid entries then duplicates as a single queue
// replacement. Run periodically as self-healing; a clean queue is left
// untouched.
func (e *Engine) CleanQueue() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replaceQueueLocked(dedupeEntries(dropInvalidEntries(e.queue)))
}

// replaceQueueLocked swaps in the cleaned queue and returns how many
// entries were removed. No event is emitted when nothing changed.
func (e *Engine) replaceQueueLocked(cleaned []track.QueueEntry) int {
	removed := len(e.queue) - len(cleaned)
	if removed == 0 {
		return 0
	}
	e.queue = cleaned
	e.bumpLocked()
	e.sendEventLocked(EventQueueChanged)
	e.checkDepletionLocked()
	return removed
}

func dropInvalidEntries(entries []track.QueueEntry) []track.QueueEntry {
	result := make([]track.QueueEntry, 0, len(entries))
	for i, entry := range entries {
		if i == 0 || entry.Track.Complete() {
			result = append(result, entry)
		}
	}
	return result
}

func dedupeEntries(entries []track.QueueEntry) []track.QueueEntry {
	seen := make(map[int64]bool, len(entries))
	result := make([]track.QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if seen[entry.Track.ID] {
			continue
		}
		seen[entry.Track.ID] = true
		result = append(result, entry)
	}
	return result
}

// HandleTrackEnded drives the end-of-track transition. Repeat-one
// restarts the head; otherwise the engine advances, refills from history
// under repeat-all, or stops and reports end of queue.
func (e *Engine) HandleTrackEnded() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return
	}

	switch {
	case e.repeat == RepeatOne:
		e.currentTime = 0
		e.bumpLocked()
		e.sendEventLocked(EventCurrentChanged)

	case len(e.queue) > 1:
		e.playNextLocked()

	case e.repeat == RepeatAll && len(e.history) > 0:
		refill := make([]track.QueueEntry, 0, len(e.history)+1)
		for _, t := range e.history {
			refill = append(refill, track.NewEntry(t, track.ProvenanceUser))
		}
		refill = append(refill, e.queue[0])
		e.queue = refill
		e.history = e.history[:0]
		e.currentTime = 0
		e.bumpLocked()
		e.sendEventLocked(EventCurrentChanged)
		e.sendEventLocked(EventQueueChanged)

	default:
		e.isPlaying = false
		e.bumpLocked()
		e.sendEventLocked(EventQueueEnded)
		e.sendEventLocked(EventStateChanged)
	}
}

// Current returns a copy of the now-playing entry.
func (e *Engine) Current() (track.QueueEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.queue) == 0 {
		return track.QueueEntry{}, false
	}
	return e.queue[0], true
}

// Queue returns a copy of the full queue, head first.
func (e *Engine) Queue() []track.QueueEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]track.QueueEntry, len(e.queue))
	copy(result, e.queue)
	return result
}

// History returns a copy of the history, oldest first.
func (e *Engine) History() []track.Track {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]track.Track, len(e.history))
	copy(result, e.history)
	return result
}

// Status derives the engine playback status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	switch {
	case len(e.queue) == 0:
		return StatusEmpty
	case e.isPlaying:
		return StatusPlaying
	default:
		return StatusPaused
	}
}

// Version returns the monotonically increasing state version. Async
// consumers capture it before a fetch and discard results when it moved.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// IsShuffled reports whether shuffle is enabled.
func (e *Engine) IsShuffled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isShuffled
}

// Repeat returns the repeat mode.
func (e *Engine) Repeat() RepeatMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.repeat
}

// IsPlaying reports whether playback is active.
func (e *Engine) IsPlaying() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isPlaying
}

// UserPaused reports whether the user explicitly paused playback.
func (e *Engine) UserPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userPaused
}

// Volume returns the current volume in [0,1].
func (e *Engine) Volume() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.volume
}

// SetPlaying records the play/pause state reported by the output side.
func (e *Engine) SetPlaying(playing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isPlaying == playing {
		return
	}
	e.isPlaying = playing
	e.bumpLocked()
	e.sendEventLocked(EventStateChanged)
}

// SetUserPaused records an explicit user pause intent.
func (e *Engine) SetUserPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.userPaused = paused
	e.bumpLocked()
}

// SetHasSource records whether the output element has a loaded source.
func (e *Engine) SetHasSource(has bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasSource = has
	e.bumpLocked()
}

// SetLoading records whether a load is in flight.
func (e *Engine) SetLoading(loading bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isLoading == loading {
		return
	}
	e.isLoading = loading
	e.bumpLocked()
	e.sendEventLocked(EventStateChanged)
}

// SetProgress records the playback position and duration.
func (e *Engine) SetProgress(position, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentTime = position
	e.duration = duration
}

// SetVolume sets the volume, clamped to [0,1].
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.volume = v
	e.bumpLocked()
	e.sendEventLocked(EventStateChanged)
}

// ToggleMute flips the mute flag.
func (e *Engine) ToggleMute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = !e.muted
	e.bumpLocked()
	e.sendEventLocked(EventStateChanged)
	return e.muted
}

// SetRate sets the playback rate.
func (e *Engine) SetRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rate <= 0 {
		return
	}
	e.rate = rate
	e.bumpLocked()
	e.sendEventLocked(EventStateChanged)
}

// ExportState captures the persistable engine state.
func (e *Engine) ExportState() RestoreState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return RestoreState{
		Queue:         append([]track.QueueEntry{}, e.queue...),
		History:       append([]track.Track{}, e.history...),
		OriginalOrder: append([]track.QueueEntry{}, e.originalOrder...),
		Shuffled:      e.isShuffled,
		Repeat:        e.repeat,
		Volume:        e.volume,
		Muted:         e.muted,
		Rate:          e.rate,
		Position:      e.currentTime,
		UserPaused:    e.userPaused,
	}
}

// Restore hydrates the engine from a persisted snapshot. Playback is
// not resumed here; the loader decides that from the userPaused flag.
func (e *Engine) Restore(rs RestoreState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = append(e.queue[:0], rs.Queue...)
	e.history = append(e.history[:0], rs.History...)
	e.originalOrder = append([]track.QueueEntry{}, rs.OriginalOrder...)
	e.isShuffled = rs.Shuffled
	e.repeat = rs.Repeat
	e.volume = rs.Volume
	e.muted = rs.Muted
	e.rate = rs.Rate
	e.currentTime = rs.Position
	e.userPaused = rs.UserPaused
	e.isPlaying = false
	e.hasSource = false
	e.bumpLocked()
	if len(e.queue) > 0 {
		e.sendEventLocked(EventCurrentChanged)
	}
	e.sendEventLocked(EventQueueChanged)
}

// indexOfLocked returns the queue index of the first entry with the
// given track ID, or -1.
func (e *Engine) indexOfLocked(id int64) int {
	for i, entry := range e.queue {
		if entry.Track.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) bumpLocked() {
	e.version++
}

// checkDepletionLocked fires EventQueueDepleting once when the upcoming
// count drops to the threshold. The flag resets when entries are added.
func (e *Engine) checkDepletionLocked() {
	if e.depletionNotified || len(e.queue) == 0 {
		return
	}
	upcoming := len(e.queue) - 1
	if upcoming <= e.config.DepletionThreshold {
		e.depletionNotified = true
		e.sendEventLocked(EventQueueDepleting)
	}
}

// sendEventLocked sends an event without blocking. Must be called with
// the lock held.
func (e *Engine) sendEventLocked(t EventType) {
	if e.closed {
		return
	}
	var entry *track.QueueEntry
	if len(e.queue) > 0 {
		head := e.queue[0]
		entry = &head
	}
	ev := Event{Type: t, Entry: entry, Status: e.statusLocked(), Version: e.version}

	select {
	case e.eventCh <- ev:
	case <-e.ctx.Done():
	default:
		zlog.Warn().Msgf("queue: event channel full, dropping %s", t)
	}
}

// maintenanceLoop runs the self-healing clean pass on a fixed interval.
func (e *Engine) maintenanceLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if removed := e.CleanQueue(); removed > 0 {
				zlog.Debug().Msgf("queue: clean pass removed %d entries", removed)
			}
		}
	}
}
