package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusa21/tunedeck/internal/domain/track"
)

func makeTrack(id int64, title string, artistID int64) track.Track {
	return track.Track{
		ID:       id,
		Title:    title,
		Duration: 200 * time.Second,
		Artist:   track.Artist{ID: artistID, Name: "Artist"},
		Album:    track.Album{ID: 1, Title: "Album"},
	}
}

func newTestEngine() *Engine {
	return NewEngine(Config{DepletionThreshold: 1})
}

func queueIDs(e *Engine) []int64 {
	entries := e.Queue()
	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.Track.ID
	}
	return ids
}

func historyIDs(e *Engine) []int64 {
	tracks := e.History()
	ids := make([]int64, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

func TestPlayTrackInvalid(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	err := e.PlayTrack(track.Track{ID: 1})
	assert.ErrorIs(t, err, ErrInvalidTrack)
	assert.Empty(t, e.Queue())
}

func TestPlayTrackReplacesHeadKeepsRest(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2), makeTrack(3, "C", 3)}, true)
	require.NoError(t, e.PlayTrack(makeTrack(9, "New", 9)))

	// New head replaces the old one; the upcoming entries survive.
	assert.Equal(t, []int64{9, 2, 3}, queueIDs(e))
	assert.Equal(t, []int64{1}, historyIDs(e))
}

func TestPlayTrackAlreadyInQueueDelegates(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2), makeTrack(3, "C", 3)}, true)
	require.NoError(t, e.PlayTrack(makeTrack(3, "C", 3)))

	assert.Equal(t, []int64{3}, queueIDs(e))
	assert.Equal(t, []int64{1, 2}, historyIDs(e))
}

func TestPlayTrackSameHeadRestarts(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)
	e.SetProgress(90*time.Second, 200*time.Second)

	require.NoError(t, e.PlayTrack(makeTrack(1, "A", 1)))

	assert.Equal(t, []int64{1, 2}, queueIDs(e))
	assert.Empty(t, historyIDs(e))
}

func TestPlayFromIndex(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{
		makeTrack(1, "A", 1), makeTrack(2, "B", 2), makeTrack(3, "C", 3), makeTrack(4, "D", 4),
	}, true)

	head, err := e.PlayFromIndex(2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), head.Track.ID)
	assert.Equal(t, []int64{3, 4}, queueIDs(e))
	assert.Equal(t, []int64{1, 2}, historyIDs(e))

	_, err = e.PlayFromIndex(10)
	assert.ErrorIs(t, err, ErrIndexRange)
}

func TestPlayNextThenPrevious(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)

	next := e.PlayNext()
	require.NotNil(t, next)
	assert.Equal(t, int64(2), next.Track.ID)
	assert.Equal(t, []int64{2}, queueIDs(e))
	assert.Equal(t, []int64{1}, historyIDs(e))

	// Previous restores the old head and keeps the track that was
	// playing at position 1 instead of dropping it.
	prev := e.PlayPrevious()
	require.NotNil(t, prev)
	assert.Equal(t, int64(1), prev.Track.ID)
	assert.Equal(t, []int64{1, 2}, queueIDs(e))
	assert.Empty(t, historyIDs(e))
}

func TestPlayNextRequiresUpcoming(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	assert.Nil(t, e.PlayNext())

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1)}, true)
	assert.Nil(t, e.PlayNext())
	assert.Equal(t, []int64{1}, queueIDs(e))
}

func TestPlayPreviousEmptyHistory(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1)}, true)
	assert.Nil(t, e.PlayPrevious())
	assert.Equal(t, []int64{1}, queueIDs(e))
}

func TestAddToQueueDuplicateIdempotent(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	tr := makeTrack(1, "A", 1)
	first := e.AddToQueue([]track.Track{tr}, true)
	assert.Len(t, first.Added, 1)

	second := e.AddToQueue([]track.Track{tr}, true)
	assert.Empty(t, second.Added)
	assert.Len(t, second.Duplicates, 1)
	assert.Equal(t, []int64{1}, queueIDs(e))
}

func TestAddToQueueDuplicatesAllowedWhenDisabled(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	tr := makeTrack(1, "A", 1)
	e.AddToQueue([]track.Track{tr}, true)
	report := e.AddToQueue([]track.Track{tr}, false)

	assert.Len(t, report.Added, 1)
	assert.Equal(t, []int64{1, 1}, queueIDs(e))

	// Same track, distinct queue slots.
	entries := e.Queue()
	assert.NotEqual(t, entries[0].SlotID, entries[1].SlotID)
}

func TestAddToQueueRejectsInvalid(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	report := e.AddToQueue([]track.Track{{ID: 5}, makeTrack(1, "A", 1)}, true)
	assert.Len(t, report.Invalid, 1)
	assert.Len(t, report.Added, 1)
	assert.Equal(t, []int64{1}, queueIDs(e))
}

func TestAddToPlayNext(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)
	e.AddToPlayNext([]track.Track{makeTrack(3, "C", 3)})

	assert.Equal(t, []int64{1, 3, 2}, queueIDs(e))
}

func TestAddSupplementalProvenance(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1)}, true)
	e.AddSupplemental([]track.Track{makeTrack(2, "B", 2)})

	entries := e.Queue()
	require.Len(t, entries, 2)
	assert.Equal(t, track.ProvenanceUser, entries[0].Source)
	assert.Equal(t, track.ProvenanceSmart, entries[1].Source)
}

func TestRemoveFromQueueRejectsHead(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)

	assert.ErrorIs(t, e.RemoveFromQueue(0), ErrHeadImmutable)
	assert.NoError(t, e.RemoveFromQueue(1))
	assert.Equal(t, []int64{1}, queueIDs(e))
	assert.ErrorIs(t, e.RemoveFromQueue(1), ErrIndexRange)
}

func TestReorderQueueRejectsHead(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{
		makeTrack(1, "A", 1), makeTrack(2, "B", 2), makeTrack(3, "C", 3), makeTrack(4, "D", 4),
	}, true)

	assert.ErrorIs(t, e.ReorderQueue(0, 2), ErrHeadImmutable)
	assert.ErrorIs(t, e.ReorderQueue(2, 0), ErrHeadImmutable)

	require.NoError(t, e.ReorderQueue(1, 3))
	assert.Equal(t, []int64{1, 3, 4, 2}, queueIDs(e))
}

func TestClearQueueKeepsHead(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)
	e.ClearQueue()
	assert.Equal(t, []int64{1}, queueIDs(e))

	e.ClearQueueAndHistory()
	assert.Empty(t, e.Queue())
	assert.Empty(t, e.History())
	assert.Equal(t, StatusEmpty, e.Status())
}

func TestToggleShuffleRoundTrip(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	tracks := []track.Track{
		makeTrack(1, "A", 1), makeTrack(2, "B", 2), makeTrack(3, "C", 2),
		makeTrack(4, "D", 3), makeTrack(5, "E", 3), makeTrack(6, "F", 4),
	}
	e.AddToQueue(tracks, true)
	before := queueIDs(e)

	assert.True(t, e.ToggleShuffle())
	assert.Equal(t, int64(1), queueIDs(e)[0], "head never moves on shuffle")
	assert.ElementsMatch(t, before, queueIDs(e))

	assert.False(t, e.ToggleShuffle())
	assert.Equal(t, before, queueIDs(e), "disable restores the pre-shuffle order exactly")
}

func TestCycleRepeatMode(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	assert.Equal(t, RepeatAll, e.CycleRepeatMode())
	assert.Equal(t, RepeatOne, e.CycleRepeatMode())
	assert.Equal(t, RepeatNone, e.CycleRepeatMode())
}

func TestCleanQueueIdempotent(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)
	e.AddToQueue([]track.Track{makeTrack(2, "B", 2), makeTrack(3, "C", 3)}, false)

	removed := e.CleanQueue()
	assert.Equal(t, 1, removed)
	assert.Equal(t, []int64{1, 2, 3}, queueIDs(e))

	assert.Equal(t, 0, e.CleanQueue(), "second pass is a no-op")
	assert.Equal(t, []int64{1, 2, 3}, queueIDs(e))
}

func TestHandleTrackEndedAdvances(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2), makeTrack(3, "C", 3)}, true)

	e.HandleTrackEnded()
	assert.Equal(t, []int64{2, 3}, queueIDs(e))
	assert.Equal(t, []int64{1}, historyIDs(e))

	e.HandleTrackEnded()
	assert.Equal(t, []int64{3}, queueIDs(e))
	assert.Equal(t, []int64{1, 2}, historyIDs(e))

	// Last track ends with repeat off: playback stops, queue keeps its
	// single entry, end of queue is reported.
	e.SetPlaying(true)
	drainEvents(e)
	e.HandleTrackEnded()
	assert.Equal(t, []int64{3}, queueIDs(e))
	assert.False(t, e.IsPlaying())
	assert.True(t, sawEvent(e, EventQueueEnded))
}

func TestHandleTrackEndedRepeatOne(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)
	e.CycleRepeatMode() // all
	e.CycleRepeatMode() // one

	e.HandleTrackEnded()
	assert.Equal(t, []int64{1, 2}, queueIDs(e), "repeat-one restarts the same head")
	assert.Empty(t, historyIDs(e))
}

func TestHandleTrackEndedRepeatAllRefills(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(10, "X", 1), makeTrack(11, "Y", 2), makeTrack(12, "A", 3)}, true)
	e.CycleRepeatMode() // all
	e.HandleTrackEnded()
	e.HandleTrackEnded()
	require.Equal(t, []int64{12}, queueIDs(e))
	require.Equal(t, []int64{10, 11}, historyIDs(e))

	e.HandleTrackEnded()
	assert.Equal(t, []int64{10, 11, 12}, queueIDs(e))
	assert.Empty(t, historyIDs(e))
}

func TestRestoreDoesNotResume(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)
	e.SetUserPaused(true)
	state := e.ExportState()

	restored := newTestEngine()
	defer restored.Close()
	restored.Restore(state)

	assert.Equal(t, []int64{1, 2}, queueIDs(restored))
	assert.True(t, restored.UserPaused())
	assert.False(t, restored.IsPlaying())
}

func TestVersionAdvancesOnMutation(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	v0 := e.Version()
	e.AddToQueue([]track.Track{makeTrack(1, "A", 1)}, true)
	v1 := e.Version()
	assert.Greater(t, v1, v0)

	e.SetVolume(0.5)
	assert.Greater(t, e.Version(), v1)
}

func TestDepletionEvent(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2), makeTrack(3, "C", 3)}, true)
	drainEvents(e)

	e.HandleTrackEnded() // two entries left, one upcoming: at threshold
	assert.True(t, sawEvent(e, EventQueueDepleting))
}

func TestSetVolumeClamps(t *testing.T) {
	e := newTestEngine()
	defer e.Close()

	e.SetVolume(1.8)
	assert.Equal(t, 1.0, e.Volume())
	e.SetVolume(-0.3)
	assert.Equal(t, 0.0, e.Volume())
}

func TestCloseIsSafeAgainstLateOperations(t *testing.T) {
	e := NewEngine(Config{CleanInterval: time.Millisecond})
	e.AddToQueue([]track.Track{makeTrack(1, "A", 1), makeTrack(2, "B", 2)}, true)

	e.Close()

	// Operations racing Close (the maintenance tick included) must not
	// send on the closed channel.
	assert.NotPanics(t, func() {
		e.AddToQueue([]track.Track{makeTrack(3, "C", 3)}, true)
		e.CleanQueue()
		e.ClearQueue()
		e.Close()
	})
	time.Sleep(5 * time.Millisecond)
}

// drainEvents discards everything buffered on the event channel.
func drainEvents(e *Engine) {
	for {
		select {
		case <-e.Events():
		default:
			return
		}
	}
}

// sawEvent reports whether an event of type t is currently buffered.
func sawEvent(e *Engine, t EventType) bool {
	for {
		select {
		case ev := <-e.Events():
			if ev.Type == t {
				return true
			}
		default:
			return false
		}
	}
}
