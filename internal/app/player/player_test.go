package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yusa21/tunedeck/internal/app/graph"
	"github.com/yusa21/tunedeck/internal/app/loader"
	"github.com/yusa21/tunedeck/internal/app/queue"
	"github.com/yusa21/tunedeck/internal/domain/track"
	"github.com/yusa21/tunedeck/internal/infra/catalog"
	"github.com/yusa21/tunedeck/internal/infra/config"
	"github.com/yusa21/tunedeck/internal/platform/media"
)

func makeTrack(id int64, title, artist string) track.Track {
	return track.Track{
		ID:       id,
		Title:    title,
		Duration: 3 * time.Minute,
		Artist:   track.Artist{ID: id * 100, Name: artist},
		Album:    track.Album{ID: id * 1000, Title: title + " LP"},
	}
}

// stubResolver resolves every track unless told to fail it.
type stubResolver struct {
	mu   sync.Mutex
	errs map[int64]error
}

func (r *stubResolver) fail(id int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs == nil {
		r.errs = map[int64]error{}
	}
	r.errs[id] = err
}

func (r *stubResolver) ResolveStream(_ context.Context, trackID int64) (media.StreamRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs[trackID]; err != nil {
		return media.StreamRef{}, err
	}
	return media.StreamRef{TrackID: trackID, URL: "mem://stream"}, nil
}

type fixture struct {
	player   *Player
	engine   *queue.Engine
	element  *media.MemoryElement
	resolver *stubResolver
	notices  chan string
	cancel   context.CancelFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	engine := queue.NewEngine(queue.Config{})
	element := media.NewMemoryElement("el")
	resolver := &stubResolver{}
	ld := loader.New(element, resolver, CatalogClassifier(), loader.Config{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	})
	registry := graph.NewRegistry(func() media.Context {
		return media.NewMemoryContext()
	})

	notices := make(chan string, 16)
	p, err := New(Deps{
		Engine:   engine,
		Loader:   ld,
		Registry: registry,
		Element:  element,
		Messages: config.MessagesConfig{
			TrackUnavailable: "unavailable",
			ServiceDown:      "service down",
			TrackSkipped:     "skipped",
		},
		Notify: func(msg string) { notices <- msg },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	t.Cleanup(func() {
		cancel()
		p.Close()
	})

	return &fixture{
		player:   p,
		engine:   engine,
		element:  element,
		resolver: resolver,
		notices:  notices,
		cancel:   cancel,
	}
}

func (f *fixture) waitPlaying(t *testing.T, id int64) {
	t.Helper()
	assert.Eventually(t, func() bool {
		ref, ok := f.element.Source()
		return ok && ref.TrackID == id && !f.element.Paused()
	}, time.Second, 2*time.Millisecond, "track %d should be playing", id)
}

func TestPlayer_PlayTrackStartsPlayback(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.PlayTrack(makeTrack(1, "One", "A")))
	f.waitPlaying(t, 1)

	assert.Eventually(t, func() bool {
		return f.engine.IsPlaying()
	}, time.Second, 2*time.Millisecond)
}

func TestPlayer_PauseAndResume(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.PlayTrack(makeTrack(1, "One", "A")))
	f.waitPlaying(t, 1)

	f.player.Pause()
	assert.True(t, f.element.Paused())
	assert.True(t, f.engine.UserPaused())
	assert.False(t, f.engine.IsPlaying())

	f.player.Play()
	assert.False(t, f.element.Paused())
	assert.False(t, f.engine.UserPaused())
	assert.True(t, f.engine.IsPlaying())
}

func TestPlayer_TrackEndedAdvancesQueue(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.PlayTrack(makeTrack(1, "One", "A")))
	f.player.AddToQueue([]track.Track{makeTrack(2, "Two", "B")})
	f.waitPlaying(t, 1)

	f.element.FinishTrack()
	f.waitPlaying(t, 2)

	current, ok := f.engine.Current()
	require.True(t, ok)
	assert.Equal(t, int64(2), current.Track.ID)
}

func TestPlayer_TerminalFailureSkipsTrack(t *testing.T) {
	f := newFixture(t)
	f.resolver.fail(1, catalog.ErrNotFound)

	require.NoError(t, f.player.PlayTrack(makeTrack(1, "One", "A")))
	f.player.AddToQueue([]track.Track{makeTrack(2, "Two", "B")})

	// The failure notice comes first, then the skip confirmation, and
	// playback moves on.
	for _, want := range []string{"unavailable", "skipped"} {
		select {
		case msg := <-f.notices:
			assert.Equal(t, want, msg)
		case <-time.After(time.Second):
			t.Fatalf("expected a %q notice", want)
		}
	}
	f.waitPlaying(t, 2)
}

func TestPlayer_UpstreamOutageKeepsTrack(t *testing.T) {
	f := newFixture(t)
	f.resolver.fail(1, catalog.ErrUnavailable)

	require.NoError(t, f.player.PlayTrack(makeTrack(1, "One", "A")))

	select {
	case msg := <-f.notices:
		assert.Equal(t, "service down", msg)
	case <-time.After(time.Second):
		t.Fatal("expected an outage notice")
	}

	// The track stays current so retrying later can succeed.
	current, ok := f.engine.Current()
	require.True(t, ok)
	assert.Equal(t, int64(1), current.Track.ID)
	assert.False(t, f.engine.IsPlaying())
}

func TestPlayer_PlaybackErrorTriggersReload(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.PlayTrack(makeTrack(1, "One", "A")))
	f.waitPlaying(t, 1)

	f.element.EmitError(errors.New("decode glitch"))
	f.waitPlaying(t, 1)
}

func TestPlayer_VolumeAndMute(t *testing.T) {
	f := newFixture(t)

	f.player.SetVolume(0.3)
	assert.InDelta(t, 0.3, f.engine.Volume(), 0.001)

	assert.True(t, f.player.ToggleMute())
	assert.False(t, f.player.ToggleMute())
}

func TestPlayer_EqualizerAndVisualizerChain(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.EnableEqualizer(true))
	require.NoError(t, f.player.EnableVisualizer(true))

	// source -> eq bands -> analyser -> destination
	src, ok := f.player.conn.Source().(*media.MemoryNode)
	require.True(t, ok)
	var names []string
	for node := media.Node(src); node != nil; {
		mn := node.(*media.MemoryNode)
		names = append(names, mn.Name())
		node = mn.Target()
	}
	assert.Equal(t, []string{
		"source:el", "filter:eq-low", "filter:eq-mid", "filter:eq-high", "analyser", "destination",
	}, names)

	require.NoError(t, f.player.EnableEqualizer(false))
	names = names[:0]
	for node := media.Node(src); node != nil; {
		mn := node.(*media.MemoryNode)
		names = append(names, mn.Name())
		node = mn.Target()
	}
	assert.Equal(t, []string{"source:el", "analyser", "destination"}, names)
}

func TestPlayer_RepairsChainAfterPlay(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.PlayTrack(makeTrack(1, "One", "A")))
	f.waitPlaying(t, 1)

	// Sever the chain behind the registry's back; the next successful
	// load must put it back together.
	src, ok := f.player.conn.Source().(*media.MemoryNode)
	require.True(t, ok)
	src.Disconnect()
	require.Nil(t, src.Target())

	f.player.AddToQueue([]track.Track{makeTrack(2, "Two", "B")})
	f.element.FinishTrack()
	f.waitPlaying(t, 2)

	assert.Eventually(t, func() bool {
		target, ok := src.Target().(*media.MemoryNode)
		return ok && target.Name() == "destination"
	}, time.Second, 2*time.Millisecond, "chain should be reconnected after the play attempt")
}

func TestPlayer_DegradesWithoutGraph(t *testing.T) {
	engine := queue.NewEngine(queue.Config{})
	element := media.NewMemoryElement("el")
	element.ClaimSource() // someone else owns the source slot
	ld := loader.New(element, &stubResolver{}, CatalogClassifier(), loader.Config{})
	registry := graph.NewRegistry(func() media.Context {
		return media.NewMemoryContext()
	})

	p, err := New(Deps{Engine: engine, Loader: ld, Registry: registry, Element: element})
	require.NoError(t, err)
	defer p.Close()

	assert.Nil(t, p.conn)
	assert.NoError(t, p.EnableEqualizer(true))
	assert.NoError(t, p.EnableVisualizer(true))
}

func TestPlayer_SwitchUserClearsEverything(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.PlayTrack(makeTrack(1, "One", "A")))
	f.player.AddToQueue([]track.Track{makeTrack(2, "Two", "B")})
	f.waitPlaying(t, 1)

	require.NoError(t, f.player.SwitchUser(context.Background()))

	assert.True(t, f.element.Paused())
	assert.Empty(t, f.engine.Queue())
	assert.Empty(t, f.engine.History())
}
