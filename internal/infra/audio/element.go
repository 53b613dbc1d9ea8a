package audio

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/platform/media"
)

const (
	resampleQuality    = 4
	positionTickPeriod = 500 * time.Millisecond
	eventBuffer        = 16
)

// Config holds output device settings.
type Config struct {
	SampleRate int           // Output sample rate
	BufferSize time.Duration // Speaker buffer length
}

// Element plays resolved streams on the local sound device. The fixed
// pipeline is decode -> resample -> pause control -> volume -> speaker;
// graph nodes over this backend are bookkeeping only (see Context).
type Element struct {
	key string
	sr  beep.SampleRate

	mu        sync.Mutex
	mixer     *beep.Mixer
	volume    *effects.Volume
	ctrl      *beep.Ctrl
	resampler *beep.Resampler
	stream    beep.StreamSeekCloser
	format    beep.Format
	ref       media.StreamRef
	hasRef    bool
	vol       float64
	muted     bool
	rate      float64
	loadGen   uint64

	claimed atomic.Bool
	events  chan media.Event
	httpc   *http.Client
}

// NewElement initializes the speaker and returns the output element.
// Only one element per process; beep owns the device globally.
func NewElement(cfg Config) (*Element, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100 * time.Millisecond
	}

	sr := beep.SampleRate(cfg.SampleRate)
	if err := speaker.Init(sr, sr.N(cfg.BufferSize)); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}

	mixer := &beep.Mixer{}
	vol := &effects.Volume{
		Streamer: mixer,
		Base:     2,
		Volume:   0,
		Silent:   false,
	}
	speaker.Play(vol)

	e := &Element{
		key:    "local-audio",
		sr:     sr,
		mixer:  mixer,
		volume: vol,
		vol:    1,
		rate:   1,
		events: make(chan media.Event, eventBuffer),
		httpc:  &http.Client{},
	}
	go e.positionLoop()
	return e, nil
}

// Key implements media.Element.
func (e *Element) Key() string { return e.key }

// Load implements media.Element. It fetches the stream, decodes it and
// installs it paused; playback starts on Play.
func (e *Element) Load(ctx context.Context, ref media.StreamRef) error {
	decode, err := decoderFor(ref.URL)
	if err != nil {
		return err
	}

	body, err := e.open(ctx, ref.URL)
	if err != nil {
		return err
	}

	stream, format, err := decode(body)
	if err != nil {
		body.Close()
		return errors.CombineErrors(media.ErrUnsupported, err)
	}

	resampler := beep.Resample(resampleQuality, format.SampleRate, e.sr, stream)

	e.mu.Lock()
	defer e.mu.Unlock()

	speaker.Lock()
	if e.stream != nil {
		e.stream.Close()
	}
	e.loadGen++
	gen := e.loadGen

	e.stream = stream
	e.format = format
	e.resampler = resampler
	e.ref = ref
	e.hasRef = true
	e.applyRateLocked()

	e.ctrl = &beep.Ctrl{Streamer: resampler, Paused: true}
	seq := beep.Seq(e.ctrl, beep.Callback(func() {
		go e.handleEnded(gen)
	}))
	e.mixer.Clear()
	e.mixer.Add(seq)
	speaker.Unlock()

	zlog.Debug().Msgf("audio: loaded track %d (%d Hz)", ref.TrackID, format.SampleRate)
	return nil
}

// open fetches the stream body from an http(s) URL or a local path.
func (e *Element) open(ctx context.Context, url string) (io.ReadCloser, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		f, err := os.Open(strings.TrimPrefix(url, "file://"))
		if err != nil {
			return nil, errors.Wrap(err, "failed to open stream file")
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build stream request")
	}
	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch stream")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Newf("unexpected stream status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Source implements media.Element.
func (e *Element) Source() (media.StreamRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ref, e.hasRef
}

// Play implements media.Element.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil {
		return errors.New("no stream loaded")
	}
	speaker.Lock()
	e.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Pause implements media.Element.
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil {
		return
	}
	speaker.Lock()
	e.ctrl.Paused = true
	speaker.Unlock()
}

// Paused implements media.Element.
func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl == nil {
		return true
	}
	speaker.Lock()
	defer speaker.Unlock()
	return e.ctrl.Paused
}

// Seek implements media.Element. Seeking past the end clamps to the
// last sample.
func (e *Element) Seek(pos time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return
	}
	speaker.Lock()
	defer speaker.Unlock()

	n := e.format.SampleRate.N(pos)
	if max := e.stream.Len(); n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	if err := e.stream.Seek(n); err != nil {
		zlog.Warn().Msgf("audio: seek failed: %v", err)
	}
}

// Position implements media.Element.
func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return e.format.SampleRate.D(e.stream.Position())
}

// Duration implements media.Element.
func (e *Element) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return e.format.SampleRate.D(e.stream.Len())
}

// SetVolume implements media.Element. v is linear in [0, 1] and maps
// onto beep's logarithmic scale.
func (e *Element) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vol = v
	e.applyVolumeLocked()
}

// SetMuted implements media.Element.
func (e *Element) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = muted
	e.applyVolumeLocked()
}

func (e *Element) applyVolumeLocked() {
	speaker.Lock()
	defer speaker.Unlock()
	if e.muted || e.vol == 0 {
		e.volume.Silent = true
		return
	}
	e.volume.Silent = false
	e.volume.Volume = e.vol*2 - 1
}

// SetRate implements media.Element.
func (e *Element) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = rate
	speaker.Lock()
	e.applyRateLocked()
	speaker.Unlock()
}

// applyRateLocked scales the resample ratio so rate 1.0 is natural
// speed regardless of the source sample rate.
func (e *Element) applyRateLocked() {
	if e.resampler == nil {
		return
	}
	base := float64(e.format.SampleRate) / float64(e.sr)
	e.resampler.SetRatio(base * e.rate)
}

// ClaimSource implements media.Element.
func (e *Element) ClaimSource() bool {
	return e.claimed.CompareAndSwap(false, true)
}

// Events implements media.Element.
func (e *Element) Events() <-chan media.Event {
	return e.events
}

func (e *Element) handleEnded(gen uint64) {
	e.mu.Lock()
	if gen != e.loadGen {
		e.mu.Unlock()
		return
	}
	pos := time.Duration(0)
	if e.stream != nil {
		speaker.Lock()
		pos = e.format.SampleRate.D(e.stream.Position())
		speaker.Unlock()
	}
	e.mu.Unlock()

	e.emit(media.Event{Type: media.EventEnded, Position: pos})
}

// positionLoop publishes periodic time updates while a stream plays.
func (e *Element) positionLoop() {
	ticker := time.NewTicker(positionTickPeriod)
	defer ticker.Stop()
	for range ticker.C {
		e.mu.Lock()
		active := e.ctrl != nil && e.stream != nil
		var paused bool
		var pos time.Duration
		if active {
			speaker.Lock()
			paused = e.ctrl.Paused
			pos = e.format.SampleRate.D(e.stream.Position())
			speaker.Unlock()
		}
		e.mu.Unlock()

		if active && !paused {
			e.emit(media.Event{Type: media.EventTimeUpdate, Position: pos})
		}
	}
}

func (e *Element) emit(ev media.Event) {
	select {
	case e.events <- ev:
	default:
		zlog.Warn().Msgf("audio: event buffer full, dropping %s", ev.Type)
	}
}
