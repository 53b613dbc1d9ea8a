package media

import (
	"context"
	"sync"
	"time"
)

// MemoryElement is an in-memory Element used by tests and headless mode.
// Loading succeeds immediately unless a load error is injected.
type MemoryElement struct {
	mu sync.Mutex

	key      string
	source   *StreamRef
	playing  bool
	position time.Duration
	duration time.Duration
	volume   float64
	muted    bool
	rate     float64
	claimed  bool

	loadErr   error // Returned by every Load until cleared
	loadDelay time.Duration

	events chan Event
}

// NewMemoryElement creates a memory element with the given key.
func NewMemoryElement(key string) *MemoryElement {
	return &MemoryElement{
		key:    key,
		volume: 1.0,
		rate:   1.0,
		events: make(chan Event, 16),
	}
}

// FailLoads makes subsequent Load calls return err until ClearLoadError.
func (e *MemoryElement) FailLoads(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadErr = err
}

// ClearLoadError restores successful loading.
func (e *MemoryElement) ClearLoadError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadErr = nil
}

// SetLoadDelay makes Load block for d before completing.
func (e *MemoryElement) SetLoadDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadDelay = d
}

// FinishTrack simulates the source playing to its end.
func (e *MemoryElement) FinishTrack() {
	e.mu.Lock()
	e.playing = false
	pos := e.duration
	e.position = pos
	e.mu.Unlock()
	e.events <- Event{Type: EventEnded, Position: pos}
}

// EmitError simulates a playback failure.
func (e *MemoryElement) EmitError(err error) {
	e.mu.Lock()
	e.playing = false
	pos := e.position
	e.mu.Unlock()
	e.events <- Event{Type: EventError, Position: pos, Err: err}
}

// Key implements Element.
func (e *MemoryElement) Key() string { return e.key }

// Load implements Element.
func (e *MemoryElement) Load(ctx context.Context, ref StreamRef) error {
	e.mu.Lock()
	delay := e.loadDelay
	loadErr := e.loadErr
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if loadErr != nil {
		return loadErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = &ref
	e.position = 0
	return nil
}

// Source implements Element.
func (e *MemoryElement) Source() (StreamRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == nil {
		return StreamRef{}, false
	}
	return *e.source, true
}

// Play implements Element.
func (e *MemoryElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == nil {
		return ErrUnsupported
	}
	e.playing = true
	return nil
}

// Pause implements Element.
func (e *MemoryElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

// Paused implements Element.
func (e *MemoryElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing
}

// Seek implements Element.
func (e *MemoryElement) Seek(pos time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.position = pos
}

// Position implements Element.
func (e *MemoryElement) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// Duration implements Element.
func (e *MemoryElement) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// SetDuration sets the simulated source duration.
func (e *MemoryElement) SetDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.duration = d
}

// SetVolume implements Element.
func (e *MemoryElement) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

// SetMuted implements Element.
func (e *MemoryElement) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = muted
}

// SetRate implements Element.
func (e *MemoryElement) SetRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = rate
}

// ClaimSource implements Element.
func (e *MemoryElement) ClaimSource() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.claimed {
		return false
	}
	e.claimed = true
	return true
}

// Events implements Element.
func (e *MemoryElement) Events() <-chan Event { return e.events }

// MemoryNode is an in-memory graph node whose edges can be inspected.
type MemoryNode struct {
	mu     sync.Mutex
	name   string
	target Node
}

// NewMemoryNode creates a named memory node.
func NewMemoryNode(name string) *MemoryNode {
	return &MemoryNode{name: name}
}

// Name returns the node name.
func (n *MemoryNode) Name() string { return n.name }

// Connect implements Node.
func (n *MemoryNode) Connect(to Node) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = to
	return nil
}

// Disconnect implements Node.
func (n *MemoryNode) Disconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = nil
}

// Target returns the current downstream node, or nil.
func (n *MemoryNode) Target() Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target
}

// MemoryContext is an in-memory processing Context.
type MemoryContext struct {
	mu          sync.Mutex
	state       ContextState
	destination *MemoryNode
	source      *MemoryNode
	resumeErr   error
}

// NewMemoryContext creates a running memory context.
func NewMemoryContext() *MemoryContext {
	return &MemoryContext{
		state:       ContextRunning,
		destination: NewMemoryNode("destination"),
	}
}

// Suspend moves the context to the suspended state.
func (c *MemoryContext) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextRunning {
		c.state = ContextSuspended
	}
}

// FailResume makes Resume return err.
func (c *MemoryContext) FailResume(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumeErr = err
}

// CreateSource implements Context.
func (c *MemoryContext) CreateSource(el Element) (Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextClosed {
		return nil, ErrContextClosed
	}
	if !el.ClaimSource() {
		return nil, ErrSourceTaken
	}
	c.source = NewMemoryNode("source:" + el.Key())
	return c.source, nil
}

// CreateFilter implements Context.
func (c *MemoryContext) CreateFilter(name string) (Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextClosed {
		return nil, ErrContextClosed
	}
	return NewMemoryNode("filter:" + name), nil
}

// CreateAnalyser implements Context.
func (c *MemoryContext) CreateAnalyser() (Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextClosed {
		return nil, ErrContextClosed
	}
	return NewMemoryNode("analyser"), nil
}

// Destination implements Context.
func (c *MemoryContext) Destination() Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destination
}

// State implements Context.
func (c *MemoryContext) State() ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume implements Context.
func (c *MemoryContext) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ContextClosed {
		return ErrContextClosed
	}
	if c.resumeErr != nil {
		return c.resumeErr
	}
	c.state = ContextRunning
	return nil
}

// Close implements Context.
func (c *MemoryContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = ContextClosed
	return nil
}
