package audio

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/platform/media"
)

// Context is the processing context over the local backend. The beep
// pipeline is fixed inside Element, so nodes here carry connection
// bookkeeping only; per-node DSP stages are not supported on this
// backend and filter nodes pass audio through unchanged. The shared
// registry semantics (single source per element, refcounting, chain
// ordering) still apply.
type Context struct {
	mu    sync.Mutex
	el    *Element
	state media.ContextState
	dest  *Node
}

// NewContext creates a context over the local output element.
func NewContext(el *Element) *Context {
	ctx := &Context{el: el, state: media.ContextRunning}
	ctx.dest = &Node{ctx: ctx, name: "destination"}
	return ctx
}

// CreateSource implements media.Context.
func (c *Context) CreateSource(el media.Element) (media.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == media.ContextClosed {
		return nil, media.ErrContextClosed
	}
	if !el.ClaimSource() {
		return nil, media.ErrSourceTaken
	}
	return &Node{ctx: c, name: "source:" + el.Key()}, nil
}

// CreateFilter implements media.Context. Filter stages on this
// backend pass audio through unchanged.
func (c *Context) CreateFilter(name string) (media.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == media.ContextClosed {
		return nil, media.ErrContextClosed
	}
	return &Node{ctx: c, name: "filter:" + name}, nil
}

// CreateAnalyser implements media.Context.
func (c *Context) CreateAnalyser() (media.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == media.ContextClosed {
		return nil, media.ErrContextClosed
	}
	return &Node{ctx: c, name: "analyser"}, nil
}

// Destination implements media.Context.
func (c *Context) Destination() media.Node { return c.dest }

// State implements media.Context.
func (c *Context) State() media.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume implements media.Context. The local device never suspends
// itself, so this only clears a suspended flag set by the platform.
func (c *Context) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == media.ContextClosed {
		return media.ErrContextClosed
	}
	c.state = media.ContextRunning
	return nil
}

// Close implements media.Context.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == media.ContextClosed {
		return nil
	}
	c.state = media.ContextClosed
	zlog.Debug().Msg("audio: processing context closed")
	return nil
}

// Node is a bookkeeping stage over the local backend.
type Node struct {
	mu     sync.Mutex
	ctx    *Context
	name   string
	target *Node
}

// Connect implements media.Node.
func (n *Node) Connect(to media.Node) error {
	if n.ctx.State() == media.ContextClosed {
		return media.ErrContextClosed
	}
	next, ok := to.(*Node)
	if !ok {
		return media.ErrUnsupported
	}
	n.mu.Lock()
	n.target = next
	n.mu.Unlock()
	return nil
}

// Disconnect implements media.Node.
func (n *Node) Disconnect() {
	n.mu.Lock()
	n.target = nil
	n.mu.Unlock()
}
