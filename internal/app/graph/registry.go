// Package graph provides the audio graph registry: reference-counted,
// rebuildable access to the decode -> filters -> analyser -> destination
// processing chain of an output element. The platform allows exactly one
// decode source node per element for its lifetime, so every feature that
// taps the audio (core playback, equalizer, visualizer) must share the
// registry's single connection instead of touching the node directly.
package graph

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/platform/media"
)

// Errors
var (
	ErrNoSource      = errors.New("connection has no source node")
	ErrClosedContext = errors.New("connection context is closed")
)

// Connection is the shared processing graph for one output element.
// Node fields are owned by the registry and mutated only under its lock.
type Connection struct {
	element  media.Element
	context  media.Context
	source   media.Node
	filters  []media.Node
	analyser media.Node
	refCount int
}

// Element returns the output element this connection belongs to.
func (c *Connection) Element() media.Element { return c.element }

// Context returns the processing context.
func (c *Connection) Context() media.Context { return c.context }

// Source returns the single decode source node.
func (c *Connection) Source() media.Node { return c.source }

// Registry arbitrates connections keyed by output-element identity. A
// single instance is owned by the player; there is no package-level
// state.
type Registry struct {
	mu         sync.Mutex
	newContext func() media.Context
	conns      map[string]*Connection
}

// NewRegistry creates a registry that builds processing contexts with
// newContext.
func NewRegistry(newContext func() media.Context) *Registry {
	return &Registry{
		newContext: newContext,
		conns:      make(map[string]*Connection),
	}
}

// Acquire returns the live connection for el, creating it on first use.
// A fresh connection wires source directly to destination so audio is
// audible before any feature adds processing. When the element is
// already bound to a source created outside the registry, Acquire fails
// with media.ErrSourceTaken and callers must degrade gracefully (skip
// the feature) rather than touch the element themselves.
func (r *Registry) Acquire(el media.Element) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[el.Key()]; ok {
		conn.refCount++
		r.ensureRunningLocked(conn)
		return conn, nil
	}

	ctx := r.newContext()
	src, err := ctx.CreateSource(el)
	if err != nil {
		if cerr := ctx.Close(); cerr != nil {
			zlog.Debug().Msgf("graph: closing context after failed acquire: %v", cerr)
		}
		return nil, errors.Wrapf(err, "acquire %s", el.Key())
	}

	// Immediate fallback path: never leave the source dangling.
	if err := src.Connect(ctx.Destination()); err != nil {
		_ = ctx.Close()
		return nil, errors.Wrapf(err, "connect source to destination for %s", el.Key())
	}

	conn := &Connection{
		element:  el,
		context:  ctx,
		source:   src,
		refCount: 1,
	}
	r.conns[el.Key()] = conn
	r.ensureRunningLocked(conn)
	zlog.Debug().Msgf("graph: connection created for %s", el.Key())
	return conn, nil
}

// Release drops one claim on the element's connection. At zero claims
// the owned nodes are disconnected, the context is closed and the entry
// is removed. Releasing more times than acquired is a no-op; the count
// never goes negative.
func (r *Registry) Release(el media.Element) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[el.Key()]
	if !ok {
		return
	}
	conn.refCount--
	if conn.refCount > 0 {
		return
	}

	// Best-effort teardown. Unbinding the source node from the element
	// itself is not attempted: the platform does not support it once
	// the node exists.
	conn.source.Disconnect()
	for _, f := range conn.filters {
		f.Disconnect()
	}
	if conn.analyser != nil {
		conn.analyser.Disconnect()
	}
	if err := conn.context.Close(); err != nil {
		zlog.Warn().Msgf("graph: closing context for %s: %v", el.Key(), err)
	}
	delete(r.conns, el.Key())
	zlog.Debug().Msgf("graph: connection torn down for %s", el.Key())
}

// RebuildChain tears the whole chain down and reconnects it in the total
// order source -> filters (array order) -> analyser -> destination,
// omitting absent stages. Incremental patching risks leaving the source
// disconnected from the destination, which is total silence; the rebuild
// always reconstructs from a known-good ordering and is the authoritative
// repair action after any verification doubt.
func (r *Registry) RebuildChain(conn *Connection, filters []media.Node, analyser media.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.source == nil {
		return ErrNoSource
	}

	conn.source.Disconnect()
	for _, f := range conn.filters {
		f.Disconnect()
	}
	if conn.analyser != nil {
		conn.analyser.Disconnect()
	}
	for _, f := range filters {
		f.Disconnect()
	}
	if analyser != nil {
		analyser.Disconnect()
	}

	conn.filters = filters
	conn.analyser = analyser

	chain := make([]media.Node, 0, len(filters)+3)
	chain = append(chain, conn.source)
	chain = append(chain, filters...)
	if analyser != nil {
		chain = append(chain, analyser)
	}
	chain = append(chain, conn.context.Destination())

	for i := 0; i < len(chain)-1; i++ {
		if err := chain[i].Connect(chain[i+1]); err != nil {
			return errors.Wrapf(err, "connect chain stage %d", i)
		}
	}
	return nil
}

// Verify checks the structural health of a connection: context open and
// source node present. The platform exposes no edge-level introspection,
// so an uncertain verdict is resolved by calling RebuildChain.
func (r *Registry) Verify(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn.context.State() == media.ContextClosed {
		return ErrClosedContext
	}
	if conn.source == nil {
		return ErrNoSource
	}
	return nil
}

// EnsureRunning resumes a suspended context. Failure to resume is
// logged, not fatal.
func (r *Registry) EnsureRunning(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureRunningLocked(conn)
}

func (r *Registry) ensureRunningLocked(conn *Connection) {
	if conn.context.State() != media.ContextSuspended {
		return
	}
	if err := conn.context.Resume(); err != nil {
		zlog.Warn().Msgf("graph: resuming context for %s: %v", conn.element.Key(), err)
	}
}

// Active reports whether a live connection exists for the given key.
func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[key]
	return ok
}
