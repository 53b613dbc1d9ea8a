// Package media defines the platform audio abstractions: the output
// element a stream is attached to, the processing context that owns the
// node graph, and the nodes themselves. Implementations exist for local
// audio output (internal/infra/audio) and for in-memory use in tests and
// headless mode (memory.go).
package media

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Errors reported by platform implementations.
var (
	// ErrUnsupported means the element cannot decode the source. This is
	// a terminal failure; retrying the same stream will not help.
	ErrUnsupported = errors.New("media: source not supported")

	// ErrSourceTaken means the element is already bound to a source node
	// created outside the registry. The platform allows exactly one
	// source node per element for its entire lifetime.
	ErrSourceTaken = errors.New("media: element already bound to a source node")

	// ErrContextClosed means an operation was attempted on a closed
	// processing context.
	ErrContextClosed = errors.New("media: processing context closed")
)

// StreamRef is a resolved, playable stream reference for a track.
type StreamRef struct {
	TrackID int64  // Catalog track ID the stream was resolved for
	URL     string // Stream URL or handle
}

// EventType identifies an element playback event.
type EventType int

const (
	EventEnded      EventType = iota // Playback reached the end of the source
	EventError                       // Decode or output failure during playback
	EventTimeUpdate                  // Periodic position update
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	case EventTimeUpdate:
		return "time_update"
	default:
		return "unknown"
	}
}

// Event is a playback event emitted by an Element.
type Event struct {
	Type     EventType
	Position time.Duration // Position at the time of the event
	Err      error         // Set for EventError
}

// Element is the platform audio-output resource. At most one decode
// source node may ever be bound to it (see Context.CreateSource).
type Element interface {
	// Key identifies the element for registry bookkeeping.
	Key() string

	// Load attaches a new source and blocks until it is ready to play,
	// the context is cancelled, or loading fails.
	Load(ctx context.Context, ref StreamRef) error

	// Source returns the currently attached stream, if any.
	Source() (StreamRef, bool)

	Play() error
	Pause()
	Paused() bool
	Seek(pos time.Duration)
	Position() time.Duration
	Duration() time.Duration

	SetVolume(v float64)
	SetMuted(muted bool)
	SetRate(rate float64)

	// ClaimSource claims the element's single source-node slot. It
	// returns false if the slot was already claimed; the claim is never
	// released for the lifetime of the element.
	ClaimSource() bool

	// Events emits ended/error/time-update events for the element.
	Events() <-chan Event
}

// ContextState is the lifecycle state of a processing context.
type ContextState int

const (
	ContextRunning   ContextState = iota // Processing audio
	ContextSuspended                     // Suspended by platform power saving
	ContextClosed                        // Closed, unusable
)

// String returns the string representation of the context state.
func (s ContextState) String() string {
	switch s {
	case ContextRunning:
		return "running"
	case ContextSuspended:
		return "suspended"
	case ContextClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Node is a stage in the processing graph. Edges are directed: a node
// feeds exactly one downstream node at a time.
type Node interface {
	Connect(to Node) error
	Disconnect()
}

// Context is the audio processing context bound to one element. It owns
// the nodes created through it and stops producing audio when closed.
type Context interface {
	// CreateSource creates the single decode source node for the
	// element. Fails with ErrSourceTaken when the element is already
	// bound elsewhere.
	CreateSource(el Element) (Node, error)

	// CreateFilter creates a named processing stage node.
	CreateFilter(name string) (Node, error)

	// CreateAnalyser creates a tap node for visualization.
	CreateAnalyser() (Node, error)

	// Destination returns the terminal output node.
	Destination() Node

	State() ContextState
	Resume() error
	Close() error
}
