// Package queue provides the playback queue engine: the ordered queue
// with its now-playing head, playback history, shuffle and repeat state,
// and the transition operations that move tracks between them.
package queue

// Status represents the engine playback status.
type Status int

const (
	StatusEmpty   Status = iota // No now-playing entry
	StatusPaused                // Head loaded but not playing
	StatusPlaying               // Head playing
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusPaused:
		return "paused"
	case StatusPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// RepeatMode controls end-of-track behavior.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // Stop at end of queue
	RepeatAll                    // Refill queue from history at end
	RepeatOne                    // Restart the current track
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows in the cycle none -> all -> one.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatNone:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatNone
	}
}
