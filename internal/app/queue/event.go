package queue

import "github.com/yusa21/tunedeck/internal/domain/track"

// EventType represents a queue engine event type.
type EventType int

const (
	EventCurrentChanged EventType = iota // The now-playing entry changed (or restarted)
	EventQueueChanged                    // Upcoming entries or history changed
	EventStateChanged                    // Playback settings or play/pause state changed
	EventQueueDepleting                  // Few upcoming entries remain
	EventQueueEnded                      // Natural end of queue reached
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventCurrentChanged:
		return "current_changed"
	case EventQueueChanged:
		return "queue_changed"
	case EventStateChanged:
		return "state_changed"
	case EventQueueDepleting:
		return "queue_depleting"
	case EventQueueEnded:
		return "queue_ended"
	default:
		return "unknown"
	}
}

// Event represents a queue engine event.
type Event struct {
	Type    EventType
	Entry   *track.QueueEntry // Now-playing entry (nil when the queue is empty)
	Status  Status            // Engine status after the change
	Version uint64            // State version after the change
}
