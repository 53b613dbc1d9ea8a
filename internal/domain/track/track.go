// Package track provides the Track domain entity.
package track

import (
	"time"

	"github.com/google/uuid"
)

// Artist identifies the main artist of a track.
type Artist struct {
	ID   int64  // Catalog artist ID
	Name string // Artist name
}

// CoverSet holds album cover art URLs at multiple resolutions.
type CoverSet struct {
	Small  string // ~56px thumbnail
	Medium string // ~250px list art
	Large  string // ~500px player art
	XL     string // ~1000px full-screen art
}

// Album identifies the album a track belongs to.
type Album struct {
	ID     int64    // Catalog album ID
	Title  string   // Album title
	Covers CoverSet // Cover art URLs
}

// Track represents a playable catalog track. Immutable once constructed.
type Track struct {
	ID       int64         // Catalog track ID
	Title    string        // Track title
	Duration time.Duration // Track duration
	Artist   Artist        // Main artist
	Album    Album         // Album info
}

// Complete reports whether the track carries every field required for
// playback and display. Incomplete tracks are rejected before they can
// enter the queue.
func (t Track) Complete() bool {
	return t.ID > 0 &&
		t.Title != "" &&
		t.Duration > 0 &&
		t.Artist.ID > 0 &&
		t.Artist.Name != "" &&
		t.Album.ID > 0 &&
		t.Album.Title != ""
}

// Provenance marks how a queue entry was added.
type Provenance string

const (
	ProvenanceUser  Provenance = "user"  // Explicitly added by the user
	ProvenanceSmart Provenance = "smart" // Added by the auto-queue advisor
)

// String returns the string representation of the provenance.
func (p Provenance) String() string {
	return string(p)
}

// QueueEntry wraps a Track with a queue-slot identity. The slot ID is
// stable across reorders and independent of the track ID, so the same
// track may occupy two slots when duplicate checking is disabled.
type QueueEntry struct {
	SlotID  string     // Locally-unique slot identifier
	Track   Track      // Catalog track
	Source  Provenance // How the entry was added
	AddedAt time.Time  // Time when added to queue
}

// NewEntry wraps a track in a fresh queue slot.
func NewEntry(t Track, source Provenance) QueueEntry {
	return QueueEntry{
		SlotID:  uuid.NewString(),
		Track:   t,
		Source:  source,
		AddedAt: time.Now(),
	}
}
