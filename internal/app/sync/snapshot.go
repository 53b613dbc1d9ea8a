// Package sync persists playback state across restarts. The engine's
// exported state is converted to a versioned, JSON-friendly snapshot
// and written to a store after user actions, debounced so bursts of
// queue edits produce a single save.
package sync

import (
	"time"

	"github.com/yusa21/tunedeck/internal/app/queue"
	"github.com/yusa21/tunedeck/internal/domain/track"
)

// SchemaVersion is the snapshot format written by this build. Loading
// a snapshot with a newer version is treated as having no snapshot.
const SchemaVersion = 1

// Snapshot is the persisted form of the playback state.
type Snapshot struct {
	SchemaVersion int           `json:"schema_version"`
	SavedAt       time.Time     `json:"saved_at"`
	Queue         []entryDTO    `json:"queue"`
	History       []trackDTO    `json:"history"`
	OriginalOrder []entryDTO    `json:"original_order,omitempty"`
	Shuffled      bool          `json:"shuffled"`
	Repeat        string        `json:"repeat"`
	Volume        float64       `json:"volume"`
	Muted         bool          `json:"muted"`
	Rate          float64       `json:"rate"`
	Position      time.Duration `json:"position"`
	UserPaused    bool          `json:"user_paused"`
}

type entryDTO struct {
	SlotID  string    `json:"slot_id"`
	Track   trackDTO  `json:"track"`
	Source  string    `json:"source"`
	AddedAt time.Time `json:"added_at"`
}

type trackDTO struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	DurationMS int64  `json:"duration_ms"`
	ArtistID   int64  `json:"artist_id"`
	ArtistName string `json:"artist_name"`
	AlbumID    int64  `json:"album_id"`
	AlbumTitle string `json:"album_title"`
	CoverSmall string `json:"cover_small,omitempty"`
	CoverMed   string `json:"cover_medium,omitempty"`
	CoverLarge string `json:"cover_large,omitempty"`
	CoverXL    string `json:"cover_xl,omitempty"`
}

// Capture converts exported engine state into a snapshot.
func Capture(rs queue.RestoreState) Snapshot {
	return Snapshot{
		SchemaVersion: SchemaVersion,
		SavedAt:       time.Now(),
		Queue:         toEntryDTOs(rs.Queue),
		History:       toTrackDTOs(rs.History),
		OriginalOrder: toEntryDTOs(rs.OriginalOrder),
		Shuffled:      rs.Shuffled,
		Repeat:        rs.Repeat.String(),
		Volume:        rs.Volume,
		Muted:         rs.Muted,
		Rate:          rs.Rate,
		Position:      rs.Position,
		UserPaused:    rs.UserPaused,
	}
}

// RestoreState converts the snapshot back into engine state.
func (s Snapshot) RestoreState() queue.RestoreState {
	return queue.RestoreState{
		Queue:         fromEntryDTOs(s.Queue),
		History:       fromTrackDTOs(s.History),
		OriginalOrder: fromEntryDTOs(s.OriginalOrder),
		Shuffled:      s.Shuffled,
		Repeat:        parseRepeat(s.Repeat),
		Volume:        s.Volume,
		Muted:         s.Muted,
		Rate:          s.Rate,
		Position:      s.Position,
		UserPaused:    s.UserPaused,
	}
}

func parseRepeat(s string) queue.RepeatMode {
	switch s {
	case "all":
		return queue.RepeatAll
	case "one":
		return queue.RepeatOne
	default:
		return queue.RepeatNone
	}
}

func toTrackDTO(t track.Track) trackDTO {
	return trackDTO{
		ID:         t.ID,
		Title:      t.Title,
		DurationMS: t.Duration.Milliseconds(),
		ArtistID:   t.Artist.ID,
		ArtistName: t.Artist.Name,
		AlbumID:    t.Album.ID,
		AlbumTitle: t.Album.Title,
		CoverSmall: t.Album.Covers.Small,
		CoverMed:   t.Album.Covers.Medium,
		CoverLarge: t.Album.Covers.Large,
		CoverXL:    t.Album.Covers.XL,
	}
}

func (d trackDTO) toDomain() track.Track {
	return track.Track{
		ID:       d.ID,
		Title:    d.Title,
		Duration: time.Duration(d.DurationMS) * time.Millisecond,
		Artist:   track.Artist{ID: d.ArtistID, Name: d.ArtistName},
		Album: track.Album{
			ID:    d.AlbumID,
			Title: d.AlbumTitle,
			Covers: track.CoverSet{
				Small:  d.CoverSmall,
				Medium: d.CoverMed,
				Large:  d.CoverLarge,
				XL:     d.CoverXL,
			},
		},
	}
}

func toEntryDTOs(entries []track.QueueEntry) []entryDTO {
	out := make([]entryDTO, len(entries))
	for i, e := range entries {
		out[i] = entryDTO{
			SlotID:  e.SlotID,
			Track:   toTrackDTO(e.Track),
			Source:  e.Source.String(),
			AddedAt: e.AddedAt,
		}
	}
	return out
}

func fromEntryDTOs(dtos []entryDTO) []track.QueueEntry {
	out := make([]track.QueueEntry, len(dtos))
	for i, d := range dtos {
		out[i] = track.QueueEntry{
			SlotID:  d.SlotID,
			Track:   d.Track.toDomain(),
			Source:  track.Provenance(d.Source),
			AddedAt: d.AddedAt,
		}
	}
	return out
}

func toTrackDTOs(tracks []track.Track) []trackDTO {
	out := make([]trackDTO, len(tracks))
	for i, t := range tracks {
		out[i] = toTrackDTO(t)
	}
	return out
}

func fromTrackDTOs(dtos []trackDTO) []track.Track {
	out := make([]track.Track, len(dtos))
	for i, d := range dtos {
		out[i] = d.toDomain()
	}
	return out
}
