package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validTrack() Track {
	return Track{
		ID:       101,
		Title:    "Night Drive",
		Duration: 3 * time.Minute,
		Artist:   Artist{ID: 7, Name: "Neon Coast"},
		Album:    Album{ID: 55, Title: "City Lights", Covers: CoverSet{Medium: "https://img.example/55/250.jpg"}},
	}
}

func TestTrackComplete(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Track)
		want   bool
	}{
		{"valid track", func(*Track) {}, true},
		{"zero ID", func(tr *Track) { tr.ID = 0 }, false},
		{"negative ID", func(tr *Track) { tr.ID = -1 }, false},
		{"empty title", func(tr *Track) { tr.Title = "" }, false},
		{"zero duration", func(tr *Track) { tr.Duration = 0 }, false},
		{"missing artist ID", func(tr *Track) { tr.Artist.ID = 0 }, false},
		{"missing artist name", func(tr *Track) { tr.Artist.Name = "" }, false},
		{"missing album ID", func(tr *Track) { tr.Album.ID = 0 }, false},
		{"missing album title", func(tr *Track) { tr.Album.Title = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := validTrack()
			tt.mutate(&tr)
			assert.Equal(t, tt.want, tr.Complete())
		})
	}
}

func TestNewEntry(t *testing.T) {
	tr := validTrack()

	e1 := NewEntry(tr, ProvenanceUser)
	e2 := NewEntry(tr, ProvenanceSmart)

	assert.NotEmpty(t, e1.SlotID)
	assert.NotEqual(t, e1.SlotID, e2.SlotID, "slot IDs must be unique even for the same track")
	assert.Equal(t, tr.ID, e1.Track.ID)
	assert.Equal(t, ProvenanceUser, e1.Source)
	assert.Equal(t, ProvenanceSmart, e2.Source)
	assert.False(t, e1.AddedAt.IsZero())
}

func TestProvenanceString(t *testing.T) {
	assert.Equal(t, "user", ProvenanceUser.String())
	assert.Equal(t, "smart", ProvenanceSmart.String())
}
