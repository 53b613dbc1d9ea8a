package queue

import (
	"math/rand"

	"github.com/yusa21/tunedeck/internal/domain/track"
)

// diversityShuffle reorders entries so that consecutive same-artist runs
// are avoided. Tracks are grouped by artist, the artist visitation order
// is randomized with Fisher-Yates, and the result is built by taking one
// track from the next artist in rotation that differs from the previous
// pick. Once no different-artist choice remains, any remaining track is
// taken. Order within an artist's own tracks is preserved.
func diversityShuffle(entries []track.QueueEntry, rng *rand.Rand) []track.QueueEntry {
	if len(entries) < 2 {
		return append([]track.QueueEntry(nil), entries...)
	}

	buckets := make(map[int64][]track.QueueEntry)
	artists := make([]int64, 0)
	for _, e := range entries {
		id := e.Track.Artist.ID
		if _, ok := buckets[id]; !ok {
			artists = append(artists, id)
		}
		buckets[id] = append(buckets[id], e)
	}

	// Fisher-Yates over the artist visitation order.
	for i := len(artists) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		artists[i], artists[j] = artists[j], artists[i]
	}

	result := make([]track.QueueEntry, 0, len(entries))
	var lastArtist int64
	cursor := 0

	for len(result) < len(entries) {
		picked := false

		// Take from the next artist in rotation that differs from the
		// previous pick.
		for offset := 0; offset < len(artists); offset++ {
			idx := (cursor + offset) % len(artists)
			id := artists[idx]
			if len(buckets[id]) == 0 || (id == lastArtist && len(result) > 0) {
				continue
			}
			result = append(result, buckets[id][0])
			buckets[id] = buckets[id][1:]
			lastArtist = id
			cursor = (idx + 1) % len(artists)
			picked = true
			break
		}
		if picked {
			continue
		}

		// Only same-artist tracks remain; take any remaining one.
		for _, id := range artists {
			if len(buckets[id]) > 0 {
				result = append(result, buckets[id][0])
				buckets[id] = buckets[id][1:]
				lastArtist = id
				break
			}
		}
	}

	return result
}
