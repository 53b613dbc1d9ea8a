// Package audio implements the media abstractions over the local sound
// device using beep.
package audio

import (
	"io"
	"path"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"github.com/yusa21/tunedeck/internal/platform/media"
)

type decodeFunc func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

// decoderFor picks a decoder from the stream name's extension.
// Unsupported formats are terminal; the loader will not retry them.
func decoderFor(name string) (decodeFunc, error) {
	switch strings.ToLower(path.Ext(stripQuery(name))) {
	case ".mp3":
		return func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return mp3.Decode(rc)
		}, nil
	case ".wav":
		return func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return wav.Decode(rc)
		}, nil
	case ".flac":
		return func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return flac.Decode(rc)
		}, nil
	default:
		return nil, media.ErrUnsupported
	}
}

func stripQuery(name string) string {
	if i := strings.IndexByte(name, '?'); i >= 0 {
		return name[:i]
	}
	return name
}
