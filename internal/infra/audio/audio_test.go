package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yusa21/tunedeck/internal/platform/media"
)

func TestDecoderFor(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{
			name: "mp3",
			url:  "https://cdn.example.com/streams/123.mp3",
		},
		{
			name: "wav",
			url:  "/var/cache/tunedeck/123.wav",
		},
		{
			name: "flac with query",
			url:  "https://cdn.example.com/streams/123.flac?token=abc",
		},
		{
			name: "uppercase extension",
			url:  "https://cdn.example.com/streams/123.MP3",
		},
		{
			name:    "unsupported format",
			url:     "https://cdn.example.com/streams/123.ogg",
			wantErr: true,
		},
		{
			name:    "no extension",
			url:     "https://cdn.example.com/streams/123",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decode, err := decoderFor(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, media.ErrUnsupported)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, decode)
			}
		})
	}
}

func TestContext_Lifecycle(t *testing.T) {
	ctx := NewContext(nil)
	assert.Equal(t, media.ContextRunning, ctx.State())
	assert.NotNil(t, ctx.Destination())

	assert.NoError(t, ctx.Resume())

	assert.NoError(t, ctx.Close())
	assert.Equal(t, media.ContextClosed, ctx.State())
	assert.NoError(t, ctx.Close()) // idempotent

	assert.ErrorIs(t, ctx.Resume(), media.ErrContextClosed)
	_, err := ctx.CreateSource(media.NewMemoryElement("el"))
	assert.ErrorIs(t, err, media.ErrContextClosed)
}

func TestContext_SingleSourcePerElement(t *testing.T) {
	el := media.NewMemoryElement("el")
	ctx := NewContext(nil)

	src, err := ctx.CreateSource(el)
	assert.NoError(t, err)
	assert.NotNil(t, src)

	_, err = ctx.CreateSource(el)
	assert.ErrorIs(t, err, media.ErrSourceTaken)
}

func TestNode_ConnectRequiresOpenContext(t *testing.T) {
	ctx := NewContext(nil)
	el := media.NewMemoryElement("el")
	src, err := ctx.CreateSource(el)
	assert.NoError(t, err)

	assert.NoError(t, src.Connect(ctx.Destination()))
	src.Disconnect()

	assert.NoError(t, ctx.Close())
	assert.ErrorIs(t, src.Connect(ctx.Destination()), media.ErrContextClosed)
}
