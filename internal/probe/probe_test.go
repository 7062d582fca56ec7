package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720, "duration": "6.000000"},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "44100", "channels": 2, "duration": "4.992000"}
  ],
  "format": {"filename": "output.mp4", "nb_streams": 2, "duration": "6.000000", "size": "12345", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	assert.InDelta(t, 6.0, r.DurationSeconds(), 1e-9)
	assert.Equal(t, 1, r.VideoStreamCount())
	assert.Equal(t, 1, r.AudioStreamCount())
	assert.InDelta(t, 4.992, r.StreamDuration("audio"), 1e-9)
	assert.InDelta(t, 6.0, r.StreamDuration("video"), 1e-9)
	assert.Zero(t, r.StreamDuration("subtitle"))
	assert.Equal(t, 1280, r.Streams[0].Width)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.Error(t, err)
}

func TestResult_MissingDuration(t *testing.T) {
	var r Result
	assert.Zero(t, r.DurationSeconds())
	r.Format.Duration = "N/A"
	assert.Zero(t, r.DurationSeconds())
}

func TestInspect_EmptyPath(t *testing.T) {
	_, err := Inspect(context.Background(), "", "  ")
	assert.ErrorIs(t, err, ErrEmptyPath)
}
