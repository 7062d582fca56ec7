package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Working-storage names shared between the pipeline steps. They are reused by every
// render, which is why renders must never overlap.
const (
	AudioName       = "audio.mp3"
	ManifestName    = "concat.txt"
	SilentVideoName = "video_no_audio.mp4"
	OutputName      = "output.mp4"
)

// ImageName returns the staged name of the image at index i.
func ImageName(i int) string {
	return fmt.Sprintf("image%d.jpg", i)
}

// SegmentName returns the name of the encoded segment for the image at index i.
func SegmentName(i int) string {
	return fmt.Sprintf("segment%d.mp4", i)
}

// Manifest returns the concat demuxer list referencing segments 0..n-1 in order.
func Manifest(n int) []byte {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "file '%s'\n", SegmentName(i))
	}
	return []byte(b.String())
}

// EncodeArgs builds the ffmpeg arguments turning image i into a still segment of
// duration seconds with the given video filter.
func EncodeArgs(i int, filter string, duration float64, fps int) []string {
	return []string{
		"-loop", "1",
		"-i", ImageName(i),
		"-vf", filter,
		"-t", strconv.FormatFloat(duration, 'f', -1, 64),
		"-r", strconv.Itoa(fps),
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-fflags", "+bitexact",
		"-flags:v", "+bitexact",
		SegmentName(i),
	}
}

// ConcatArgs builds the stream-copy concatenation of every segment in the manifest.
func ConcatArgs() []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", ManifestName,
		"-c", "copy",
		SilentVideoName,
	}
}

// MuxArgs builds the audio mux. Video is copied, audio re-encoded to AAC and the
// output ends with the shorter stream.
func MuxArgs() []string {
	return []string{
		"-i", SilentVideoName,
		"-i", AudioName,
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		OutputName,
	}
}
