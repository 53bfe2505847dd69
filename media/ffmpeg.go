// Package media wraps the audio/video tooling behind a small
// capability interface so the pipeline can be exercised with fakes.
// The real implementation shells out to ffmpeg/ffprobe via ffmpeg-go.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ProbeResult carries the duration reported by ffprobe. A zero
// DurationSeconds means the tool ran but reported none.
type ProbeResult struct {
	DurationSeconds float64
}

// MixTrack is one audio file placed at an offset in the narration.
type MixTrack struct {
	Path          string
	OffsetSeconds float64
}

// MixOptions controls narration assembly.
type MixOptions struct {
	DurationSeconds float64
	Bitrate         string
	Frequency       int
}

// MergeOptions controls overlaying narration onto the source video.
type MergeOptions struct {
	Frequency int
}

// Toolset is the audio/video tool contract the pipeline depends on.
type Toolset interface {
	// Probe returns the source video's duration.
	Probe(ctx context.Context, path string) (ProbeResult, error)
	// Inspect returns a synthesized audio file's duration.
	Inspect(ctx context.Context, audioPath string) (ProbeResult, error)
	// Mix assembles every track at its offset into one audio file.
	Mix(ctx context.Context, tracks []MixTrack, outputPath string, opts MixOptions) error
	// Merge overlays the narration audio onto the video.
	Merge(ctx context.Context, videoPath, audioPath, outputPath string, opts MergeOptions) error
}

// FFmpeg implements Toolset with ffmpeg/ffprobe. Invocations run to
// completion; cancellation is not propagated so partially rendered
// cache entries never become visible (outputs go through a temp file
// and a rename).
type FFmpeg struct {
	narrationCodec string
	outputCodec    string
}

// NewFFmpeg creates the real toolset with the given codec names.
func NewFFmpeg(narrationCodec, outputCodec string) *FFmpeg {
	return &FFmpeg{narrationCodec: narrationCodec, outputCodec: outputCodec}
}

func (f *FFmpeg) Probe(_ context.Context, path string) (ProbeResult, error) {
	return runProbe(path)
}

func (f *FFmpeg) Inspect(_ context.Context, audioPath string) (ProbeResult, error) {
	return runProbe(audioPath)
}

func (f *FFmpeg) Mix(_ context.Context, tracks []MixTrack, outputPath string, opts MixOptions) error {
	streams := make([]*ffmpeg.Stream, 0, len(tracks))
	for _, tr := range tracks {
		in := ffmpeg.Input(tr.Path)
		delayMs := int(tr.OffsetSeconds * 1000)
		if delayMs > 0 {
			in = in.Filter("adelay", ffmpeg.Args{fmt.Sprintf("%d:all=1", delayMs)})
		}
		streams = append(streams, in)
	}

	mixed := ffmpeg.Filter(streams, "amix", ffmpeg.Args{}, ffmpeg.KwArgs{
		"inputs":    len(streams),
		"duration":  "longest",
		"normalize": 0,
	}).Filter("apad", ffmpeg.Args{})

	tmp := outputPath + ".tmp"
	err := ffmpeg.Output([]*ffmpeg.Stream{mixed}, tmp, ffmpeg.KwArgs{
		"c:a": f.narrationCodec,
		"b:a": opts.Bitrate,
		"ar":  opts.Frequency,
		"t":   fmt.Sprintf("%.3f", opts.DurationSeconds),
		"f":   "mp3",
	}).OverWriteOutput().Run()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg mix failed: %w", err)
	}
	return os.Rename(tmp, outputPath)
}

func (f *FFmpeg) Merge(_ context.Context, videoPath, audioPath, outputPath string, opts MergeOptions) error {
	video := ffmpeg.Input(videoPath)
	audio := ffmpeg.Input(audioPath)

	tmp := outputPath + ".tmp"
	err := ffmpeg.Output([]*ffmpeg.Stream{video, audio}, tmp, ffmpeg.KwArgs{
		"c:v":      "copy",
		"c:a":      f.outputCodec,
		"ar":       opts.Frequency,
		"shortest": "",
		"f":        "mp4",
	}).OverWriteOutput().Run()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg merge failed: %w", err)
	}
	return os.Rename(tmp, outputPath)
}

// probeFormat is the slice of ffprobe's JSON output we care about.
type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func runProbe(path string) (ProbeResult, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(raw string) (ProbeResult, error) {
	var pf probeFormat
	if err := json.Unmarshal([]byte(raw), &pf); err != nil {
		return ProbeResult{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if pf.Format.Duration == "" {
		return ProbeResult{}, nil
	}
	dur, err := strconv.ParseFloat(pf.Format.Duration, 64)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("invalid ffprobe duration %q: %w", pf.Format.Duration, err)
	}
	return ProbeResult{DurationSeconds: dur}, nil
}
