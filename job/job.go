// Package job defines the dubbing job aggregate: the parsed input
// template, the per-line tracks, and every content-derived hash and
// cache path the pipeline needs. All derivation happens eagerly at
// construction so the orchestrator's skip decisions are a pure read of
// the flags recorded here.
package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dubbot/config"
	"dubbot/hashing"
)

var (
	// ErrInvalidTemplate indicates a template with no usable script.
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrMissingField indicates a script entry without a timestamp or line text.
	ErrMissingField = errors.New("missing field")
)

// Track is one script line plus its derived synthesis artifacts.
// Two tracks with identical lowercased text and identical effective
// TTS options share a LineHash and therefore the same cache files,
// regardless of which job produced them.
type Track struct {
	Timestamp float64
	Text      string

	LineHash          string
	AudioCachePath    string
	MetadataCachePath string

	// AudioExists reflects cache state observed at construction time.
	// The synthesizer flips it once a line is written.
	AudioExists bool

	// DurationSeconds is filled in by the metadata collector.
	DurationSeconds float64
}

// Timing records one stage's wall-clock window, for observability only.
type Timing struct {
	Start time.Time
	End   time.Time
}

// Seconds returns the stage duration.
func (t *Timing) Seconds() float64 {
	return t.End.Sub(t.Start).Seconds()
}

// Job is the in-memory representation of one dubbing request. It is
// created fresh per request, mutated in place as stages complete, and
// discarded after the response; only the cache files it writes outlive
// it.
type Job struct {
	// ID is used for logging and correlation only, never as a cache key.
	ID string

	Template   Template
	TTSAuth    string
	TTSOptions TTSOptions
	Tracks     []*Track

	// ScriptHash changes iff any line's text, order, or timing changes.
	ScriptHash string
	// OutputHash identifies the rendered video by (video, script) pair.
	OutputHash string

	ScriptAudioPath string
	VideoPath       string
	OutputPath      string

	// OutputPublicLocation is the externally addressable location of
	// the finished artifact.
	OutputPublicLocation string

	// VideoDurationSeconds is populated by the probe stage.
	VideoDurationSeconds float64

	// Artifact existence observed at construction time; these drive
	// the orchestrator's skip predicates.
	HasVideo       bool
	HasScriptAudio bool
	HasOutput      bool

	// ContentDigest of the output file, set by the publisher.
	ContentDigest string

	StageTimings map[string]*Timing
}

// New validates the template, derives every hash and cache path, and
// records which artifacts already exist in cache.
func New(tpl Template, cfg *config.Config) (*Job, error) {
	if len(tpl.Script) == 0 {
		return nil, fmt.Errorf("%w: template has no script entries", ErrInvalidTemplate)
	}

	opts := defaultOptions(cfg.TTS)
	if tpl.TTS != nil {
		opts = opts.Merge(*tpl.TTS)
	}

	j := &Job{
		ID:           uuid.NewString(),
		Template:     tpl,
		TTSAuth:      cfg.TTS.AuthToken(),
		TTSOptions:   opts,
		Tracks:       make([]*Track, 0, len(tpl.Script)),
		StageTimings: make(map[string]*Timing),
	}

	var script strings.Builder
	for i, entry := range tpl.Script {
		if entry.TS == nil {
			return nil, fmt.Errorf("%w: script entry %d has no ts", ErrMissingField, i)
		}
		text := strings.TrimSpace(entry.Line)
		if text == "" {
			return nil, fmt.Errorf("%w: script entry %d has no line", ErrMissingField, i)
		}

		lineHash := hashing.SumString(strings.ToLower(text) + "|" + opts.canonical())
		tr := &Track{
			Timestamp:         float64(*entry.TS),
			Text:              text,
			LineHash:          lineHash,
			AudioCachePath:    filepath.Join(cfg.Cache.LineDir, lineHash+".mp3"),
			MetadataCachePath: filepath.Join(cfg.Cache.LineDir, lineHash+".json"),
		}
		tr.AudioExists = fileExists(tr.AudioCachePath)
		j.Tracks = append(j.Tracks, tr)

		fmt.Fprintf(&script, "%.3f:%s;", tr.Timestamp, tr.LineHash)
	}

	videoBase := filepath.Base(tpl.Video)
	j.ScriptHash = hashing.SumString(script.String())
	j.OutputHash = hashing.SumString(videoBase + ":" + j.ScriptHash)

	j.ScriptAudioPath = filepath.Join(cfg.Cache.ScriptDir, j.ScriptHash+".mp3")
	j.VideoPath = filepath.Join(cfg.Cache.VideoDir, videoBase)
	j.OutputPath = filepath.Join(cfg.Cache.OutputDir, j.OutputHash+"_"+videoBase)
	j.OutputPublicLocation = cfg.Output.PublicLocation(filepath.Base(j.OutputPath))

	j.HasVideo = fileExists(j.VideoPath)
	j.HasScriptAudio = fileExists(j.ScriptAudioPath)
	j.HasOutput = fileExists(j.OutputPath)

	return j, nil
}

// AllAudioCached reports whether every track's audio already exists.
func (j *Job) AllAudioCached() bool {
	for _, tr := range j.Tracks {
		if !tr.AudioExists {
			return false
		}
	}
	return true
}

func defaultOptions(t config.TTSConfig) TTSOptions {
	return TTSOptions{
		Voice:     t.Voice,
		Effect:    t.Effect,
		Level:     t.Level,
		Bitrate:   t.Bitrate,
		Frequency: t.Frequency,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
