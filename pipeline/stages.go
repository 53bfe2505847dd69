package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"dubbot/job"
	"dubbot/media"
)

// fetchSource brings the template's source video into the video cache,
// either downloading it from an http(s) base or copying it from a
// local assets directory.
func (p *Pipeline) fetchSource(ctx context.Context, j *job.Job) error {
	base := p.cfg.SourceBase
	name := j.Template.Video

	var err error
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		err = downloadFile(ctx, strings.TrimRight(base, "/")+"/"+path.Clean(name), j.VideoPath)
	} else {
		err = copyFile(filepath.Join(base, name), j.VideoPath)
	}
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrSourceFetchFailed, name, err)
	}

	j.HasVideo = true
	return nil
}

// synthesizeLines dispatches every uncached track to the TTS provider
// concurrently. A failed call is retried exactly once; a second
// failure fails the whole stage. The stage completes only when every
// track has either succeeded, hit the cache, or exhausted its retry.
func (p *Pipeline) synthesizeLines(ctx context.Context, j *job.Job) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, tr := range j.Tracks {
		if tr.AudioExists {
			continue
		}
		g.Go(func() error {
			release, err := p.lock.Acquire(ctx, tr.LineHash)
			if err != nil {
				return fmt.Errorf("%w: line %s: %v", ErrSynthesisFailed, tr.LineHash[:12], err)
			}
			defer release()

			// Another process may have filled the entry while we
			// waited on the lock.
			if info, statErr := os.Stat(tr.AudioCachePath); statErr == nil && !info.IsDir() {
				tr.AudioExists = true
				return nil
			}

			audio, err := p.synth.Synthesize(ctx, tr.Text, j.TTSOptions)
			if err != nil {
				audio, err = p.synth.Synthesize(ctx, tr.Text, j.TTSOptions)
			}
			if err != nil {
				return fmt.Errorf("%w: line %s: %v", ErrSynthesisFailed, tr.LineHash[:12], err)
			}

			if err := writeFileAtomic(tr.AudioCachePath, audio); err != nil {
				return fmt.Errorf("%w: caching line %s: %v", ErrSynthesisFailed, tr.LineHash[:12], err)
			}
			tr.AudioExists = true
			return nil
		})
	}

	return g.Wait()
}

// lineMetadata is the cached per-line duration record.
type lineMetadata struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

// collectLineMetadata ensures every track has duration metadata,
// reading the cached record when present and inspecting the audio
// otherwise. Persisting the record is best-effort; failing to inspect
// is not.
func (p *Pipeline) collectLineMetadata(ctx context.Context, j *job.Job) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, tr := range j.Tracks {
		g.Go(func() error {
			if meta, ok := readLineMetadata(tr.MetadataCachePath); ok {
				tr.DurationSeconds = meta.DurationSeconds
				return nil
			}

			res, err := p.tools.Inspect(ctx, tr.AudioCachePath)
			if err != nil {
				return fmt.Errorf("%w: line %s: %v", ErrMetadataUnavailable, tr.LineHash[:12], err)
			}
			if res.DurationSeconds <= 0 {
				return fmt.Errorf("%w: line %s", ErrNoDuration, tr.LineHash[:12])
			}

			meta := lineMetadata{DurationSeconds: res.DurationSeconds}
			if data, err := json.Marshal(meta); err == nil {
				if err := writeFileAtomic(tr.MetadataCachePath, data); err != nil {
					log.Printf("[%s] failed to cache metadata for line %s: %v", j.ID, tr.LineHash[:12], err)
				}
			}

			tr.DurationSeconds = res.DurationSeconds
			return nil
		})
	}

	return g.Wait()
}

func readLineMetadata(path string) (lineMetadata, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lineMetadata{}, false
	}
	var meta lineMetadata
	if err := json.Unmarshal(data, &meta); err != nil || meta.DurationSeconds <= 0 {
		return lineMetadata{}, false
	}
	return meta, true
}

// probeVideo determines the source video's total duration.
func (p *Pipeline) probeVideo(ctx context.Context, j *job.Job) error {
	res, err := p.tools.Probe(ctx, j.VideoPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProbeFailed, err)
	}
	if res.DurationSeconds <= 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDuration, j.VideoPath)
	}
	j.VideoDurationSeconds = res.DurationSeconds
	return nil
}

// assembleNarration mixes every track at its timestamp offset into a
// single script-length audio file. One atomic operation; no partial
// output survives a failure.
func (p *Pipeline) assembleNarration(ctx context.Context, j *job.Job) error {
	tracks := make([]media.MixTrack, 0, len(j.Tracks))
	for _, tr := range j.Tracks {
		tracks = append(tracks, media.MixTrack{
			Path:          tr.AudioCachePath,
			OffsetSeconds: tr.Timestamp,
		})
	}

	opts := media.MixOptions{
		DurationSeconds: j.VideoDurationSeconds,
		Bitrate:         j.TTSOptions.Bitrate,
		Frequency:       j.TTSOptions.Frequency,
	}
	if err := p.tools.Mix(ctx, tracks, j.ScriptAudioPath, opts); err != nil {
		return fmt.Errorf("%w: %v", ErrAssemblyFailed, err)
	}

	j.HasScriptAudio = true
	return nil
}

// merge overlays the assembled narration onto the source video.
func (p *Pipeline) merge(ctx context.Context, j *job.Job) error {
	opts := media.MergeOptions{Frequency: j.TTSOptions.Frequency}
	if err := p.tools.Merge(ctx, j.VideoPath, j.ScriptAudioPath, j.OutputPath, opts); err != nil {
		return fmt.Errorf("%w: %v", ErrMergeFailed, err)
	}

	j.HasOutput = true
	return nil
}

// publish always runs; idempotency is internal to the publisher.
func (p *Pipeline) publish(ctx context.Context, j *job.Job) error {
	if err := p.publisher.Publish(ctx, j); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}
	return nil
}

// downloadFile fetches url into dest atomically.
func downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return writeFileAtomic(dest, data)
}

// copyFile copies src into dest atomically.
func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeFileAtomic(dest, data)
}

// writeFileAtomic writes through a temp file and a rename, so readers
// never observe a partially written cache entry.
func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
