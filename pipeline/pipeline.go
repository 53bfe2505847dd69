// Package pipeline sequences the dubbing stages over a Job: fetch the
// source video, synthesize the script lines, collect their durations,
// probe the video, assemble the narration, merge it onto the video,
// and publish the result. Each stage is guarded by a skip predicate
// over the job's cached-artifact flags, so a (video, script) pair that
// was already rendered passes straight through to publish.
package pipeline

import (
	"context"
	"log"
	"time"

	"dubbot/config"
	"dubbot/job"
	"dubbot/locks"
	"dubbot/media"
	"dubbot/tts"
)

// Stage names, also used as the tag on failures.
const (
	StageFetchSource       = "fetch_source"
	StageSynthesizeLines   = "synthesize_lines"
	StageCollectMetadata   = "collect_line_metadata"
	StageProbeVideo        = "probe_video"
	StageAssembleNarration = "assemble_narration"
	StageMerge             = "merge"
	StagePublish           = "publish"
)

// Publisher is the final stage's contract; publish.Publisher is the
// real implementation.
type Publisher interface {
	Publish(ctx context.Context, j *job.Job) error
}

// Pipeline runs one job at a time through the stages. All external
// tools arrive as injected interfaces.
type Pipeline struct {
	cfg       *config.Config
	synth     tts.Synthesizer
	tools     media.Toolset
	publisher Publisher
	lock      locks.Lock
}

// New wires a pipeline from its collaborators.
func New(cfg *config.Config, synth tts.Synthesizer, tools media.Toolset, publisher Publisher, lock locks.Lock) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		synth:     synth,
		tools:     tools,
		publisher: publisher,
		lock:      lock,
	}
}

// stage pairs a skip predicate with the work it guards. The predicate
// is evaluated against the job's construction-time artifact flags; a
// nil predicate means the stage always runs.
type stage struct {
	name string
	skip func(j *job.Job) bool
	run  func(ctx context.Context, j *job.Job) error
}

// stages returns the declarative stage table in execution order.
func (p *Pipeline) stages() []stage {
	return []stage{
		{
			name: StageFetchSource,
			skip: func(j *job.Job) bool { return j.HasOutput || j.HasVideo },
			run:  p.fetchSource,
		},
		{
			name: StageSynthesizeLines,
			skip: func(j *job.Job) bool { return j.HasOutput || j.HasScriptAudio || j.AllAudioCached() },
			run:  p.synthesizeLines,
		},
		{
			name: StageCollectMetadata,
			skip: func(j *job.Job) bool { return j.HasOutput || j.HasScriptAudio },
			run:  p.collectLineMetadata,
		},
		{
			name: StageProbeVideo,
			skip: func(j *job.Job) bool {
				return j.HasOutput || j.HasScriptAudio || j.VideoDurationSeconds > 0
			},
			run: p.probeVideo,
		},
		{
			name: StageAssembleNarration,
			skip: func(j *job.Job) bool { return j.HasOutput || j.HasScriptAudio },
			run:  p.assembleNarration,
		},
		{
			name: StageMerge,
			skip: func(j *job.Job) bool { return j.HasOutput },
			run:  p.merge,
		},
		{
			name: StagePublish,
			run:  p.publish,
		},
	}
}

// Run executes the stages strictly in order. The first failure halts
// the pipeline and is returned tagged with its stage name; no later
// stage runs.
func (p *Pipeline) Run(ctx context.Context, j *job.Job) error {
	for _, st := range p.stages() {
		if st.skip != nil && st.skip(j) {
			log.Printf("[%s] %s: skipped (artifact cached)", j.ID, st.name)
			continue
		}

		timing := &job.Timing{Start: time.Now()}
		j.StageTimings[st.name] = timing

		err := st.run(ctx, j)
		timing.End = time.Now()

		if err != nil {
			log.Printf("[%s] %s: failed after %.2fs: %v", j.ID, st.name, timing.Seconds(), err)
			return &StageError{Stage: st.name, Err: err}
		}
		log.Printf("[%s] %s: done in %.2fs", j.ID, st.name, timing.Seconds())
	}
	return nil
}
