package config

// Audio defaults applied when a template does not override them
const (
	DefaultVoice     = "alice"
	DefaultEffect    = ""
	DefaultLevel     = "0"
	DefaultBitrate   = "192k"
	DefaultFrequency = 44100
)

const (
	// NarrationCodec encodes the assembled narration track
	NarrationCodec = "libmp3lame"

	// OutputCodec encodes the audio stream of the merged output video
	OutputCodec = "aac"

	// OutputContentType is set on published output objects
	OutputContentType = "video/mp4"

	// MaxConcurrentJobs limits batch-mode jobs processed simultaneously
	MaxConcurrentJobs = 3
)
