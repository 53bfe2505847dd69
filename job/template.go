package job

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Timestamp is a script-line offset in seconds. Templates in the wild
// carry it as either a JSON number or a numeric string, so both decode.
type Timestamp float64

// UnmarshalJSON accepts 1.5 and "1.5".
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		return fmt.Errorf("timestamp is empty")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	*t = Timestamp(v)
	return nil
}

// ScriptLine is one timed spoken line of the template script.
type ScriptLine struct {
	TS   *Timestamp `json:"ts"`
	Line string     `json:"line"`
}

// TTSOptions are the voice parameters sent to the TTS provider. The
// effective options for a job are the global defaults overridden by
// the template's per-request values.
type TTSOptions struct {
	Voice     string `json:"voice,omitempty"`
	Effect    string `json:"effect,omitempty"`
	Level     string `json:"level,omitempty"`
	Bitrate   string `json:"bitrate,omitempty"`
	Frequency int    `json:"frequency,omitempty"`
}

// Merge returns o with any non-zero field of over applied on top.
func (o TTSOptions) Merge(over TTSOptions) TTSOptions {
	if over.Voice != "" {
		o.Voice = over.Voice
	}
	if over.Effect != "" {
		o.Effect = over.Effect
	}
	if over.Level != "" {
		o.Level = over.Level
	}
	if over.Bitrate != "" {
		o.Bitrate = over.Bitrate
	}
	if over.Frequency != 0 {
		o.Frequency = over.Frequency
	}
	return o
}

// canonical serializes the options in a fixed field order for hashing.
// Changing any effective option changes every line hash, which is what
// forces re-synthesis with the new voice.
func (o TTSOptions) canonical() string {
	return fmt.Sprintf("voice=%s;effect=%s;level=%s;bitrate=%s;frequency=%d",
		o.Voice, o.Effect, o.Level, o.Bitrate, o.Frequency)
}

// Template is the immutable external input: a source video reference,
// optional TTS overrides, and an ordered script of timed lines.
type Template struct {
	Video   string       `json:"video"`
	TTS     *TTSOptions  `json:"tts,omitempty"`
	Script  []ScriptLine `json:"script"`
	Version string       `json:"version,omitempty"`
}

// ParseTemplate decodes a JSON template.
func ParseTemplate(data []byte) (Template, error) {
	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return Template{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return tpl, nil
}
