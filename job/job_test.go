package job

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dubbot/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		SourceBase: filepath.Join(root, "assets"),
		Cache: config.CacheConfig{
			RunDir:    filepath.Join(root, "run"),
			LineDir:   filepath.Join(root, "line"),
			ScriptDir: filepath.Join(root, "script"),
			VideoDir:  filepath.Join(root, "video"),
			OutputDir: filepath.Join(root, "output"),
		},
		TTS: config.TTSConfig{
			APIKey:    "key",
			APISecret: "secret",
			Voice:     config.DefaultVoice,
			Level:     config.DefaultLevel,
			Bitrate:   config.DefaultBitrate,
			Frequency: config.DefaultFrequency,
		},
		Output: config.OutputConfig{
			Type: config.OutputLocal,
			URI:  "http://localhost:8080/output",
		},
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return cfg
}

func ts(v float64) *Timestamp {
	t := Timestamp(v)
	return &t
}

func TestIdenticalTemplatesShareHashes(t *testing.T) {
	cfg := testConfig(t)
	tpl := Template{
		Video: "a.mp4",
		Script: []ScriptLine{
			{TS: ts(1.0), Line: "Hi there"},
			{TS: ts(3.5), Line: "Second line"},
		},
	}

	j1, err := New(tpl, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j2, err := New(tpl, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if j1.OutputHash != j2.OutputHash {
		t.Fatalf("output hashes differ: %s vs %s", j1.OutputHash, j2.OutputHash)
	}
	if j1.ScriptHash != j2.ScriptHash {
		t.Fatalf("script hashes differ: %s vs %s", j1.ScriptHash, j2.ScriptHash)
	}
	for i := range j1.Tracks {
		if j1.Tracks[i].LineHash != j2.Tracks[i].LineHash {
			t.Fatalf("track %d line hashes differ", i)
		}
	}
	if j1.ID == j2.ID {
		t.Fatal("job ids should be unique per job")
	}
}

func TestLineHashIgnoresCase(t *testing.T) {
	cfg := testConfig(t)
	upper, _ := New(Template{Video: "a.mp4", Script: []ScriptLine{{TS: ts(1), Line: "HELLO"}}}, cfg)
	lower, _ := New(Template{Video: "a.mp4", Script: []ScriptLine{{TS: ts(1), Line: "hello"}}}, cfg)
	if upper.Tracks[0].LineHash != lower.Tracks[0].LineHash {
		t.Fatal("case-insensitive text should share a line hash")
	}
}

func TestChangingOneLineIsolatesCache(t *testing.T) {
	cfg := testConfig(t)
	base := Template{
		Video: "a.mp4",
		Script: []ScriptLine{
			{TS: ts(1.0), Line: "First"},
			{TS: ts(2.0), Line: "Second"},
			{TS: ts(3.0), Line: "Third"},
		},
	}
	changed := Template{
		Video: "a.mp4",
		Script: []ScriptLine{
			{TS: ts(1.0), Line: "First"},
			{TS: ts(2.0), Line: "Different"},
			{TS: ts(3.0), Line: "Third"},
		},
	}

	j1, _ := New(base, cfg)
	j2, _ := New(changed, cfg)

	if j1.Tracks[1].LineHash == j2.Tracks[1].LineHash {
		t.Fatal("changed line should change its hash")
	}
	if j1.Tracks[0].LineHash != j2.Tracks[0].LineHash || j1.Tracks[2].LineHash != j2.Tracks[2].LineHash {
		t.Fatal("unchanged lines should keep their hashes")
	}
	if j1.ScriptHash == j2.ScriptHash {
		t.Fatal("script hash should change with any line")
	}
	if j1.OutputHash == j2.OutputHash {
		t.Fatal("output hash should change with the script")
	}
}

func TestTimingChangesScriptHashOnly(t *testing.T) {
	cfg := testConfig(t)
	j1, _ := New(Template{Video: "a.mp4", Script: []ScriptLine{{TS: ts(1.0), Line: "Hi"}}}, cfg)
	j2, _ := New(Template{Video: "a.mp4", Script: []ScriptLine{{TS: ts(2.0), Line: "Hi"}}}, cfg)

	if j1.Tracks[0].LineHash != j2.Tracks[0].LineHash {
		t.Fatal("timing should not affect the line hash")
	}
	if j1.ScriptHash == j2.ScriptHash {
		t.Fatal("timing should affect the script hash")
	}
}

func TestTTSOptionsAffectLineHash(t *testing.T) {
	cfg := testConfig(t)
	plain, _ := New(Template{Video: "a.mp4", Script: []ScriptLine{{TS: ts(1), Line: "Hi"}}}, cfg)
	voiced, _ := New(Template{
		Video:  "a.mp4",
		TTS:    &TTSOptions{Voice: "bob"},
		Script: []ScriptLine{{TS: ts(1), Line: "Hi"}},
	}, cfg)

	if plain.Tracks[0].LineHash == voiced.Tracks[0].LineHash {
		t.Fatal("a voice override should change the line hash")
	}
	if voiced.TTSOptions.Voice != "bob" {
		t.Fatalf("voice = %q; want bob", voiced.TTSOptions.Voice)
	}
	if voiced.TTSOptions.Bitrate != config.DefaultBitrate {
		t.Fatal("unset override fields should keep global defaults")
	}
}

func TestMalformedTemplates(t *testing.T) {
	cfg := testConfig(t)
	cases := []struct {
		name string
		tpl  Template
		want error
	}{
		{"no script key", Template{Video: "a.mp4"}, ErrInvalidTemplate},
		{"empty script", Template{Video: "a.mp4", Script: []ScriptLine{}}, ErrInvalidTemplate},
		{"missing ts", Template{Video: "a.mp4", Script: []ScriptLine{{Line: "Hi"}}}, ErrMissingField},
		{"missing line", Template{Video: "a.mp4", Script: []ScriptLine{{TS: ts(1)}}}, ErrMissingField},
		{"blank line", Template{Video: "a.mp4", Script: []ScriptLine{{TS: ts(1), Line: "   "}}}, ErrMissingField},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := New(c.tpl, cfg)
			if !errors.Is(err, c.want) {
				t.Fatalf("New error = %v; want %v", err, c.want)
			}
		})
	}
}

func TestExistenceFlagsObservedAtConstruction(t *testing.T) {
	cfg := testConfig(t)
	tpl := Template{Video: "a.mp4", Script: []ScriptLine{{TS: ts(1), Line: "Hi"}}}

	first, err := New(tpl, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if first.HasOutput || first.HasVideo || first.HasScriptAudio || first.Tracks[0].AudioExists {
		t.Fatal("empty cache should leave every flag false")
	}

	for _, path := range []string{first.OutputPath, first.VideoPath, first.ScriptAudioPath, first.Tracks[0].AudioCachePath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("seeding cache: %v", err)
		}
	}

	second, err := New(tpl, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !second.HasOutput || !second.HasVideo || !second.HasScriptAudio || !second.Tracks[0].AudioExists {
		t.Fatal("seeded cache should set every flag")
	}
	if !second.AllAudioCached() {
		t.Fatal("AllAudioCached should be true with every line seeded")
	}
}

func TestParseTemplateTimestampForms(t *testing.T) {
	data := []byte(`{"video":"a.mp4","script":[{"ts":"1.5","line":"a"},{"ts":2,"line":"b"}]}`)
	tpl, err := ParseTemplate(data)
	if err != nil {
		t.Fatalf("ParseTemplate: %v", err)
	}
	if *tpl.Script[0].TS != 1.5 || *tpl.Script[1].TS != 2 {
		t.Fatalf("timestamps = %v, %v; want 1.5, 2", *tpl.Script[0].TS, *tpl.Script[1].TS)
	}
}

func TestParseTemplateRejectsBadJSON(t *testing.T) {
	_, err := ParseTemplate([]byte(`{"video":`))
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("error = %v; want ErrInvalidTemplate", err)
	}
}
