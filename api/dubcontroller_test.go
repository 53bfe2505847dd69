package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"dubbot/config"
	"dubbot/job"
	"dubbot/pipeline"
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
		Output: config.OutputConfig{Type: config.OutputLocal, URI: "http://localhost:8080/output"},
	}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return cfg
}

// fakeRunner stands in for the pipeline.
type fakeRunner struct {
	err   error
	calls int
}

func (f *fakeRunner) Run(_ context.Context, j *job.Job) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	j.ContentDigest = "abc123"
	return nil
}

func TestHandleDub(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		body       string
		runnerErr  error
		wantStatus int
		wantRuns   int
	}{
		{
			name:       "valid template",
			body:       `{"video":"a.mp4","script":[{"ts":"1.0","line":"Hi"}]}`,
			wantStatus: http.StatusOK,
			wantRuns:   1,
		},
		{
			name:       "invalid json",
			body:       `{"video":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty script",
			body:       `{"video":"a.mp4","script":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing line field",
			body:       `{"video":"a.mp4","script":[{"ts":"1.0"}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "stage failure",
			body:       `{"video":"a.mp4","script":[{"ts":"1.0","line":"Hi"}]}`,
			runnerErr:  &pipeline.StageError{Stage: pipeline.StageMerge, Err: pipeline.ErrMergeFailed},
			wantStatus: http.StatusBadGateway,
			wantRuns:   1,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := testConfig(t)
			runner := &fakeRunner{err: c.runnerErr}
			router := NewRouter(cfg, runner)

			req := httptest.NewRequest(http.MethodPost, "/api/dub", strings.NewReader(c.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != c.wantStatus {
				t.Fatalf("status = %d; want %d (body %s)", rec.Code, c.wantStatus, rec.Body.String())
			}
			if runner.calls != c.wantRuns {
				t.Fatalf("runner calls = %d; want %d", runner.calls, c.wantRuns)
			}

			var resp DubResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			switch c.wantStatus {
			case http.StatusOK:
				if resp.OutputLocation == "" || resp.ContentDigest != "abc123" {
					t.Fatalf("incomplete success payload: %+v", resp)
				}
			case http.StatusBadGateway:
				if resp.Stage != pipeline.StageMerge {
					t.Fatalf("stage = %q; want %q", resp.Stage, pipeline.StageMerge)
				}
			default:
				if resp.Error == "" {
					t.Fatalf("missing error message: %+v", resp)
				}
			}
		})
	}
}

func TestHealthRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(testConfig(t), &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
}
