package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"dubbot/job"
)

func TestSynthesizeSendsFormAndReturnsAudio(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = map[string]string{
			"auth":      r.PostFormValue("auth"),
			"text":      r.PostFormValue("text"),
			"voice":     r.PostFormValue("voice"),
			"level":     r.PostFormValue("level"),
			"bitrate":   r.PostFormValue("bitrate"),
			"frequency": r.PostFormValue("frequency"),
		}
		w.Write([]byte("mp3 bytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "derived-token")
	audio, err := c.Synthesize(context.Background(), "Hello there", job.TTSOptions{
		Voice:     "alice",
		Level:     "0",
		Bitrate:   "192k",
		Frequency: 44100,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3 bytes" {
		t.Fatalf("audio = %q; want provider body", audio)
	}

	want := map[string]string{
		"auth":      "derived-token",
		"text":      "Hello there",
		"voice":     "alice",
		"level":     "0",
		"bitrate":   "192k",
		"frequency": "44100",
	}
	for k, v := range want {
		if gotForm[k] != v {
			t.Fatalf("form[%s] = %q; want %q", k, gotForm[k], v)
		}
	}
}

func TestSynthesizeRejectsErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-200", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(c.handler)
			defer srv.Close()

			client := NewClient(srv.URL, "tok")
			if _, err := client.Synthesize(context.Background(), "Hi", job.TTSOptions{Voice: "alice"}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
