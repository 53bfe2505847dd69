// Package tts talks to the text-to-speech provider.
package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dubbot/job"
)

// Synthesizer converts one line of text into audio bytes. The pipeline
// depends on this interface so tests can substitute a fake provider.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts job.TTSOptions) ([]byte, error)
}

// Client is the HTTP implementation of Synthesizer. The provider is
// addressed with a token derived from static credentials; voice
// parameters ride along as form values.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a provider client for the given endpoint and
// derived auth token.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Synthesize posts the line to the provider and returns the audio
// bytes. Any non-200 response or empty body is an error.
func (c *Client) Synthesize(ctx context.Context, text string, opts job.TTSOptions) ([]byte, error) {
	form := url.Values{}
	form.Set("auth", c.token)
	form.Set("text", text)
	form.Set("voice", opts.Voice)
	if opts.Effect != "" {
		form.Set("effect", opts.Effect)
	}
	form.Set("level", opts.Level)
	form.Set("bitrate", opts.Bitrate)
	form.Set("frequency", strconv.Itoa(opts.Frequency))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts provider returned status %d: %s", resp.StatusCode, snippet(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("tts provider returned empty audio")
	}
	return body, nil
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
