package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoTranscript means the video has no transcript (captions disabled, wrong language).
var ErrNoTranscript = errors.New("no transcript available")

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// TranscriptAPIClient fetches plain-text transcripts from a transcript API that
// accepts `url`, `api_key`, `text` and `lang` query parameters.
type TranscriptAPIClient struct {
	APIURL    string
	APIKey    string
	Languages []string
	// CacheDir keeps fetched transcripts on disk. Empty disables caching.
	CacheDir string

	client *http.Client
	logger *slog.Logger
}

// NewTranscriptAPIClient creates a client with the given request timeout.
func NewTranscriptAPIClient(apiURL, apiKey string, timeout time.Duration, logger *slog.Logger) *TranscriptAPIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TranscriptAPIClient{
		APIURL: apiURL,
		APIKey: apiKey,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Transcript returns the transcript of videoID. A 404 or an empty body is ErrNoTranscript.
func (c *TranscriptAPIClient) Transcript(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", fmt.Errorf("empty video id")
	}

	cachePath := c.cachePath(videoID)
	if cachePath != "" {
		if content, err := os.ReadFile(cachePath); err == nil && len(content) > 0 {
			c.logger.Debug("transcript cache hit", "video_id", videoID)
			return string(content), nil
		}
	}

	transcript, err := c.fetch(ctx, videoID)
	if err != nil {
		return "", err
	}

	if cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
			c.logger.Warn("transcript cache unavailable", "error", err)
		} else if err := os.WriteFile(cachePath, []byte(transcript), 0644); err != nil {
			c.logger.Warn("caching transcript failed", "video_id", videoID, "error", err)
		}
	}

	return transcript, nil
}

func (c *TranscriptAPIClient) fetch(ctx context.Context, videoID string) (string, error) {
	videoURL := defaultWatchURL(videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIURL, nil)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Add("url", videoURL)
	q.Add("api_key", c.APIKey)
	q.Add("text", "true")
	if len(c.Languages) > 0 {
		q.Add("lang", strings.Join(c.Languages, ","))
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	c.logger.Debug("transcript API response", "video_id", videoID, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNoTranscript
	case resp.StatusCode != http.StatusOK:
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: videoURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading transcript body: %w", err)
	}

	transcript := strings.TrimSpace(string(body))
	if transcript == "" {
		return "", ErrNoTranscript
	}
	c.logger.Debug("transcript API body", "video_id", videoID, "preview", truncate(transcript, 100))
	return transcript, nil
}

func (c *TranscriptAPIClient) cachePath(videoID string) string {
	if c.CacheDir == "" {
		return ""
	}
	return filepath.Join(c.CacheDir, filepath.Base(videoID))
}

// CommandTranscriptSource runs an external helper that prints the transcript of the
// video id passed as its last argument.
type CommandTranscriptSource struct {
	Command []string
	Timeout time.Duration
}

// Transcript runs the helper. A non-zero exit is a failure; empty output is ErrNoTranscript.
func (s *CommandTranscriptSource) Transcript(ctx context.Context, videoID string) (string, error) {
	if len(s.Command) == 0 {
		return "", fmt.Errorf("transcript command not configured")
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, s.Command[1:]...), videoID)
	cmd := exec.CommandContext(ctx, s.Command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("transcript command %s: %w: %s", s.Command[0], err, truncate(msg, 200))
		}
		return "", fmt.Errorf("transcript command %s: %w", s.Command[0], err)
	}

	transcript := strings.TrimSpace(stdout.String())
	if transcript == "" {
		return "", ErrNoTranscript
	}
	return transcript, nil
}
