package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

// WriterSettings holds the model parameters of the article writer
type WriterSettings struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// completeFunc sends one system+user prompt and returns the text of the reply
type completeFunc func(systemPrompt, userPrompt string) (string, error)

// ArticleAgent remixes video transcripts into magazine articles using Claude
type ArticleAgent struct {
	systemPrompt string
	settings     WriterSettings
	complete     completeFunc
	logger       *slog.Logger
}

// NewArticleAgent creates an agent backed by the Anthropic API
func NewArticleAgent(apiKey, systemPrompt string, settings WriterSettings, logger *slog.Logger) (*ArticleAgent, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	requestSettings := types.RequestSettings{
		Model:       settings.Model,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
	}
	complete := func(systemPrompt, userPrompt string) (string, error) {
		response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, "", apiKey, requestSettings)
		if err != nil {
			return "", err
		}
		if len(response.Content) == 0 {
			return "", fmt.Errorf("no content in response")
		}
		return response.Content[0].Text, nil
	}

	return &ArticleAgent{
		systemPrompt: systemPrompt,
		settings:     settings,
		complete:     complete,
		logger:       logger,
	}, nil
}

// WriteArticle generates the article markdown for one transcribed video
func (a *ArticleAgent) WriteArticle(ctx context.Context, item TranscriptItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(item.Transcript) == "" {
		return "", fmt.Errorf("no transcript for %s", item.VideoID)
	}

	a.logger.Debug("→ writing article", "video_id", item.VideoID, "model", a.settings.Model,
		"transcript_chars", len(item.Transcript))

	text, err := a.complete(a.systemPrompt, buildUserPrompt(item))
	if err != nil {
		return "", fmt.Errorf("writer agent failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	article := stripCodeFence(text)
	if article == "" {
		return "", fmt.Errorf("writer agent returned an empty article")
	}
	return article, nil
}

// buildUserPrompt lays out the video metadata ahead of the transcript
func buildUserPrompt(item TranscriptItem) string {
	videoURL := item.URL
	if videoURL == "" {
		videoURL = defaultWatchURL(item.VideoID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "VIDEO TITLE: %s\n", item.Title)
	fmt.Fprintf(&b, "CHANNEL: %s\n", item.ChannelName)
	fmt.Fprintf(&b, "VIDEO URL: %s\n\n", videoURL)
	fmt.Fprintf(&b, "VIDEO DESCRIPTION:\n%s\n\n", item.Description)
	fmt.Fprintf(&b, "TRANSCRIPT:\n%s\n\n", item.Transcript)
	b.WriteString("---\n\nRemix this YouTube transcript into a magazine article.")
	return b.String()
}

// stripCodeFence removes a ``` fence wrapping the whole response
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	body := strings.TrimSuffix(s[3:], "```")
	// drop the info string (```markdown)
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		return s
	}
	return strings.TrimSpace(body)
}
