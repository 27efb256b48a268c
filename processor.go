package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// DigestProcessor wires the configured collaborators into a pipeline
type DigestProcessor struct {
	config   *Config
	pipeline *Pipeline
	store    *TrackingStore
	dryRun   bool
	logger   *slog.Logger
}

// NewDigestProcessor creates a processor from settings and secrets. A dry run writes
// the digest to disk and leaves tracking state untouched.
func NewDigestProcessor(config *Config, dryRun bool, logger *slog.Logger) (*DigestProcessor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := config.Validate(dryRun); err != nil {
		return nil, err
	}
	s := config.Settings

	discovery, err := newChannelFetcher(config, logger)
	if err != nil {
		return nil, err
	}

	transcripts, err := newTranscriptSource(config, logger)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := config.GetWriterSystemPrompt()
	if err != nil {
		return nil, err
	}
	writer, err := NewArticleAgent(config.Secrets.AnthropicAPIKey, systemPrompt, WriterSettings{
		Model:       s.Writer.Model,
		MaxTokens:   s.Writer.MaxTokens,
		Temperature: s.Writer.Temperature,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating article writer: %w", err)
	}

	templateText, err := config.GetDigestTemplate()
	if err != nil {
		return nil, err
	}
	builder, err := NewDigestBuilder(s.Delivery.SubjectPrefix, templateText, defaultDigestCSS)
	if err != nil {
		return nil, err
	}

	var delivery Deliverer
	if dryRun {
		delivery = NewFileDeliverer(s.Delivery.OutputDir, builder, logger)
	} else {
		delivery = NewSMTPDeliverer(SMTPSettings{
			Host:     s.Delivery.SMTPHost,
			Port:     s.Delivery.SMTPPort,
			SSL:      s.Delivery.SSL,
			Timeout:  s.Delivery.Timeout,
			Username: config.Secrets.SMTPUsername,
			Password: config.Secrets.SMTPPassword,
			From:     config.sender(),
			To:       config.recipient(),
		}, builder, logger)
	}

	store := NewTrackingStore(s.StateFile)
	return &DigestProcessor{
		config: config,
		store:  store,
		dryRun: dryRun,
		logger: logger,
		pipeline: &Pipeline{
			Channels:    s.Channels,
			Discovery:   discovery,
			Transcripts: transcripts,
			Writer:      writer,
			Delivery:    delivery,
			Store:       store,
			Delay:       s.Delay,
			SkipCommit:  dryRun,
			Logger:      logger,
		},
	}, nil
}

// Run executes one pipeline attempt
func (p *DigestProcessor) Run(ctx context.Context) (*RunReport, error) {
	attrs := []any{
		"channels", len(p.config.Settings.Channels),
		"state_file", p.store.Path(),
		"model", p.config.Settings.Writer.Model,
		"dry_run", p.dryRun,
	}
	// an unreadable state file is reported by the pipeline, which aborts on it
	if n, err := p.store.Count(); err == nil {
		attrs = append(attrs, "previously_delivered", n)
	}
	p.logger.Info("starting digest run", attrs...)
	return p.pipeline.Run(ctx)
}

// newChannelFetcher registers the Data API handler only when an API key is present;
// the feed handler is always the fallback.
func newChannelFetcher(config *Config, logger *slog.Logger) (*ChannelFetcher, error) {
	d := config.Settings.Discovery

	var shorts *ShortsProbe
	if !d.SkipShortsProbe {
		shorts = NewShortsProbe(d.SiteBaseURL, d.Timeout)
		if d.ProbeRPS > 0 {
			shorts.Limiter = rate.NewLimiter(rate.Limit(d.ProbeRPS), 1)
		}
	}

	fetcher := NewChannelFetcher()
	if config.Secrets.YouTubeAPIKey != "" {
		api, err := NewYouTubeAPIHandler(d.APIEndpoint, config.Secrets.YouTubeAPIKey, d.Depth, d.Timeout, shorts, logger)
		if err != nil {
			return nil, fmt.Errorf("creating YouTube API handler: %w", err)
		}
		fetcher.AddHandler(api)
	} else {
		logger.Debug("YOUTUBE_API_KEY not set, using channel feeds")
	}
	fetcher.AddHandler(NewFeedHandler(d.SiteBaseURL, d.Depth, d.Timeout, shorts, logger))
	return fetcher, nil
}

func newTranscriptSource(config *Config, logger *slog.Logger) (TranscriptSource, error) {
	t := config.Settings.Transcript
	if len(t.Command) > 0 {
		return &CommandTranscriptSource{Command: t.Command, Timeout: t.Timeout}, nil
	}
	if config.Secrets.TranscriptAPIURL == "" || config.Secrets.TranscriptAPIKey == "" {
		return nil, fmt.Errorf("transcript API configuration missing: set YOUTUBE_TRANSCRIPT_API_KEY and YOUTUBE_TRANSCRIPT_API_URL")
	}
	client := NewTranscriptAPIClient(config.Secrets.TranscriptAPIURL, config.Secrets.TranscriptAPIKey, t.Timeout, logger)
	client.Languages = t.Languages
	client.CacheDir = t.CacheDir
	return client, nil
}
