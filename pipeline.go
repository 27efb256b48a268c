package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Discoverer finds the newest long-form upload of a channel. A nil video with a nil
// error means the channel has nothing to offer.
type Discoverer interface {
	LatestVideo(ctx context.Context, channel string) (*VideoRef, error)
}

// TranscriptSource returns the transcript text of a video, or ErrNoTranscript.
type TranscriptSource interface {
	Transcript(ctx context.Context, videoID string) (string, error)
}

// ArticleWriter turns a transcribed video into article markdown.
type ArticleWriter interface {
	WriteArticle(ctx context.Context, item TranscriptItem) (string, error)
}

// Deliverer sends one digest. A nil error is the only success signal.
type Deliverer interface {
	Deliver(ctx context.Context, articles []ArticleItem) error
}

// ErrDeliveryFailed wraps delivery errors so callers can tell them from setup errors.
var ErrDeliveryFailed = errors.New("delivery failed")

// Pipeline runs discover → dedup → transcript → article → deliver → commit.
type Pipeline struct {
	Channels    []string
	Discovery   Discoverer
	Transcripts TranscriptSource
	Writer      ArticleWriter
	Delivery    Deliverer
	Store       *TrackingStore

	// Delay spaces successive calls to the transcript and article services.
	Delay time.Duration
	// SkipCommit leaves tracking state untouched even when delivery succeeds (dry runs).
	SkipCommit bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Run executes one pipeline attempt. Tracking state is written only after delivery
// succeeds, and only for the items that were handed to delivery.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{RunID: uuid.NewString()}
	logger := p.logger().With("run_id", report.RunID)

	unlock, err := p.Store.Lock()
	if err != nil {
		return report, err
	}
	defer unlock()

	candidates := p.discover(ctx, logger)
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		logger.Info("no videos found, check the channel list")
		p.logSummary(logger, report)
		return report, nil
	}

	tracked, err := p.Store.Load()
	if err != nil {
		return report, fmt.Errorf("loading tracking state: %w", err)
	}
	logger.Info("tracking state loaded", "previously_delivered", len(tracked))

	fresh := FilterNew(candidates, tracked, logger)
	report.New = len(fresh)
	report.Skipped = len(candidates) - len(fresh)
	if len(fresh) == 0 {
		logger.Info("no new videos, everything was delivered before")
		p.logSummary(logger, report)
		return report, nil
	}

	items := make([]ArticleItem, len(fresh))
	for i, video := range fresh {
		items[i] = ArticleItem{TranscriptItem: TranscriptItem{VideoRef: video}}
	}

	runner := &StageRunner[ArticleItem]{
		Delay:    p.Delay,
		Describe: func(a ArticleItem) (string, string) { return a.VideoID, a.Title },
		Logger:   logger,
	}
	articles, summaries, err := runner.Run(ctx, items, p.transcriptStage(), p.articleStage())
	report.Stages = summaries
	for _, s := range summaries {
		report.Dropped = append(report.Dropped, s.Dropped...)
		switch s.Stage {
		case stageTranscript:
			report.Transcribed = s.Out
		case stageArticle:
			report.Written = s.Out
		}
	}
	if err != nil {
		return report, err
	}
	if len(articles) == 0 {
		logger.Info("no articles survived, nothing to deliver")
		p.logSummary(logger, report)
		return report, nil
	}

	logger.Info("→ delivering digest", "articles", len(articles))
	if err := p.Delivery.Deliver(ctx, articles); err != nil {
		logger.Error("✗ delivery failed, tracking state unchanged", "error", err)
		p.logSummary(logger, report)
		return report, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	report.Delivered = true
	logger.Info("✓ digest delivered", "articles", len(articles))

	if p.SkipCommit {
		logger.Info("dry run, tracking state unchanged")
		p.logSummary(logger, report)
		return report, nil
	}

	records := deliveryRecords(articles, p.now())
	if err := p.Store.Commit(records); err != nil {
		// The digest is out but not recorded; the next run would send these again.
		logger.Error("✗ committing tracking state failed", "error", err, "videos", len(records))
		return report, fmt.Errorf("committing tracking state: %w", err)
	}
	report.Committed = len(records)
	logger.Info("✓ marked videos as delivered", "count", len(records))

	p.logSummary(logger, report)
	return report, nil
}

const (
	stageTranscript = "transcript"
	stageArticle    = "article"
)

// discover asks for one video per channel. Channel errors only exclude that channel.
func (p *Pipeline) discover(ctx context.Context, logger *slog.Logger) []VideoRef {
	logger.Info("→ fetching latest videos", "channels", len(p.Channels))
	var videos []VideoRef
	for _, channel := range p.Channels {
		video, err := p.Discovery.LatestVideo(ctx, channel)
		switch {
		case err != nil:
			logger.Warn("✗ channel lookup failed", "channel", channel, "error", err)
		case video == nil:
			logger.Info("✗ no long-form video found", "channel", channel)
		default:
			logger.Info("✓ found", "channel", channel, "video_id", video.VideoID, "title", video.Title)
			videos = append(videos, *video)
		}
	}
	return videos
}

func (p *Pipeline) transcriptStage() Stage[ArticleItem] {
	return Stage[ArticleItem]{
		Name: stageTranscript,
		Apply: func(ctx context.Context, item ArticleItem) (ArticleItem, error) {
			text, err := p.Transcripts.Transcript(ctx, item.VideoID)
			if err != nil {
				if errors.Is(err, ErrNoTranscript) {
					return item, fmt.Errorf("%w: %w", ErrNoResult, err)
				}
				return item, err
			}
			if text == "" {
				return item, ErrNoResult
			}
			item.Transcript = text
			return item, nil
		},
	}
}

func (p *Pipeline) articleStage() Stage[ArticleItem] {
	return Stage[ArticleItem]{
		Name: stageArticle,
		Apply: func(ctx context.Context, item ArticleItem) (ArticleItem, error) {
			body, err := p.Writer.WriteArticle(ctx, item.TranscriptItem)
			if err != nil {
				return item, err
			}
			if body == "" {
				return item, ErrNoResult
			}
			item.ArticleBody = body
			return item, nil
		},
	}
}

func deliveryRecords(articles []ArticleItem, at time.Time) []DeliveryRecord {
	records := make([]DeliveryRecord, len(articles))
	for i, a := range articles {
		records[i] = DeliveryRecord{
			VideoID:     a.VideoID,
			Title:       a.Title,
			ChannelName: a.ChannelName,
			ProcessedAt: at,
		}
	}
	return records
}

func (p *Pipeline) logSummary(logger *slog.Logger, r *RunReport) {
	logger.Info("run summary",
		"candidates", r.Candidates,
		"new", r.New,
		"skipped", r.Skipped,
		"transcripts", r.Transcribed,
		"articles", r.Written,
		"delivered", r.Delivered,
		"committed", r.Committed,
		"dropped", len(r.Dropped))
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
