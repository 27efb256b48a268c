package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNoResult is returned by a stage when the item has no result (for example a video
// without captions). It drops the item like a failure but is logged as expected absence.
var ErrNoResult = errors.New("no result")

// Stage is one ordered transformation applied to every item still in the working set.
type Stage[T any] struct {
	Name  string
	Apply func(ctx context.Context, item T) (T, error)
}

// StageSummary reports how one executed stage narrowed the working set.
type StageSummary struct {
	Stage   string
	In      int
	Out     int
	Dropped []DroppedItem
}

// StageRunner narrows a working set through ordered stages. An item whose stage
// returns an error is dropped for all later stages and never retried.
type StageRunner[T any] struct {
	// Delay is the pause between the end of one call and the start of the next call
	// of the same stage. There is no pause before the first call or after the last.
	Delay time.Duration
	// Describe returns the video id and title used in drop events.
	Describe func(T) (id, title string)
	Logger   *slog.Logger
}

// Run applies stages in order and returns the survivors in input order.
// Stages after the working set becomes empty are not executed.
func (r *StageRunner[T]) Run(ctx context.Context, items []T, stages ...Stage[T]) ([]T, []StageSummary, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	working := items
	summaries := make([]StageSummary, 0, len(stages))

	for _, stage := range stages {
		if len(working) == 0 {
			break
		}

		logger.Info("→ stage started", "stage", stage.Name, "items", len(working))
		summary := StageSummary{Stage: stage.Name, In: len(working)}
		survivors := make([]T, 0, len(working))

		for i, item := range working {
			if err := r.pause(ctx, i); err != nil {
				return nil, summaries, err
			}

			out, err := stage.Apply(ctx, item)
			if err == nil {
				survivors = append(survivors, out)
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, summaries, ctxErr
			}

			drop := r.dropped(stage.Name, item, err)
			summary.Dropped = append(summary.Dropped, drop)
			attrs := []any{
				"stage", stage.Name,
				"video_id", drop.VideoID,
				"title", truncate(drop.Title, 50),
				"reason", drop.Reason,
				"position", i + 1,
			}
			if drop.Reason == DropAbsent {
				logger.Info("✗ item dropped", attrs...)
			} else {
				logger.Warn("✗ item dropped", append(attrs, "error", err)...)
			}
		}

		summary.Out = len(survivors)
		summaries = append(summaries, summary)
		logger.Info("✓ stage finished", "stage", stage.Name, "in", summary.In, "out", summary.Out)
		working = survivors
	}

	return working, summaries, nil
}

// pause waits Delay before every call but the first of a stage.
func (r *StageRunner[T]) pause(ctx context.Context, position int) error {
	if position == 0 || r.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *StageRunner[T]) dropped(stage string, item T, err error) DroppedItem {
	drop := DroppedItem{Stage: stage, Reason: DropFailed, Err: err}
	if errors.Is(err, ErrNoResult) {
		drop.Reason = DropAbsent
	}
	if r.Describe != nil {
		drop.VideoID, drop.Title = r.Describe(item)
	}
	return drop
}
