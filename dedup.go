package main

import "log/slog"

// FilterNew returns the candidates that have never been delivered, in input order.
// It does no I/O; skipped videos are only reported through logger.
func FilterNew(candidates []VideoRef, tracked map[string]DeliveryRecord, logger *slog.Logger) []VideoRef {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	seen := make(map[string]struct{}, len(candidates))
	fresh := make([]VideoRef, 0, len(candidates))

	for _, video := range candidates {
		if rec, ok := tracked[video.VideoID]; ok {
			logger.Info("⏭ skipping, already delivered",
				"video_id", video.VideoID,
				"title", truncate(video.Title, 50),
				"delivered_at", rec.ProcessedAt)
			continue
		}
		if _, ok := seen[video.VideoID]; ok {
			logger.Info("⏭ skipping, duplicate candidate",
				"video_id", video.VideoID,
				"channel", video.ChannelName)
			continue
		}
		seen[video.VideoID] = struct{}{}
		fresh = append(fresh, video)
	}

	return fresh
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
