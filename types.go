package main

import "time"

// VideoRef identifies one candidate video found by discovery.
type VideoRef struct {
	VideoID     string `json:"video_id"`
	Title       string `json:"title"`
	ChannelName string `json:"channel"`
	URL         string `json:"url"`
	// Description is only used by the writer to correct transcription errors.
	Description string `json:"description,omitempty"`
}

// TranscriptItem is a video together with its transcript text.
type TranscriptItem struct {
	VideoRef
	Transcript string `json:"transcript,omitempty"`
}

// ArticleItem is a transcribed video with its generated article (markdown).
type ArticleItem struct {
	TranscriptItem
	ArticleBody string `json:"article,omitempty"`
}

// DeliveryRecord is persisted for every video that was part of a delivered digest.
type DeliveryRecord struct {
	VideoID     string    `json:"-"`
	Title       string    `json:"title"`
	ChannelName string    `json:"channel"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DropReason says why an item left the working set
type DropReason string

const (
	DropAbsent DropReason = "absent"
	DropFailed DropReason = "failed"
)

// DroppedItem records one item removed by a stage.
type DroppedItem struct {
	Stage   string
	VideoID string
	Title   string
	Reason  DropReason
	Err     error
}

// RunReport summarizes one pipeline run for the operator.
type RunReport struct {
	RunID       string
	Candidates  int
	New         int
	Skipped     int
	Transcribed int
	Written     int
	Delivered   bool
	Committed   int
	Dropped     []DroppedItem
	Stages      []StageSummary
}

// defaultWatchURL builds the canonical watch URL for a video id.
func defaultWatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
