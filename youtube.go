package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	defaultAPIEndpoint = "https://youtube.googleapis.com/"
	defaultSiteBaseURL = "https://www.youtube.com"
	defaultDepth       = 15
)

// ShortsProbe tells Shorts from long-form uploads by requesting /shorts/<id>:
// YouTube redirects long-form videos away from that path.
type ShortsProbe struct {
	SiteBaseURL string
	// Limiter throttles probe requests; nil means unlimited.
	Limiter *rate.Limiter
	client  *http.Client
}

// NewShortsProbe creates a probe with the given request timeout.
func NewShortsProbe(siteBaseURL string, timeout time.Duration) *ShortsProbe {
	if siteBaseURL == "" {
		siteBaseURL = defaultSiteBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ShortsProbe{
		SiteBaseURL: strings.TrimRight(siteBaseURL, "/"),
		client:      &http.Client{Timeout: timeout},
	}
}

// IsShort reports whether videoID is a Short. Probe errors count as long-form.
// A nil probe never reports a Short.
func (p *ShortsProbe) IsShort(ctx context.Context, videoID string) bool {
	if p == nil {
		return false
	}
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return false
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.SiteBaseURL+"/shorts/"+url.PathEscape(videoID), nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return strings.Contains(resp.Request.URL.Path, "/shorts/")
}

// YouTubeAPIHandler discovers videos of @handle channels through the YouTube Data API:
// handle -> uploads playlist -> newest non-Short item.
type YouTubeAPIHandler struct {
	Endpoint string
	Depth    int
	Shorts   *ShortsProbe

	service *youtube.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewYouTubeAPIHandler creates a Data API handler. An empty endpoint uses the public API.
func NewYouTubeAPIHandler(endpoint, apiKey string, depth int, timeout time.Duration, shorts *ShortsProbe, logger *slog.Logger) (*YouTubeAPIHandler, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if endpoint == "" {
		endpoint = defaultAPIEndpoint
	}
	if depth <= 0 {
		depth = defaultDepth
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	service, err := youtube.NewService(context.Background(),
		option.WithAPIKey(apiKey),
		option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &YouTubeAPIHandler{
		Endpoint: endpoint,
		Depth:    depth,
		Shorts:   shorts,
		service:  service,
		timeout:  timeout,
		logger:   logger,
	}, nil
}

func (h *YouTubeAPIHandler) CanHandle(channel string) bool {
	return strings.HasPrefix(channel, "@")
}

// LatestVideo returns the newest long-form upload, or nil when the channel does not
// exist or only has Shorts among its most recent uploads.
func (h *YouTubeAPIHandler) LatestVideo(ctx context.Context, channel string) (*VideoRef, error) {
	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	channels, err := h.service.Channels.List([]string{"snippet", "contentDetails"}).
		ForHandle(strings.TrimPrefix(channel, "@")).
		Context(callCtx).
		Do()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("looking up channel %s: %w", channel, h.apiError("channels", err))
	}
	if len(channels.Items) == 0 {
		h.logger.Debug("channel not found", "channel", channel)
		return nil, nil
	}

	info := channels.Items[0]
	if info.ContentDetails == nil || info.ContentDetails.RelatedPlaylists == nil ||
		info.ContentDetails.RelatedPlaylists.Uploads == "" {
		return nil, nil
	}
	var channelName string
	if info.Snippet != nil {
		channelName = info.Snippet.Title
	}

	callCtx, cancel = context.WithTimeout(ctx, h.timeout)
	playlist, err := h.service.PlaylistItems.List([]string{"snippet"}).
		PlaylistId(info.ContentDetails.RelatedPlaylists.Uploads).
		MaxResults(int64(h.Depth)).
		Context(callCtx).
		Do()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("listing uploads of %s: %w", channel, h.apiError("playlistItems", err))
	}

	for _, item := range playlist.Items {
		if item.Snippet == nil || item.Snippet.ResourceId == nil || item.Snippet.ResourceId.VideoId == "" {
			continue
		}
		videoID := item.Snippet.ResourceId.VideoId
		if h.Shorts.IsShort(ctx, videoID) {
			h.logger.Debug("skipping short", "channel", channel, "video_id", videoID)
			continue
		}
		return &VideoRef{
			VideoID:     videoID,
			Title:       item.Snippet.Title,
			ChannelName: channelName,
			URL:         defaultWatchURL(videoID),
			Description: item.Snippet.Description,
		}, nil
	}
	return nil, nil
}

// apiError maps API failures to *HTTPError and strips the request URL, which carries the key.
func (h *YouTubeAPIHandler) apiError(resource string, err error) error {
	endpoint := strings.TrimRight(h.Endpoint, "/") + "/youtube/v3/" + resource

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &HTTPError{StatusCode: gerr.Code, URL: endpoint}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("requesting %s: %w", endpoint, uerr.Err)
	}
	return err
}
