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

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// FeedHandler discovers videos from the public channel RSS feed. It needs no API key
// and accepts both UC... channel ids and @handles (resolved from the channel page).
type FeedHandler struct {
	SiteBaseURL string
	Depth       int
	Shorts      *ShortsProbe

	client *http.Client
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewFeedHandler creates a feed handler.
func NewFeedHandler(siteBaseURL string, depth int, timeout time.Duration, shorts *ShortsProbe, logger *slog.Logger) *FeedHandler {
	if siteBaseURL == "" {
		siteBaseURL = defaultSiteBaseURL
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
	client := &http.Client{Timeout: timeout}
	parser := gofeed.NewParser()
	parser.Client = client
	return &FeedHandler{
		SiteBaseURL: strings.TrimRight(siteBaseURL, "/"),
		Depth:       depth,
		Shorts:      shorts,
		client:      client,
		parser:      parser,
		logger:      logger,
	}
}

// CanHandle always returns true; the feed handler is the fallback.
func (h *FeedHandler) CanHandle(channel string) bool {
	return true
}

// LatestVideo returns the newest long-form entry of the channel feed.
func (h *FeedHandler) LatestVideo(ctx context.Context, channel string) (*VideoRef, error) {
	channelID := channel
	if strings.HasPrefix(channel, "@") {
		id, err := h.resolveHandle(ctx, channel)
		if err != nil {
			return nil, err
		}
		if id == "" {
			h.logger.Debug("channel not found", "channel", channel)
			return nil, nil
		}
		channelID = id
	}

	feedURL := h.SiteBaseURL + "/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
	feed, err := h.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode == http.StatusNotFound {
				return nil, nil
			}
			return nil, &HTTPError{StatusCode: httpErr.StatusCode, URL: feedURL}
		}
		return nil, fmt.Errorf("reading feed of %s: %w", channel, err)
	}

	return h.latestLongForm(ctx, channel, feed), nil
}

func (h *FeedHandler) latestLongForm(ctx context.Context, channel string, feed *gofeed.Feed) *VideoRef {
	for i, item := range feed.Items {
		if i >= h.Depth {
			break
		}
		videoID := feedVideoID(item)
		if videoID == "" {
			continue
		}
		if strings.Contains(item.Link, "/shorts/") || h.Shorts.IsShort(ctx, videoID) {
			h.logger.Debug("skipping short", "channel", channel, "video_id", videoID)
			continue
		}

		channelName := feed.Title
		if len(item.Authors) > 0 && item.Authors[0].Name != "" {
			channelName = item.Authors[0].Name
		}
		return &VideoRef{
			VideoID:     videoID,
			Title:       item.Title,
			ChannelName: channelName,
			URL:         defaultWatchURL(videoID),
			Description: feedDescription(item),
		}
	}
	return nil
}

// resolveHandle reads the channel id from the channel page. An empty id with a nil
// error means the handle does not exist.
func (h *FeedHandler) resolveHandle(ctx context.Context, handle string) (string, error) {
	pageURL := h.SiteBaseURL + "/" + handle
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	// the consent interstitial has no channel metadata
	req.AddCookie(&http.Cookie{Name: "CONSENT", Value: "YES+1"})

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", handle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: pageURL}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parsing channel page %s: %w", pageURL, err)
	}
	return channelIDFromPage(doc), nil
}

func channelIDFromPage(doc *goquery.Document) string {
	if id, ok := doc.Find(`meta[itemprop="identifier"]`).Attr("content"); ok && strings.HasPrefix(id, "UC") {
		return id
	}
	if id, ok := doc.Find(`meta[itemprop="channelId"]`).Attr("content"); ok && strings.HasPrefix(id, "UC") {
		return id
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		if _, id, found := strings.Cut(href, "/channel/"); found {
			id, _, _ = strings.Cut(id, "/")
			if strings.HasPrefix(id, "UC") {
				return id
			}
		}
	}
	return ""
}

func feedVideoID(item *gofeed.Item) string {
	if yt, ok := item.Extensions["yt"]; ok {
		if ids := yt["videoId"]; len(ids) > 0 && ids[0].Value != "" {
			return ids[0].Value
		}
	}
	if u, err := url.Parse(item.Link); err == nil {
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		if _, id, found := strings.Cut(u.Path, "/shorts/"); found {
			return id
		}
	}
	return ""
}

// feedDescription reads media:group/media:description, falling back to the item description.
func feedDescription(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, group := range media["group"] {
			if d := group.Children["description"]; len(d) > 0 {
				return d[0].Value
			}
		}
	}
	return item.Description
}
