package main

import (
	"context"
	"fmt"
	"strings"
)

// DiscoveryHandler finds the latest video for the channels it accepts
type DiscoveryHandler interface {
	CanHandle(channel string) bool
	LatestVideo(ctx context.Context, channel string) (*VideoRef, error)
}

// ChannelFetcher dispatches each channel to the first handler that accepts it
type ChannelFetcher struct {
	handlers []DiscoveryHandler
}

// NewChannelFetcher creates a fetcher with the given handlers (most specific first)
func NewChannelFetcher(handlers ...DiscoveryHandler) *ChannelFetcher {
	f := &ChannelFetcher{}
	for _, h := range handlers {
		f.AddHandler(h)
	}
	return f
}

// AddHandler adds a discovery handler to the chain
func (f *ChannelFetcher) AddHandler(handler DiscoveryHandler) {
	if handler != nil {
		f.handlers = append(f.handlers, handler)
	}
}

// LatestVideo finds the newest long-form video of channel using the handler chain
func (f *ChannelFetcher) LatestVideo(ctx context.Context, channel string) (*VideoRef, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, fmt.Errorf("empty channel")
	}

	for _, handler := range f.handlers {
		if handler.CanHandle(channel) {
			return handler.LatestVideo(ctx, channel)
		}
	}

	return nil, fmt.Errorf("no handler found for %s", channel)
}
