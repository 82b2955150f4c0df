package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListTopics lists the pipeline topics available for subscription.
// GET /v1/pipeline/topics
func (c *Gateway) ListTopics(ctx context.Context) (*TopicsResponse, error) {
	var resp TopicsResponse
	if err := c.GetJSON(ctx, "/v1/pipeline/topics", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecentChanges fetches a snapshot of the most recent records for a topic.
// Used as the polling fallback when the streaming channel is down.
// GET /v1/pipeline/topics/{topic}/recent?limit=N
func (c *Gateway) RecentChanges(ctx context.Context, topic string, limit int) (*RecentChangesResponse, error) {
	var resp RecentChangesResponse
	path := fmt.Sprintf("/v1/pipeline/topics/%s/recent", url.PathEscape(topic))
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.GetJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamURL returns the websocket URL for the streaming channel, derived
// from the gateway base URL.
// GET /v1/pipeline/stream (upgraded)
func (c *Gateway) StreamURL() (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/pipeline/stream")
	if err != nil {
		return "", fmt.Errorf("api: stream URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// StreamHeader returns the headers attached to the streaming channel
// handshake: credentials and User-Agent, same as ordinary calls.
func (c *Gateway) StreamHeader() http.Header {
	h := make(http.Header)
	if token := c.token(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	h.Set("User-Agent", userAgentPrefix+c.version)
	return h
}
