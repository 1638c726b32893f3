// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
client.go - YouTube Data API v3 client

Three read endpoints are used:

	GET /videos?part=liveStreamingDetails&id={videoId}       activeLiveChatId
	GET /search?part=id&channelId={id}&eventType=live&type=video  current broadcast
	GET /liveChat/messages?liveChatId={id}&part=snippet,authorDetails&pageToken={t}

API Reference: https://developers.google.com/youtube/v3/live/docs/liveChatMessages/list
*/

package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/models"
)

const maxErrorBody = 512

type videoListResponse struct {
	Items []struct {
		ID                   string `json:"id"`
		LiveStreamingDetails *struct {
			ActiveLiveChatID string `json:"activeLiveChatId"`
		} `json:"liveStreamingDetails"`
	} `json:"items"`
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type liveChatMessageListResponse struct {
	NextPageToken         string            `json:"nextPageToken"`
	PollingIntervalMillis int64             `json:"pollingIntervalMillis"`
	OfflineAt             string            `json:"offlineAt"`
	Items                 []json.RawMessage `json:"items"`
}

// client wraps the Data API calls the polling adapter needs. Every call goes
// through the breaker; 4xx responses surface as *adapter.APIError.
type client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	breaker    *adapter.Breaker
}

func newClient(cfg Config, name string) *client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &client{
		apiURL:     strings.TrimSuffix(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		breaker:    adapter.NewBreaker("youtube-data:" + name),
	}
}

// activeLiveChatID returns the chat id of videoID, or "" when the video has
// no active live chat.
func (c *client) activeLiveChatID(ctx context.Context, videoID string) (string, error) {
	var resp videoListResponse
	params := url.Values{"part": {"liveStreamingDetails"}, "id": {videoID}}
	if err := c.get(ctx, "videos", params, &resp); err != nil {
		return "", err
	}
	for _, item := range resp.Items {
		if item.LiveStreamingDetails != nil && item.LiveStreamingDetails.ActiveLiveChatID != "" {
			return item.LiveStreamingDetails.ActiveLiveChatID, nil
		}
	}
	return "", nil
}

// liveVideoID returns the current live broadcast of channelID, or "".
func (c *client) liveVideoID(ctx context.Context, channelID string) (string, error) {
	var resp searchListResponse
	params := url.Values{
		"part":      {"id"},
		"channelId": {channelID},
		"eventType": {"live"},
		"type":      {"video"},
	}
	if err := c.get(ctx, "search", params, &resp); err != nil {
		return "", err
	}
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			return item.ID.VideoID, nil
		}
	}
	return "", nil
}

// listMessages fetches one page of chat items after pageToken.
func (c *client) listMessages(ctx context.Context, liveChatID, pageToken string) (*liveChatMessageListResponse, error) {
	params := url.Values{
		"liveChatId": {liveChatID},
		"part":       {"snippet,authorDetails"},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	var resp liveChatMessageListResponse
	if err := c.get(ctx, "liveChat/messages", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	reqURL := c.apiURL + "/" + endpoint + "?" + params.Encode()

	body, err := c.breaker.Do(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", endpoint, err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", endpoint, err)
		}
		if resp.StatusCode != http.StatusOK {
			if len(data) > maxErrorBody {
				data = data[:maxErrorBody]
			}
			return nil, &adapter.APIError{
				Platform:   models.PlatformYouTube,
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(data)),
			}
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}
