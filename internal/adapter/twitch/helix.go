// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package twitch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/streamrelay/internal/adapter"
	"github.com/tomtom215/streamrelay/internal/models"
)

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 512

// subscriptionSpec is the version and condition shape of one EventSub type.
type subscriptionSpec struct {
	version   string
	condition func(broadcasterID string) map[string]string
}

func broadcasterCondition(id string) map[string]string {
	return map[string]string{"broadcaster_user_id": id}
}

var subscriptionSpecs = map[string]subscriptionSpec{
	SubChatMessage: {version: "1", condition: func(id string) map[string]string {
		return map[string]string{"broadcaster_user_id": id, "user_id": id}
	}},
	SubCheer:               {version: "1", condition: broadcasterCondition},
	SubSubscribe:           {version: "1", condition: broadcasterCondition},
	SubSubscriptionGift:    {version: "1", condition: broadcasterCondition},
	SubSubscriptionMessage: {version: "1", condition: broadcasterCondition},
	SubFollow: {version: "2", condition: func(id string) map[string]string {
		return map[string]string{"broadcaster_user_id": id, "moderator_user_id": id}
	}},
	SubRaid: {version: "1", condition: func(id string) map[string]string {
		return map[string]string{"to_broadcaster_user_id": id}
	}},
}

type subscriptionRequest struct {
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	Transport transport         `json:"transport"`
}

type transport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

// newSubscriptionRequest builds the create body for typ bound to sessionID.
func newSubscriptionRequest(typ, broadcasterID, sessionID string) (subscriptionRequest, bool) {
	spec, ok := subscriptionSpecs[typ]
	if !ok {
		return subscriptionRequest{}, false
	}
	return subscriptionRequest{
		Type:      typ,
		Version:   spec.version,
		Condition: spec.condition(broadcasterID),
		Transport: transport{Method: "websocket", SessionID: sessionID},
	}, true
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type createSubscriptionResponse struct {
	Data []subscription `json:"data"`
}

// helixClient covers the two Helix calls a session needs: the app access
// token and EventSub subscription creation. Calls are paced by a token
// bucket and pass through a circuit breaker.
type helixClient struct {
	apiURL       string
	tokenURL     string
	clientID     string
	clientSecret string

	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *adapter.Breaker
}

func newHelixClient(cfg Config) *helixClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	rps := cfg.HelixRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.HelixBurst
	if burst <= 0 {
		burst = 5
	}
	return &helixClient{
		apiURL:       strings.TrimSuffix(cfg.APIURL, "/"),
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		breaker:      adapter.NewBreaker("twitch-helix:" + cfg.ChannelID),
	}
}

// fetchAppToken runs the client-credentials grant.
func (c *helixClient) fetchAppToken(ctx context.Context) (string, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
	}

	body, err := c.do(ctx, "oauth2/token", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	return tok.AccessToken, nil
}

// createSubscription registers one EventSub subscription and returns it as
// the server acknowledged it.
func (c *helixClient) createSubscription(ctx context.Context, token string, sub subscriptionRequest) (subscription, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return subscription{}, fmt.Errorf("encode subscription: %w", err)
	}

	body, err := c.do(ctx, "eventsub/subscriptions", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/eventsub/subscriptions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Client-Id", c.clientID)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return subscription{}, err
	}

	var resp createSubscriptionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return subscription{}, fmt.Errorf("decode subscription response: %w", err)
	}
	if len(resp.Data) == 0 {
		return subscription{}, fmt.Errorf("subscription response for %s is empty", sub.Type)
	}
	return resp.Data[0], nil
}

func (c *helixClient) do(ctx context.Context, endpoint string, build func() (*http.Request, error)) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("helix rate limiter: %w", err)
	}

	return c.breaker.Do(func() ([]byte, error) {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", endpoint, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read %s response: %w", endpoint, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return nil, &adapter.APIError{
				Platform:   models.PlatformTwitch,
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
		}
		return body, nil
	})
}
