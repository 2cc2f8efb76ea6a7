// Package defcon is a narrow HTTP/JSON client for the upstream game-control
// API's flag submission endpoint, grounded on the same process-lifetime
// http.Client idiom as the scoring backend client and on
// original_source/fireball/defcon.py's DefconAPI.submit_flag.
package defcon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// FlagResult is the upstream API's response to a flag submission.
type FlagResult struct {
	Message string `json:"message"`
}

// Client submits recovered flags to the upstream game-control API. A nil
// or empty apiURL disables submission entirely.
type Client struct {
	apiURL string
	http   *http.Client
}

// New returns a Client pointed at apiURL. An empty apiURL means submissions
// are disabled; SubmitFlag becomes a no-op.
func New(apiURL string) *Client {
	return &Client{
		apiURL: apiURL,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

// SubmitFlag posts flag to the upstream API and returns its response. If
// the client was constructed with an empty apiURL, this is a no-op that
// returns (nil, nil), mirroring DefconAPI.submit_flag's behavior when no
// URL is configured.
func (c *Client) SubmitFlag(ctx context.Context, flag string) (*FlagResult, error) {
	if c.apiURL == "" {
		return nil, nil
	}

	endpoint, err := url.JoinPath(c.apiURL, "api", "submit_flag", flag)
	if err != nil {
		return nil, fmt.Errorf("defcon: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("defcon: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("defcon: submit flag: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result FlagResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("defcon: decode response: %w", err)
	}
	return &result, nil
}
