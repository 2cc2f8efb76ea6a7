// Package siren is an HTTP/JSON client for the scoring backend: teams,
// problems, round state, exploit registration, task lifecycle, and flag
// recording. Grounded on the teacher's usageFetcher HTTP-client idiom
// (process-lifetime *http.Client, plain json.Decode, wrapped errors on
// non-200).
package siren

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Team is a competing team as reported by the scoring backend.
type Team struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Aux  any    `json:"aux,omitempty"`
}

// Problem is a challenge as reported by the scoring backend.
type Problem struct {
	ID      int    `json:"id"`
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Aux     any    `json:"aux,omitempty"`
}

// Endpoint is a team's service endpoint for a given problem.
type Endpoint struct {
	Host string `json:"host"`
	Port string `json:"port"`
}

// Client is a process-lifetime singleton HTTP/JSON client for the scoring
// backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client pointed at baseURL (e.g. "https://siren.internal").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Teams returns every team known to the scoring backend.
func (c *Client) Teams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.get(ctx, "/api/teams", &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// Problems returns every problem (challenge) known to the scoring backend.
func (c *Client) Problems(ctx context.Context) ([]Problem, error) {
	var problems []Problem
	if err := c.get(ctx, "/api/problems", &problems); err != nil {
		return nil, err
	}
	return problems, nil
}

// CurrentRound returns the current round id, or a negative number if the
// contest has not started.
func (c *Client) CurrentRound(ctx context.Context) (int, error) {
	var resp struct {
		Round int `json:"round"`
	}
	if err := c.get(ctx, "/api/current_round", &resp); err != nil {
		return 0, err
	}
	return resp.Round, nil
}

// UpsertExploit creates or replaces an exploit record keyed by
// (name, problemId). imageID is sent as "key", the content-addressed
// identifier the container engine assigned the built image.
func (c *Client) UpsertExploit(ctx context.Context, problemID int, name, imageID string, enabled bool) error {
	body := map[string]any{
		"name":      name,
		"key":       imageID,
		"problemId": problemID,
		"enabled":   enabled,
	}
	return c.post(ctx, "/api/exploits", body, nil)
}

// DeleteExploit removes an exploit record keyed by (name, problemId).
func (c *Client) DeleteExploit(ctx context.Context, problemID int, name string) error {
	body := map[string]any{
		"name":      name,
		"problemId": problemID,
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/exploits", body, nil)
}

// Endpoint resolves the service endpoint for a (team, problem) pair.
func (c *Client) Endpoint(ctx context.Context, teamID, problemID int) (Endpoint, error) {
	body := map[string]any{
		"teamId":    teamID,
		"problemId": problemID,
	}
	var ep Endpoint
	if err := c.post(ctx, "/api/endpoint", body, &ep); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// CreateTask registers a scheduled exploit run upstream and returns its
// assigned task id. The scoring backend is the sole source of task id
// uniqueness. exploitKey is the exploit's image id.
func (c *Client) CreateTask(ctx context.Context, roundID int, exploitKey string, teamID int) (int, error) {
	body := map[string]any{
		"roundId":    roundID,
		"exploitKey": exploitKey,
		"teamId":     teamID,
	}
	var resp struct {
		ID int `json:"id"`
	}
	if err := c.post(ctx, "/api/tasks", body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// ReportStatus pushes a task's latest observed status upstream.
func (c *Client) ReportStatus(ctx context.Context, taskID int, status, stdout, stderr, statusMessage string) error {
	body := map[string]any{
		"status":        status,
		"stdout":        stdout,
		"stderr":        stderr,
		"statusMessage": statusMessage,
	}
	return c.doJSON(ctx, http.MethodPut, "/api/tasks/"+strconv.Itoa(taskID), body, nil)
}

// RecordFlag records a flag submission outcome against a task. message is
// the normalized submission category (e.g. "DUPLICATE", "SKIPPED"); it is
// sent as the wire field "submissionResult". additionalInfo, when present
// (e.g. "Service is inactive"), is sent as the wire field "message".
func (c *Client) RecordFlag(ctx context.Context, taskID int, flag, message, additionalInfo string) error {
	body := map[string]any{
		"taskId":           taskID,
		"flag":             flag,
		"submissionResult": message,
		"message":          additionalInfo,
	}
	return c.post(ctx, "/api/flags", body, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	pathOnly, query := path, ""
	if i := indexQuery(path); i >= 0 {
		pathOnly, query = path[:i], path[i:]
	}
	u, err := url.JoinPath(c.baseURL, pathOnly)
	if err != nil {
		return fmt.Errorf("siren: build url: %w", err)
	}
	u += query

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("siren: encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("siren: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("siren: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("siren: %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("siren: %s %s: decode response: %w", method, path, err)
	}
	return nil
}

// indexQuery finds the query-string start in a path that may already
// contain one, since url.JoinPath does not preserve "?" segments.
func indexQuery(path string) int {
	for i, r := range path {
		if r == '?' {
			return i
		}
	}
	return -1
}
