// Package actionsvc talks to the action services backing workflow steps: the
// invoke API that executes an action and the external catalogue used to
// enrich workflow drafts.
package actionsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"goa.design/clue/log"
)

// Result statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// maxAttempts bounds the in-call retry loop. Backoff between attempts is the
// orchestration layer's job; the client never sleeps.
const maxAttempts = 3

type (
	// Option configures the invoke client.
	Option func(*Client)

	// Client invokes actions over the action service REST API.
	Client struct {
		baseURL  string
		username string
		password string
		http     *http.Client
	}

	// Result is the terminal outcome of one action invocation. A FAILED
	// result is a value: the caller records it instead of receiving an
	// error.
	Result struct {
		Status     string         `json:"status"`
		Data       map[string]any `json:"data,omitempty"`
		Error      string         `json:"error,omitempty"`
		ActionName string         `json:"action_name"`
	}
)

// WithHTTPClient overrides the underlying *http.Client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithBasicAuth sets the credentials sent with every invocation.
func WithBasicAuth(username, password string) Option {
	return func(cl *Client) {
		cl.username = username
		cl.password = password
	}
}

// New constructs an invoke client for the action service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	cl := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	if cl.http == nil {
		cl.http = &http.Client{Timeout: 120 * time.Second}
	}
	return cl
}

// Invoke calls POST {base}/api/v1/actions/{name} with the standard body
// {event_data, configurations, data} drawn from config. Responses with 5xx
// status and transport errors are retried up to maxAttempts; 4xx responses
// fail immediately since retrying a caller error cannot help. Exhausted
// attempts produce a FAILED result, never an error.
func (c *Client) Invoke(ctx context.Context, actionName string, config map[string]any) *Result {
	endpoint := fmt.Sprintf("%s/api/v1/actions/%s", c.baseURL, actionName)
	body := map[string]any{
		"event_data":     sectionOf(config, "event_data"),
		"configurations": sectionOf(config, "configurations"),
		"data":           sectionOf(config, "data"),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return &Result{Status: StatusFailed, Error: fmt.Sprintf("encode request: %s", err), ActionName: actionName}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.Debugf(ctx, "invoking action %s (attempt %d/%d)", actionName, attempt, maxAttempts)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return &Result{Status: StatusFailed, Error: err.Error(), ActionName: actionName}
		}
		req.Header.Set("Content-Type", "application/json")
		if c.username != "" || c.password != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var decoded any
			derr := json.NewDecoder(resp.Body).Decode(&decoded)
			closeBody(resp)
			if derr != nil {
				lastErr = fmt.Errorf("decode response: %w", derr)
				continue
			}
			return &Result{Status: StatusSuccess, Data: asDataMap(decoded), ActionName: actionName}
		}

		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		closeBody(resp)
		lastErr = fmt.Errorf("action service status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode < 500 {
			break
		}
	}

	msg := "action invocation failed"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	log.Errorf(ctx, lastErr, "action %s failed after %d attempts", actionName, maxAttempts)
	return &Result{Status: StatusFailed, Error: msg, ActionName: actionName}
}

// sectionOf returns the named section of the action config, defaulting to an
// empty object so the wire body always carries all three keys.
func sectionOf(config map[string]any, key string) any {
	if config == nil {
		return map[string]any{}
	}
	if v, ok := config[key]; ok {
		return v
	}
	return map[string]any{}
}

// asDataMap normalizes the service response to a map payload. Non-object
// responses are wrapped under "result" so callers always see a map.
func asDataMap(decoded any) map[string]any {
	if decoded == nil {
		return nil
	}
	if m, ok := decoded.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": decoded}
}

func closeBody(resp *http.Response) {
	_ = resp.Body.Close()
}
