package actionsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"goa.design/clue/log"
)

type (
	// CatalogOption configures the catalogue client.
	CatalogOption func(*CatalogClient)

	// CatalogClient fetches the external action catalogue used to enrich
	// workflow drafts. All failures degrade to an empty result: enrichment
	// is best-effort and must never fail a chat turn.
	CatalogClient struct {
		baseURL  string
		username string
		password string
		http     *http.Client
	}

	// CatalogAction is one entry of the external catalogue. ID is untyped
	// because upstream services disagree on numeric versus string ids.
	CatalogAction struct {
		ID          any            `json:"id,omitempty"`
		ActionName  string         `json:"action_name"`
		Domain      string         `json:"domain,omitempty"`
		Category    string         `json:"category,omitempty"`
		DisplayName string         `json:"display_name,omitempty"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	}
)

// WithCatalogHTTPClient overrides the underlying *http.Client.
func WithCatalogHTTPClient(c *http.Client) CatalogOption {
	return func(cl *CatalogClient) {
		cl.http = c
	}
}

// WithCatalogBasicAuth sets the credentials sent with catalogue requests.
func WithCatalogBasicAuth(username, password string) CatalogOption {
	return func(cl *CatalogClient) {
		cl.username = username
		cl.password = password
	}
}

// NewCatalog constructs a catalogue client for the external service at
// baseURL.
func NewCatalog(baseURL string, opts ...CatalogOption) *CatalogClient {
	cl := &CatalogClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cl)
		}
	}
	if cl.http == nil {
		cl.http = &http.Client{Timeout: 30 * time.Second}
	}
	return cl
}

// FetchActions retrieves every action from the external catalogue via
// GET {base}/api/actions. The response may be either {"actions": [...]} or a
// bare list; anything else, and any transport or status failure, yields an
// empty list.
func (c *CatalogClient) FetchActions(ctx context.Context) []CatalogAction {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/actions", nil)
	if err != nil {
		log.Warnf(ctx, "build catalogue request: %s", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warnf(ctx, "fetch external actions: %s", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warnf(ctx, "fetch external actions: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warnf(ctx, "read external actions: %s", err)
		return nil
	}

	var wrapped struct {
		Actions []CatalogAction `json:"actions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Actions != nil {
		return wrapped.Actions
	}
	var list []CatalogAction
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	log.Warnf(ctx, "unexpected response format from external catalogue")
	return nil
}

// BuildLookup fetches the catalogue and keys it by action name. Entries
// without a display name get one derived from the action name, and Domain
// falls back to Category.
func (c *CatalogClient) BuildLookup(ctx context.Context) map[string]CatalogAction {
	actions := c.FetchActions(ctx)
	lookup := make(map[string]CatalogAction, len(actions))
	for _, a := range actions {
		if a.ActionName == "" {
			continue
		}
		if a.Domain == "" {
			a.Domain = a.Category
		}
		if a.DisplayName == "" {
			a.DisplayName = DisplayName(a.ActionName)
		}
		lookup[a.ActionName] = a
	}
	return lookup
}

// DisplayName renders a snake_case action name in title case, for example
// "send_email_notification" becomes "Send Email Notification".
func DisplayName(actionName string) string {
	words := strings.Fields(strings.ReplaceAll(actionName, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
