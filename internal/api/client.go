package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/health-notify/internal/metrics"
	"github.com/nhle/health-notify/internal/model"
)

// Client is a thin HTTP client for the notification REST API.
// It handles Bearer token authentication, JSON marshaling and error
// classification. It never retries: the sync engine's polling is the
// only recovery mechanism.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a new API client. baseURL is the root of the REST
// API (e.g., https://school.example/api); notification paths are
// appended to it. A nil httpClient gets a 15 second timeout.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// List performs GET /notifications?type=&status=.
func (c *Client) List(ctx context.Context, filter model.Filter) ([]model.Notification, error) {
	q := url.Values{}
	if filter.Type != "" {
		q.Set("type", string(filter.Type))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	path := "/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw json.RawMessage
	if err := c.do(ctx, "list", http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	list, err := decodeList(raw)
	if err != nil {
		return nil, &Error{Kind: KindServer, Op: "list", Message: "decoding notification list", Err: err}
	}
	return list, nil
}

// UnreadCount performs GET /notifications/unread-count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "unread-count", http.MethodGet, "/notifications/unread-count", nil, &raw); err != nil {
		return 0, err
	}

	count, err := decodeCount(raw)
	if err != nil {
		return 0, &Error{Kind: KindServer, Op: "unread-count", Message: "decoding unread count", Err: err}
	}
	return count, nil
}

// Get performs GET /notifications/{id}.
func (c *Client) Get(ctx context.Context, id string) (*Detail, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get", http.MethodGet, "/notifications/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, err
	}

	detail, err := decodeDetail(raw)
	if err != nil {
		return nil, &Error{Kind: KindServer, Op: "get", Message: "decoding notification " + id, Err: err}
	}
	return detail, nil
}

// SetStatus performs PATCH /notifications/{id}/status.
func (c *Client) SetStatus(ctx context.Context, id string, status model.Status) error {
	body := map[string]string{"status": string(status)}
	return c.do(ctx, "set-status", http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/status", body, nil)
}

// Delete performs DELETE /notifications/{id}.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
}

// Archive performs POST /notifications/{id}/archive.
func (c *Client) Archive(ctx context.Context, id string) error {
	return c.do(ctx, "archive", http.MethodPost, "/notifications/"+url.PathEscape(id)+"/archive", nil, nil)
}

// Restore performs POST /notifications/{id}/restore.
func (c *Client) Restore(ctx context.Context, id string) error {
	return c.do(ctx, "restore", http.MethodPost, "/notifications/"+url.PathEscape(id)+"/restore", nil, nil)
}

// do is the core HTTP method that builds the request, attaches the
// bearer token, classifies failures and decodes the JSON response.
func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Message: "marshaling request body", Err: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &Error{Kind: KindValidation, Op: op, Message: "creating request", Err: err}
	}

	token, err := c.tokens.Token()
	if err != nil {
		return &Error{Kind: KindUnauthorized, Op: op, Message: "no credential available", Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(op, "error", time.Since(start))
		return &Error{
			Kind:    KindNetwork,
			Op:      op,
			Message: fmt.Sprintf("executing request %s %s", method, path),
			Err:     err,
		}
	}
	defer resp.Body.Close()
	metrics.ObserveRequest(op, strconv.Itoa(resp.StatusCode), time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Message: "reading response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Kind:       kindForStatus(resp.StatusCode),
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return &Error{
			Kind:    KindServer,
			Op:      op,
			Message: fmt.Sprintf("unmarshaling response from %s %s", method, path),
			Err:     err,
		}
	}

	return nil
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
