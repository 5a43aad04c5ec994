// Package engine is the request layer against the remote trading engine. All
// calls go through one fixed base path and return decoded JSON envelopes;
// failures carry an HTTP status and a machine-readable code.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// CodeNetworkError marks transport failures (no HTTP response).
	CodeNetworkError = "network_error"
	// CodeUnknownError is used when the engine returns a failure without a
	// structured code.
	CodeUnknownError = "unknown_error"
)

// RequestError is a failed engine call. Status is 0 for transport failures.
type RequestError struct {
	Status  int
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("engine request failed (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("engine request failed (%d %s): %s", e.Status, e.Code, e.Message)
}

// IsTransport reports whether the error is a transport-level failure, as
// opposed to a rejection by the engine.
func (e *RequestError) IsTransport() bool {
	return e.Status == 0
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL:    baseURL + "/api",
		httpClient: httpClient,
	}
}

// BaseURL returns the resolved base path, including the /api segment.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET and returns the raw response body. Query params with empty
// values are dropped rather than serialized.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if q := compactQuery(query); len(q) > 0 {
		fullURL += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// Post issues a POST with a JSON body and returns the raw response body.
func (c *Client) Post(ctx context.Context, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

// Delete issues a DELETE and returns the raw response body.
func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Code: CodeNetworkError, Message: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Code: CodeNetworkError, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

// decodeError extracts the engine's {error, code, details?} failure body when
// present, falling back to a generic code.
func decodeError(status int, body []byte) *RequestError {
	var envelope struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Code != "" {
		return &RequestError{Status: status, Code: envelope.Code, Message: envelope.Error}
	}
	msg := strings.TrimSpace(string(body))
	if envelope.Error != "" {
		msg = envelope.Error
	}
	return &RequestError{Status: status, Code: CodeUnknownError, Message: msg}
}

func compactQuery(query url.Values) url.Values {
	if query == nil {
		return nil
	}
	out := url.Values{}
	for key, values := range query {
		for _, v := range values {
			if v == "" {
				continue
			}
			out.Add(key, v)
		}
	}
	return out
}

// decodeData unwraps the engine's {data: ...} success envelope.
func decodeData[T any](raw []byte) (T, error) {
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		var zero T
		return zero, fmt.Errorf("decode engine response: %w", err)
	}
	return envelope.Data, nil
}
