// Package client is the thin HTTP client the CLI commands share. It
// talks to the pg-advisor REST API under /v1 and turns non-2xx
// responses into APIError values the commands can inspect.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls the pg-advisor API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a client for the given base URL. A trailing slash
// is stripped so path joining stays predictable.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Do sends one request. path is relative to /v1; body, when non-nil,
// is JSON-encoded. The caller owns the response body.
func (c *Client) Do(method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.BaseURL + "/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// Get is Do with CheckError and a JSON decode into out.
func (c *Client) Get(path string, query url.Values, out any) error {
	resp, err := c.Do(http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// Post sends body and decodes the response into out when out is
// non-nil.
func (c *Client) Post(path string, body, out any) error {
	resp, err := c.Do(http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// Delete issues a DELETE and checks the status.
func (c *Client) Delete(path string) error {
	resp, err := c.Do(http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

func decode(resp *http.Response, out any) error {
	if err := CheckError(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return nil
	}
	data, err := ReadBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.HTTPStatus, e.Message)
}

// CheckError returns nil for 2xx responses. Anything else is read,
// closed, and returned as an *APIError; the server's {code, message}
// body is used when present, the raw body otherwise.
func CheckError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	data, _ := ReadBody(resp)
	apiErr := &APIError{HTTPStatus: resp.StatusCode}

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

// ReadBody reads and closes a response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}
