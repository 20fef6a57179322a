// Package apiclient sends API calls with automatic loading-state tracking.
//
// Every call made through a Client is bracketed by StartLoading/StopLoading
// on the configured tracker, keyed by "METHOD_resolvedURL", and carries the
// current bearer token when one is available.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the per-call timeout used when Config.Timeout is zero.
	DefaultTimeout = 15 * time.Second

	// maxResponseBytes caps how much of a response body is buffered.
	maxResponseBytes = 16 << 20
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// Config configures a Client.
type Config struct {
	// BaseURL resolves relative addresses.
	BaseURL string
	// Timeout bounds each call. Zero means DefaultTimeout; negative disables it.
	Timeout time.Duration
	// Tracker receives loading notifications. Required.
	Tracker Tracker
	// Tokens supplies the bearer token. Optional.
	Tokens TokenSource
	// Jar stores cookies such as the renewal token. Optional.
	Jar http.CookieJar
	// Base is the underlying transport. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// TaskID derives task ids. Defaults to MethodURLTaskID.
	TaskID TaskIDFunc
}

// Request is a single API call.
type Request struct {
	Method string
	// Address is either relative to the base URL or absolute.
	Address string
	// Body is sent as JSON on non-GET calls. json.RawMessage and []byte are
	// validated and sent verbatim; anything else is marshalled.
	Body any
	// Timeout overrides the client timeout when non-zero.
	Timeout time.Duration
}

// Response is a completed API call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Data returns the body as a decoded JSON value, or as a string when the
// body is not JSON.
func (r *Response) Data() any {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return string(r.Body)
	}
	return v
}

// Client issues tracked API calls.
type Client struct {
	baseURL    string
	timeout    time.Duration
	taskID     TaskIDFunc
	httpClient *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	taskID := cfg.TaskID
	if taskID == nil {
		taskID = MethodURLTaskID
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		taskID:  taskID,
		httpClient: &http.Client{
			Jar: cfg.Jar,
			Transport: &Transport{
				Base:    cfg.Base,
				Tracker: cfg.Tracker,
				Tokens:  cfg.Tokens,
				TaskID:  taskID,
			},
		},
	}
}

// BaseURL returns the base URL relative addresses are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// TaskID returns the task id a call with method and address is tracked
// under.
func (c *Client) TaskID(method, address string) string {
	return c.taskID(normalizeMethod(method), ResolveURL(c.baseURL, strings.TrimSpace(address)))
}

// Get is shorthand for a GET call.
func (c *Client) Get(ctx context.Context, address string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Address: address})
}

// Post is shorthand for a POST call with a JSON body.
func (c *Client) Post(ctx context.Context, address string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Address: address, Body: body})
}

// Do sends req. Input problems fail with ErrInvalidInput before anything is
// dispatched; transport failures and non-2xx statuses are returned after the
// task has been cleared.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := normalizeMethod(req.Method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidInput, req.Method)
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}

	var body io.Reader
	if method != http.MethodGet && req.Body != nil {
		payload, err := encodeBody(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	timeout := c.timeout
	if req.Timeout != 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resolved := ResolveURL(c.baseURL, address)
	id := c.taskID(method, resolved)

	httpReq, err := http.NewRequestWithContext(WithTaskID(ctx, id), method, resolved, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if httpReq.URL.Scheme == "" || httpReq.URL.Host == "" {
		return nil, fmt.Errorf("%w: %q does not resolve to an absolute URL", ErrInvalidInput, resolved)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(respBody) > maxResponseBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, maxResponseBytes)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, newStatusError(httpResp.StatusCode, respBody)
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBody,
	}, nil
}

func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet
	}
	return method
}

func encodeBody(v any) ([]byte, error) {
	var raw []byte
	switch b := v.(type) {
	case json.RawMessage:
		raw = b
	case []byte:
		raw = b
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", ErrInvalidInput, err)
		}
		return payload, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidInput)
	}
	return raw, nil
}
