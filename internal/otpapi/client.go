// Package otpapi forwards manager requests to the OTP backend API.
package otpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/otp-manager/otp-manager/internal/platform/httpx"
	"github.com/otp-manager/otp-manager/internal/shared"
)

const (
	unreachableMessage = "Api did not give a response"
	forwardedMessage   = "Error forwarded from API response"
)

// Request describes one outbound call. Path is relative to the API base URL
// and must already be escaped.
type Request struct {
	Path   string
	Method string
	Body   []byte
	Bearer bool
	// Route labels metrics; usually the unexpanded template.
	Route string
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Observer receives the outcome of every forward. Status is 0 when the API
// could not be reached.
type Observer interface {
	ObserveForward(route string, status int)
}

// Client talks to the OTP API.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
	observer   Observer
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	Password   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   Observer
}

// NewClient constructs a Client. BaseURL should end with a slash.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    opts.BaseURL,
		password:   opts.Password,
		httpClient: httpClient,
		logger:     logger,
		observer:   opts.Observer,
	}
}

// Do issues exactly one request to the API and reads the whole response.
// The session identity is never sent; with Bearer set the static API
// password is the only credential.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimPrefix(req.Path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("otpapi: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Bearer {
		httpReq.Header.Set("Authorization", "Bearer "+c.password)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("otpapi: %s %s: %w", method, req.Path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("otpapi: read %s %s: %w", method, req.Path, err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// Forward performs req and relays the outcome to w.
//
// A 200 answer is decoded as a JSON object, enriched with the caller uid
// (when the session has one) and the API base URL, then sent back. Any other
// status is relayed with the backend body wrapped under "forwarded". No
// answer at all becomes a 503.
func (c *Client) Forward(w http.ResponseWriter, r *http.Request, req Request) {
	resp, err := c.Do(r.Context(), req)
	if err != nil {
		c.logger.Error("otp api unreachable", slog.String("path", req.Path), slog.Any("error", err))
		c.observe(req, 0)
		httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"message": unreachableMessage})
		return
	}
	c.observe(req, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("otp api error forwarded", slog.String("path", req.Path), slog.Int("status", resp.StatusCode))
		httpx.JSON(w, resp.StatusCode, forwardedError{Message: forwardedMessage, Forwarded: forwardedBody(resp.Body)})
		return
	}

	infos, ok := decodeObject(resp.Body)
	if !ok {
		// Not an object: nothing to enrich, relay untouched.
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp.Body)
		return
	}
	if uid := shared.SessionFromContext(r.Context()).User(); uid != "" {
		infos["uid"] = uid
	}
	infos["api_url"] = c.baseURL
	httpx.JSON(w, http.StatusOK, infos)
}

func (c *Client) observe(req Request, status int) {
	if c.observer == nil {
		return
	}
	route := req.Route
	if route == "" {
		route = req.Path
	}
	c.observer.ObserveForward(route, status)
}

type forwardedError struct {
	Message   string `json:"message"`
	Forwarded any    `json:"forwarded"`
}

// forwardedBody passes the backend body through verbatim: JSON stays JSON,
// anything else becomes a string, an empty body becomes null.
func forwardedBody(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

func decodeObject(body []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var infos map[string]any
	if err := dec.Decode(&infos); err != nil || infos == nil {
		return nil, false
	}
	return infos, true
}
