package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/docstudio/internal/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 60 * time.Second
	headerRequestID  = "X-Request-ID"
	jsonContentType  = "application/json"
	maxErrorBodySize = 64 << 10
)

// Config bundles the settings required to build a Client.
type Config struct {
	BaseURL    string
	Sessions   session.Store
	HTTPClient *http.Client
	Timeout    time.Duration
	// RateLimit is the sustained outbound request rate per second; zero disables throttling.
	RateLimit float64
	RateBurst int
	Logger    *zap.Logger
	// OnUnauthorized runs after the session has been cleared because of an authorization failure.
	OnUnauthorized func(ctx context.Context)
}

// RequestInterceptor mutates an outbound request before it is sent.
type RequestInterceptor func(ctx context.Context, request *http.Request, authenticated bool) error

// ResponseInterceptor inspects a response before the body is decoded.
// Returning an error aborts decoding and is reported to the caller.
type ResponseInterceptor func(ctx context.Context, response *http.Response) error

// Client is the single outbound interface to the authoring backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	sessions   session.Store
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu             sync.RWMutex
	onUnauthorized func(ctx context.Context)

	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
}

// NewClient validates configuration and installs the default interceptors.
func NewClient(cfg Config) (*Client, error) {
	rawBase := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if rawBase == "" {
		return nil, fmt.Errorf("%w: base url required", ErrInvalidConfig)
	}
	baseURL, err := url.Parse(rawBase)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("%w: base url must be absolute: %q", ErrInvalidConfig, rawBase)
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("%w: session store required", ErrInvalidConfig)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	client := &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		sessions:       cfg.Sessions,
		limiter:        limiter,
		logger:         logger,
		onUnauthorized: cfg.OnUnauthorized,
	}
	client.requestInterceptors = []RequestInterceptor{client.attachRequestID, client.attachBearerToken}
	client.responseInterceptors = []ResponseInterceptor{client.resetSessionOnUnauthorized}
	return client, nil
}

// SetUnauthorizedHandler replaces the hook fired after an authorization failure.
func (c *Client) SetUnauthorizedHandler(handler func(ctx context.Context)) {
	c.mu.Lock()
	c.onUnauthorized = handler
	c.mu.Unlock()
}

type apiCall struct {
	method        string
	path          string
	body          any
	authenticated bool
}

// doJSON performs the round trip and decodes a JSON body into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, call apiCall, out any) error {
	response, err := c.send(ctx, call)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, call.method, call.path, err)
	}
	return nil
}

// send runs interceptors around the HTTP exchange and returns a 2xx response with an open body.
func (c *Client) send(ctx context.Context, call apiCall) (*http.Response, error) {
	var body io.Reader
	if call.body != nil {
		encoded, err := json.Marshal(call.body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode %s %s: %w", call.method, call.path, err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, call.method, c.resolve(call.path), body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build %s %s: %w", call.method, call.path, err)
	}
	if call.body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	request.Header.Set("Accept", jsonContentType)

	for _, intercept := range c.requestInterceptors {
		if err := intercept(ctx, request, call.authenticated); err != nil {
			return nil, err
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: call.method, Path: call.path, Err: err}
		}
	}

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", call.method),
			zap.String("path", call.path),
			zap.String("request_id", request.Header.Get(headerRequestID)),
			zap.Error(err),
		)
		return nil, &TransportError{Method: call.method, Path: call.path, Err: err}
	}
	c.logger.Debug("request completed",
		zap.String("method", call.method),
		zap.String("path", call.path),
		zap.Int("status", response.StatusCode),
		zap.String("request_id", request.Header.Get(headerRequestID)),
		zap.Duration("elapsed", time.Since(started)),
	)

	for _, intercept := range c.responseInterceptors {
		if err := intercept(ctx, response); err != nil {
			response.Body.Close()
			return nil, err
		}
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		return nil, newAPIError(call.method, call.path, response)
	}
	return response, nil
}

func (c *Client) resolve(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) attachRequestID(_ context.Context, request *http.Request, _ bool) error {
	identifier, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("gateway: request id: %w", err)
	}
	request.Header.Set(headerRequestID, identifier.String())
	return nil
}

func (c *Client) attachBearerToken(ctx context.Context, request *http.Request, authenticated bool) error {
	current, err := c.sessions.Load(ctx)
	if err != nil {
		if !authenticated {
			return nil
		}
		if errors.Is(err, session.ErrNoSession) || errors.Is(err, session.ErrSessionExpired) {
			c.handleUnauthorized(ctx, err)
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return err
	}
	request.Header.Set("Authorization", "Bearer "+current.AccessToken)
	return nil
}

func (c *Client) resetSessionOnUnauthorized(ctx context.Context, response *http.Response) error {
	if response.StatusCode != http.StatusUnauthorized {
		return nil
	}
	apiErr := newAPIError(response.Request.Method, response.Request.URL.Path, response)
	c.handleUnauthorized(ctx, apiErr)
	return apiErr
}

func (c *Client) handleUnauthorized(ctx context.Context, cause error) {
	if err := c.sessions.Clear(ctx); err != nil {
		c.logger.Error("failed to clear session after authorization failure", zap.Error(err))
	}
	c.logger.Warn("authorization failed; session cleared", zap.Error(cause))

	c.mu.RLock()
	handler := c.onUnauthorized
	c.mu.RUnlock()
	if handler != nil {
		handler(ctx)
	}
}

func newAPIError(method, path string, response *http.Response) *APIError {
	payload, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodySize))
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: response.StatusCode,
		Detail:     extractDetail(payload),
	}
}

// extractDetail reads FastAPI-style {"detail": ...} bodies and Supabase-style msg/message fields.
func extractDetail(payload []byte) string {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return strings.TrimSpace(string(payload))
	}
	for _, key := range []string{"detail", "msg", "message", "error"} {
		switch value := body[key].(type) {
		case string:
			if value != "" {
				return value
			}
		case []any:
			messages := make([]string, 0, len(value))
			for _, item := range value {
				if entry, ok := item.(map[string]any); ok {
					if message, ok := entry["msg"].(string); ok {
						messages = append(messages, message)
					}
				}
			}
			if len(messages) > 0 {
				return strings.Join(messages, "; ")
			}
		}
	}
	return ""
}

func versionPath(projectID, versionID string) string {
	return "/projects/" + url.PathEscape(projectID) + "/versions/" + url.PathEscape(versionID)
}
