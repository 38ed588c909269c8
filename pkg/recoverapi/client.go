package recoverapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client RecoverEase REST 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	config     *Config

	mu             sync.RWMutex
	token          string
	onUnauthorized func()
}

// NewClient 创建新的 REST 客户端
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig().UserAgent
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		token:   config.Token,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
		config: config,
	}
}

// SetToken 设置 Bearer token；空串表示登出
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// OnUnauthorized registers the hook fired when a non-auth request returns 401.
// The hook runs on the calling goroutine after the response is read.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

// 私有方法：创建 JSON 请求
func (c *Client) createRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)
	return req, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// 私有方法：执行请求并解析统一响应
func (c *Client) doRequest(req *http.Request, endpoint string, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrConnectivity, req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response body: %v", ErrConnectivity, err)
	}

	c.logger.Debugf("RecoverEase API Request: %s %s", req.Method, req.URL.String())
	c.logger.Debugf("RecoverEase API Response: %d %s", resp.StatusCode, string(body))

	var env Envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode >= 400 || (decodeErr == nil && !env.Success) {
		apiErr := &APIError{
			Status:  resp.StatusCode,
			Method:  req.Method,
			Path:    endpoint,
			Message: errorMessage(resp.StatusCode, env, decodeErr),
		}
		if resp.StatusCode == http.StatusUnauthorized && !isAuthEndpoint(endpoint) {
			c.fireUnauthorized()
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}

	if result != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func errorMessage(status int, env Envelope, decodeErr error) string {
	if decodeErr == nil {
		for _, m := range []string{env.Error, env.Detail, env.Message} {
			if m != "" {
				return m
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}

func isAuthEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, "/auth/login") || strings.Contains(endpoint, "/auth/register")
}

func (c *Client) fireUnauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// 私有方法：带重试的请求。只有 GET 在连接失败时重试，写操作不重试
func (c *Client) doRequestWithRetry(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	maxRetries := c.config.MaxRetries
	if method != http.MethodGet || maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
			c.logger.Warnf("RecoverEase API retry attempt %d/%d: %s %s", attempt, maxRetries, method, endpoint)
		}

		req, err := c.createRequest(ctx, method, endpoint, body)
		if err != nil {
			return err
		}

		if err := c.doRequest(req, endpoint, result); err != nil {
			lastErr = err
			if attempt < maxRetries && shouldRetry(err) {
				continue
			}
			break
		}
		return nil
	}
	return lastErr
}

func shouldRetry(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// 私有方法：multipart 上传，字段名固定为 file
func (c *Client) upload(ctx context.Context, endpoint, filename string, content io.Reader, result interface{}) error {
	if filename == "" {
		return fmt.Errorf("filename is required")
	}
	if content == nil {
		return fmt.Errorf("file content is required")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setHeaders(req)
	return c.doRequest(req, endpoint, result)
}

// GetStats 获取客户端统计信息
func (c *Client) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"base_url":    c.baseURL,
		"timeout":     c.config.Timeout,
		"max_retries": c.config.MaxRetries,
		"has_token":   c.Token() != "",
	}
}
