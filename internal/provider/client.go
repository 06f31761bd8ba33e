package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"otpbot/internal/metrics"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const maxBodySize = 1 << 20

// Options configures the provider client
type Options struct {
	BaseURL       string
	APIKey        string
	CountryID     string
	OperatorID    string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// HTTPClient is optional; a client without its own timeout is used by default.
	HTTPClient *http.Client
}

// Response is a parsed provider reply. OK reflects the top-level status field.
type Response struct {
	OK   bool
	Msg  string
	Data json.RawMessage
}

type rawResponse struct {
	Status json.RawMessage `json:"status"`
	Msg    flexString      `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// Client talks to the upstream OTP API
type Client struct {
	opts   Options
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a new provider client
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		opts:   opts,
		http:   httpClient,
		logger: logger,
	}
}

// Call issues one action with bounded retries on transport failure.
// A well-formed reply is returned whatever its status; callers interpret OK.
func (c *Client) Call(ctx context.Context, action string, params url.Values) (*Response, error) {
	endpoint, err := c.buildURL(action, params)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(uint64(c.opts.RetryAttempts-1), retry.NewConstant(c.retryDelay()))

	var (
		body    []byte
		attempt int
	)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		b, err := c.do(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("Provider request failed",
				zap.String("action", action),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		body = b
		return nil
	})
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(action, "unreachable").Inc()
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrUnreachable, action, attempt, err)
	}

	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		metrics.ProviderRequests.WithLabelValues(action, "malformed").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, action, err)
	}

	resp := &Response{
		OK:   truthy(raw.Status),
		Msg:  raw.Msg.String(),
		Data: raw.Data,
	}

	result := "ok"
	if !resp.OK {
		result = "failed"
	}
	metrics.ProviderRequests.WithLabelValues(action, result).Inc()

	c.logger.Debug("Provider response",
		zap.String("action", action),
		zap.Bool("ok", resp.OK),
		zap.String("msg", resp.Msg),
	)

	return resp, nil
}

func (c *Client) retryDelay() time.Duration {
	if c.opts.RetryDelay == 0 {
		// go-retry rejects a zero constant backoff
		return time.Nanosecond
	}
	return c.opts.RetryDelay
}

func (c *Client) buildURL(action string, params url.Values) (string, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid provider base url: %w", err)
	}

	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("action", action)
	q.Set("api_key", c.opts.APIKey)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
}
