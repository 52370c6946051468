package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/cbquant/pkg/config"
	"github.com/wonny/cbquant/pkg/logger"
)

const (
	defaultTimeout = 60 * time.Second
	maxBodyLog     = 512
)

// Client talks JSON to a remote cbquant API with retry and throttling
// ⭐ SSOT: 모든 외부 HTTP 호출은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
	retry      RetryPolicy
	limiter    *rate.Limiter
}

// RetryPolicy is an exponential backoff; MaxRetries 0 disables retry
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// StatusError is returned by DecodeJSON for a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// New creates a client from the remote settings
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(cfg *config.Config, log *logger.Logger) *Client {
	timeout := cfg.Remote.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.Remote.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		retry: RetryPolicy{
			MaxRetries:   retries,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
		},
	}
}

// WithRetry replaces the retry policy
func (c *Client) WithRetry(p RetryPolicy) *Client {
	c.retry = p
	return c
}

// DisableRetry sends every request exactly once
func (c *Client) DisableRetry() *Client {
	c.retry.MaxRetries = 0
	return c
}

// WithRateLimit throttles outgoing requests to perSecond with the given burst
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build GET %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// PostJSON sends data as a JSON body
func (c *Client) PostJSON(ctx context.Context, url string, data interface{}) (*http.Response, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build POST %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

// DecodeJSON decodes a 2xx body into dest and always closes it.
// Other statuses return a *StatusError carrying the start of the body.
func DecodeJSON(resp *http.Response, dest interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		head, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLog))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(head))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends the request, retrying transport errors and retryable statuses
func (c *Client) do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := c.logger.WithFields(map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})
	start := time.Now()
	delay := c.retry.InitialDelay

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.httpClient.Do(req)
		retryable := err != nil && ctx.Err() == nil
		if err == nil {
			retryable = IsRetryableStatus(resp.StatusCode)
		}

		if !retryable || attempt >= c.retry.MaxRetries {
			if err != nil {
				log.WithDuration(start).WithError(err).WithField("attempts", attempt+1).Error("HTTP request failed")
				return nil, err
			}
			log.WithDuration(start).WithFields(map[string]interface{}{
				"status_code": resp.StatusCode,
				"attempts":    attempt + 1,
			}).Debug("HTTP request completed")
			return resp, nil
		}

		wait := delay
		if err == nil {
			if ra, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				wait = ra
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if c.retry.MaxDelay > 0 && wait > c.retry.MaxDelay {
			wait = c.retry.MaxDelay
		}

		log.WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).Warn("Retrying HTTP request")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
}

// IsRetryableStatus reports whether a response status is worth retrying
func IsRetryableStatus(code int) bool {
	// 429 (API rate limiter) 와 5xx
	return code == http.StatusTooManyRequests || code >= 500
}

// retryAfter parses a Retry-After header in seconds
func retryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// IsStatus reports whether err is a *StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
