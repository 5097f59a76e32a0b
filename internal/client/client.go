package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotPushed is returned by Pull when the server has no version yet.
var ErrNotPushed = errors.New("nothing pushed yet")

// defaultRetryAfter is the pause after a 429 or 503 that carries no
// Retry-After.
const defaultRetryAfter = 5 * time.Second

// StatusError is a non-success answer from the server.
type StatusError struct {
	Status int
	Body   string
	// RetryAfter is the server's Retry-After hint, or -1 when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server answered %d", e.Status)
	}
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Body)
}

// Client talks to one exercise endpoint.
type Client struct {
	endpoint *Endpoint
	http     *http.Client
	logger   *zap.Logger
}

// New constructs a Client. httpClient may be nil.
func New(endpoint *Endpoint, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{endpoint: endpoint, http: httpClient, logger: logger}
}

// Endpoint returns the exercise endpoint.
func (c *Client) Endpoint() *Endpoint { return c.endpoint }

// NewTicket returns a fresh link ticket id.
func NewTicket() string { return uuid.NewString() }

// Link asks the student to confirm ticket in a browser and waits for the
// user token. announce receives the start URL before waiting begins. The
// server bounds each wait; timeouts, rate limiting and restarts are retried
// until ctx is done.
func (c *Client) Link(ctx context.Context, ticket string, announce func(startURL string)) (string, error) {
	if announce != nil {
		announce(c.endpoint.StartURL(ticket))
	}
	for {
		token, err := c.await(ctx, ticket)
		var status *StatusError
		if !errors.As(err, &status) {
			return token, err
		}
		switch status.Status {
		case http.StatusRequestTimeout:
			c.logger.Debug("link wait timed out, retrying", zap.String("ticket", ticket))
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			wait := status.RetryAfter
			if wait < 0 {
				wait = defaultRetryAfter
			}
			c.logger.Debug("link wait deferred", zap.String("ticket", ticket), zap.Int("status", status.Status), zap.Duration("retry_after", wait))
			if err := sleep(ctx, wait); err != nil {
				return "", err
			}
		default:
			return token, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryAfter parses a delay-seconds Retry-After header, -1 when absent or
// in another form.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs < 0 {
		return -1
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) await(ctx context.Context, ticket string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.AwaitURL(ticket), nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// Push sends content as the new version of file.
func (c *Client) Push(ctx context.Context, file, token, content string) error {
	form := url.Values{"content": {content}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.PushURL(file, token), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(req)
	return err
}

// Pull fetches the caller's latest version of file.
func (c *Client) Pull(ctx context.Context, file, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.PullURL(file, token), nil)
	if err != nil {
		return "", err
	}
	body, err := c.do(req)
	var status *StatusError
	if errors.As(err, &status) && status.Status == http.StatusNotFound {
		return "", ErrNotPushed
	}
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("request done",
		zap.String("method", req.Method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter(resp.Header),
		}
	}
	return body, nil
}

// Username returns the identity carried by a user token.
func Username(token string) string {
	name, _, _ := strings.Cut(token, ":")
	return name
}
