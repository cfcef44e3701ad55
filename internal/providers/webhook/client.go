// Package webhook delivers messages by POSTing a JSON envelope to an
// external relay endpoint and classifying its reply.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

type Client struct {
	EndpointURL string
	BearerToken string
	HTTP        *http.Client

	// Breaker, when set, wraps every POST so a misbehaving endpoint trips
	// open instead of burning the whole batch on timeouts.
	Breaker *gobreaker.CircuitBreaker

	// MaxRetries bounds additional attempts after the first on
	// transport-level failures only. Defaults to 2.
	MaxRetries int
	// RetryDelay is the fixed pause between attempts. Defaults to 500ms.
	RetryDelay time.Duration
}

var ErrNoEndpoint = errors.New("webhook: endpoint URL not configured")

type SendRequest struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"htmlBody,omitempty"`
	PlainBody string `json:"plainBody,omitempty"`
	FromName  string `json:"fromName,omitempty"`
	FromAlias string `json:"fromAlias,omitempty"`
}

type SendResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message,omitempty"`
	RemainingQuota *int   `json:"remainingQuota,omitempty"`
}

// AppError is an explicit rejection inside a 2xx reply. Retrying these only
// burns quota against the remote service's rate limits, so callers must not.
type AppError struct {
	Status  string
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("webhook: remote rejected send: status=%q message=%q", e.Status, e.Message)
}

// HTTPError is a non-2xx reply; the raw status and body are preserved for
// the outcome's errorDetail. Not retried.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("webhook: http %d: %s", e.StatusCode, e.Body)
}

// Send issues the POST, retrying only transport-level failures (timeout,
// connection refused). Returns the parsed reply, the HTTP status, and the
// raw body for attempt logging.
func (c *Client) Send(ctx context.Context, req SendRequest) (SendResponse, int, []byte, error) {
	if c.EndpointURL == "" {
		return SendResponse{}, 0, nil, ErrNoEndpoint
	}
	body, err := json.Marshal(req)
	if err != nil {
		return SendResponse{}, 0, nil, err
	}

	maxRetries := c.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	delay := c.RetryDelay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return SendResponse{}, 0, nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, status, raw, err := c.post(ctx, body)
		if err == nil {
			return resp, status, raw, nil
		}
		lastErr = err
		if !retryable(err) {
			return resp, status, raw, err
		}
	}
	return SendResponse{}, 0, nil, lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (SendResponse, int, []byte, error) {
	call := func() (any, error) {
		return c.doPost(ctx, body)
	}
	var resAny any
	var err error
	if c.Breaker != nil {
		resAny, err = c.Breaker.Execute(call)
	} else {
		resAny, err = call()
	}
	if err != nil {
		var pe *postError
		if errors.As(err, &pe) {
			return pe.resp, pe.status, pe.raw, pe.err
		}
		return SendResponse{}, 0, nil, err
	}
	r := resAny.(postResult)
	return r.resp, r.status, r.raw, nil
}

func (c *Client) doPost(ctx context.Context, body []byte) (postResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return postResult{}, &postError{err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return postResult{}, &postError{err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return postResult{}, &postError{
			err:    &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)},
			status: resp.StatusCode,
			raw:    raw,
		}
	}

	var out SendResponse
	_ = json.Unmarshal(raw, &out)

	// The remote reports application-level failure inside a 200 reply, so
	// success requires the explicit indicator, not just the HTTP class.
	if out.Status != "success" {
		return postResult{}, &postError{
			err:    &AppError{Status: out.Status, Message: out.Message},
			resp:   out,
			status: resp.StatusCode,
			raw:    raw,
		}
	}
	return postResult{resp: out, status: resp.StatusCode, raw: raw}, nil
}

// retryable reports whether err is a transport-level failure. Application
// rejections and HTTP errors are final.
func retryable(err error) bool {
	var ae *AppError
	var he *HTTPError
	if errors.As(err, &ae) || errors.As(err, &he) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	// anything else client.Do surfaced is a url.Error wrapping a refused
	// connection, reset, or truncated reply
	var ue *url.Error
	return errors.As(err, &ue) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

type postResult struct {
	resp   SendResponse
	status int
	raw    []byte
}

type postError struct {
	err    error
	resp   SendResponse
	status int
	raw    []byte
}

func (e *postError) Error() string { return e.err.Error() }
func (e *postError) Unwrap() error { return e.err }
