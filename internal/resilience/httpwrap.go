package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// HTTPClient sends provider API calls through a RetryPolicy. Transport
// errors, 429 and 5xx are retried; any other response goes back to the
// caller untouched.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	// Timeout bounds each attempt. Zero falls back to Client.Timeout.
	Timeout time.Duration
}

// StatusError reports a retryable status that outlived the retry budget.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "resilience: upstream responded " + e.Status }

func (cl HTTPClient) policy() RetryPolicy {
	return RetryPolicy{Breaker: cl.Breaker, BaseBackoff: cl.BaseBackoff, MaxAttempts: cl.MaxAttempts, Jitter: cl.Jitter}
}

// Do sends req, replaying its body on every attempt.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if err := makeReplayable(req); err != nil {
		return nil, err
	}

	var resp *http.Response
	err := cl.policy().Do(ctx, func(ctx context.Context) error {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return Permanent(err)
			}
			attempt.Body = body
		}
		r, err := cl.send(ctx, attempt)
		if err != nil {
			return err
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			discard(r)
			return &StatusError{Code: r.StatusCode, Status: r.Status}
		}
		resp = r
		return nil
	})
	if err != nil {
		var p permanentError
		if errors.As(err, &p) {
			return nil, p.err
		}
		return nil, err
	}
	return resp, nil
}

func (cl HTTPClient) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	if timeout <= 0 {
		return cl.Client.Do(req)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// makeReplayable buffers a body that has no GetBody so it can be resent.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// cancelOnClose holds the attempt deadline open until the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
