package esigateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const maxRetryAttempts = 3

// doWithRetry performs req with exponential backoff on 429, capped at
// maxRetryAttempts additional tries. Grounded on the teacher's
// DefaultRetryClient.DoWithRetry (pkg/evegateway/retry.go), narrowed to the
// single retryable status this spec names — 429 — since 5xx/420 handling
// in the teacher's client has no analog in the ESI budget this component
// tracks locally rather than from upstream headers.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= maxRetryAttempts; attempt++ {
		reqClone := req.Clone(ctx)

		resp, err = c.httpClient.Do(reqClone)
		if err != nil {
			if attempt == maxRetryAttempts {
				return nil, fmt.Errorf("esigateway: request failed after %d attempts: %w", attempt+1, err)
			}
			if waitErr := sleepBackoff(ctx, attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			c.budget.RecordRateLimited()

			if attempt == maxRetryAttempts {
				return nil, &UpstreamHttpError{Status: resp.StatusCode}
			}
			slog.Warn("esigateway: rate limited, backing off", "attempt", attempt)
			if waitErr := sleepBackoff(ctx, attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		c.budget.RecordSuccess()
		break
	}

	return resp, nil
}

// sleepBackoff waits 2^n * 1s, cancellable by ctx.
func sleepBackoff(ctx context.Context, attempt int) error {
	d := time.Duration(1<<uint(attempt)) * time.Second
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
