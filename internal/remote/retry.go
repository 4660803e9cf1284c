package remote

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v66/github"
)

// call runs one API operation under the per-call timeout, retrying
// transient failures with exponential backoff up to the configured
// attempt ceiling. The returned error, if any, is an *Error.
func (g *GitHub) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := func() error {
		cctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
		err := fn(cctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The caller was interrupted; don't keep retrying.
			return backoff.Permanent(err)
		}
		if transient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	pol := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), uint64(g.opts.Attempts-1)), ctx)

	if err := backoff.Retry(attempt, pol); err != nil {
		return &Error{Op: op, Transient: transient(err), Err: err}
	}
	return nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = 0 // the attempt ceiling bounds us
	return b
}

// transient classifies failures worth retrying: rate limits, 5xx
// responses and network timeouts.
func transient(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		return code == 429 || code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
