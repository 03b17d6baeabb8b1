package ai

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/forgedocs/wikiforge/errors"
	"golang.org/x/time/rate"
)

// classifyStatus maps an upstream HTTP status to the error taxonomy
func classifyStatus(provider string, status int, body string) error {
	if len(body) > 200 {
		body = body[:200]
	}
	switch {
	case status == 401 || status == 403:
		return errors.Wrapf(errors.ErrAuth, "%s returned status %d: %s", provider, status, body)
	case status == 429:
		return errors.Wrapf(errors.ErrRateLimited, "%s returned status %d: %s", provider, status, body)
	default:
		return errors.Wrapf(errors.ErrBadResponse, "%s returned status %d: %s", provider, status, body)
	}
}

// classifyTransport maps transport-level failures to the error taxonomy
func classifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(errors.ErrTimeout, "%s request timed out", provider)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return errors.Wrapf(errors.ErrTimeout, "%s request timed out: %v", provider, err)
	}
	if errors.IsAny(err, syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT) {
		return errors.Wrapf(errors.ErrNetwork, "%s unreachable: %v", provider, err)
	}

	// Wrapped transport errors often surface only as strings
	msg := err.Error()
	for _, pattern := range []string{
		"connection refused",
		"connection reset by peer",
		"no such host",
		"broken pipe",
		"EOF",
	} {
		if strings.Contains(msg, pattern) {
			return errors.Wrapf(errors.ErrNetwork, "%s unreachable: %v", provider, err)
		}
	}

	return errors.Wrapf(errors.ErrNetwork, "%s request failed: %v", provider, err)
}

// newLimiter builds a client-side request limiter. Zero RPS disables limiting.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// waitLimiter blocks until the limiter admits a request, honoring cancellation
func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// scanSSE reads server-sent events and invokes handle for each data payload.
// Handle returns false to stop early. The "[DONE]" sentinel terminates the
// scan without being passed to handle. Malformed lines are skipped.
func scanSSE(body io.Reader, handle func(data string) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}
		if !handle(data) {
			return nil
		}
	}
	return scanner.Err()
}
