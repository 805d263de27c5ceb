package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// maxErrorBody caps how much of a failed response body is kept for error messages.
const maxErrorBody = 2048

// ProviderError is a non-2xx answer from the provider, or an error event inside
// an otherwise successful stream. Stream errors carry Code and no StatusCode.
type ProviderError struct {
	Op         string
	StatusCode int
	Code       string
	Body       string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Body)
	}
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// newProviderError drains up to maxErrorBody bytes of resp and closes it.
func newProviderError(op string, resp *http.Response) *ProviderError {
	defer resp.Body.Close() //nolint:errcheck
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
}

// IsTransient reports whether err is worth retrying: network failures,
// timeouts, 408, 429 and 5xx answers. Caller cancellation never is.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode == http.StatusRequestTimeout ||
			pe.StatusCode == http.StatusTooManyRequests ||
			pe.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
