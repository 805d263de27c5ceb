// Package ctxkeys holds the context keys shared by the api package and its
// handlers and middleware subpackages.
package ctxkeys

import (
	"context"
	"errors"
)

// Key is the named type for all API context keys.
type Key string

const (
	// RequestID is the correlation id assigned by the request middleware.
	RequestID Key = "request_id"
)

// ErrMissingRequestID is returned when the request middleware did not run.
var ErrMissingRequestID = errors.New("missing request_id in context")

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// GetRequestID retrieves the request id from context.
func GetRequestID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(RequestID).(string)
	if !ok || id == "" {
		return "", ErrMissingRequestID
	}
	return id, nil
}
