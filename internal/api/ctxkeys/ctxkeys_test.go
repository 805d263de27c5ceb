package ctxkeys

import (
	"context"
	"errors"
	"testing"
)

func TestWithValue_SetsAndGetsTypedKey(t *testing.T) {
	t.Parallel()

	ctx := WithValue(context.Background(), RequestID, "req-999")
	got, ok := ctx.Value(RequestID).(string)
	if !ok {
		t.Fatalf("expected string value")
	}
	if got != "req-999" {
		t.Fatalf("expected req-999, got %q", got)
	}
}

func TestWithValue_PlainStringKeyDoesNotCollide(t *testing.T) {
	t.Parallel()

	//nolint:staticcheck // deliberately untyped key
	ctx := context.WithValue(context.Background(), "request_id", "plain")
	if _, ok := ctx.Value(RequestID).(string); ok {
		t.Fatal("expected typed key lookup to ignore a plain string key")
	}
}

func TestGetRequestID_Success(t *testing.T) {
	t.Parallel()

	got, err := GetRequestID(WithValue(context.Background(), RequestID, "req-123"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "req-123" {
		t.Fatalf("expected req-123, got %q", got)
	}
}

func TestGetRequestID_MissingOrEmpty_ReturnsExpectedError(t *testing.T) {
	t.Parallel()

	for _, ctx := range []context.Context{
		context.Background(),
		WithValue(context.Background(), RequestID, ""),
	} {
		if _, err := GetRequestID(ctx); !errors.Is(err, ErrMissingRequestID) {
			t.Fatalf("expected ErrMissingRequestID, got %v", err)
		}
	}
}
