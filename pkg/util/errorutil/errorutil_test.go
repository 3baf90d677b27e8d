package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestToDomainErrorKeepsDomainErrors(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", NewUnauthorized("invalid token"))
	got := ToDomainError(wrapped)
	if got.Code != "UNAUTHORIZED" || got.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("got %+v", got)
	}
}

func TestToDomainErrorMapsTimeouts(t *testing.T) {
	got := ToDomainError(fmt.Errorf("POST /auth/users/refresh: %w", context.DeadlineExceeded))
	if got.HTTPStatus != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", got.HTTPStatus)
	}
}

func TestToDomainErrorDefaultsToInternal(t *testing.T) {
	cause := errors.New("boom")
	got := ToDomainError(cause)
	if got.Code != "INTERNAL_ERROR" || !errors.Is(got, cause) {
		t.Fatalf("got %+v", got)
	}
	if ToDomainError(nil) != nil {
		t.Fatal("nil error must map to nil")
	}
}
