package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrCodeUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true)

	if GetErrorCode(err) != ErrCodeUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrCodeUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("dispatch: %w", NewEmptyInputError("inference"))
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected wrapped empty input error to match sentinel")
	}
	if errors.Is(err, ErrMissingParameter) {
		t.Fatalf("different codes must not match")
	}
	if !errors.Is(NewBackendUnavailableError(errors.New("dial")), ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable match")
	}
}

func TestError_Status(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]int{
		ErrCodeEmptyInput:         http.StatusBadRequest,
		ErrCodeMissingParameter:   http.StatusBadRequest,
		ErrCodeUnsupportedAction:  http.StatusBadRequest,
		ErrCodeRateLimited:        http.StatusTooManyRequests,
		ErrCodeBackendUnavailable: http.StatusServiceUnavailable,
		ErrCodeOperationFailed:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := NewError(code, "x").Status(); got != want {
			t.Errorf("%s: expected %d, got %d", code, want, got)
		}
	}
	if got := NewError(ErrCodeEmptyInput, "x").WithHTTPStatus(422).Status(); got != 422 {
		t.Errorf("explicit status should win, got %d", got)
	}
}

func TestAsError(t *testing.T) {
	t.Parallel()

	if AsError(nil) != nil {
		t.Fatalf("nil in, nil out")
	}
	plain := errors.New("boom")
	e := AsError(plain)
	if e.Code != ErrCodeInternalError || !errors.Is(e, plain) {
		t.Fatalf("expected internal error wrapping cause, got %v", e)
	}
	orig := NewMissingParameterError("augmentationFactor")
	if AsError(fmt.Errorf("wrap: %w", orig)) != orig {
		t.Fatalf("expected existing *Error to be returned as-is")
	}
}
