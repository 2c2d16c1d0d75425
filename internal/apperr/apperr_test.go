package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{InvalidCredential("bad"), http.StatusUnauthorized},
		{BatchNotFound("b1"), http.StatusNotFound},
		{BatchInactive("b1"), http.StatusConflict},
		{NotEnrolled(), http.StatusForbidden},
		{InvalidToken(), http.StatusUnauthorized},
		{TokenBatchMismatch(), http.StatusConflict},
		{TokenExpired("2025-11-01"), http.StatusGone},
		{Invalid("bad input"), http.StatusBadRequest},
		{Transient(errors.New("timeout")), http.StatusServiceUnavailable},
		{errors.New("unclassified"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.status, got)
		}
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("attempt failed: %w", NotEnrolled())
	if CodeOf(err) != CodeNotEnrolled {
		t.Fatalf("expected NOT_ENROLLED through wrapping, got %s", CodeOf(err))
	}
}

func TestOnlyTransientRetryable(t *testing.T) {
	if !IsRetryable(Transient(errors.New("conn reset"))) {
		t.Fatal("transient must be retryable")
	}
	if IsRetryable(TokenExpired("2025-11-01")) {
		t.Fatal("terminal kinds must not be retryable")
	}
}

func TestMessagesAreDistinct(t *testing.T) {
	msgs := map[string]bool{}
	for _, e := range []*Error{
		InvalidCredential("x"), BatchNotFound("b"), BatchInactive("b"),
		NotEnrolled(), InvalidToken(), TokenBatchMismatch(), TokenExpired("d"),
	} {
		if msgs[e.Message] {
			t.Fatalf("duplicate message %q", e.Message)
		}
		msgs[e.Message] = true
	}
}
