package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dujiao-next/discount-engine/internal/platform"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{ErrNoCodesAvailable, KindExhausted},
		{ErrSetNotFound, KindNotFound},
		{fmt.Errorf("%w: %w", ErrPlatformSyncFailed, platform.ErrRejected), KindExternal},
		{fmt.Errorf("wrap: %w", ErrSetInactive), KindInactive},
		{context.DeadlineExceeded, KindExternal},
		{platform.ErrRequestFailed, KindExternal},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil should not be retryable")
	}
	if !IsRetryable(fmt.Errorf("%w: %w", ErrPlatformSyncFailed, platform.ErrRequestFailed)) {
		t.Fatalf("transport failures should be retryable")
	}
	if IsRetryable(fmt.Errorf("%w: %w", ErrPlatformSyncFailed, platform.ErrRejected)) {
		t.Fatalf("rejected requests should not be retryable")
	}
	if IsRetryable(ErrInvalidInput) || IsRetryable(ErrSetNotFound) {
		t.Fatalf("client errors should not be retryable")
	}
	if !IsRetryable(ErrRevealContended) {
		t.Fatalf("contention should be retryable")
	}
}
