package services

import (
	"context"
	"time"

	"medibook/internal/apperrors"
)

// retryOnConflict reruns fn while it fails with a retryable concurrency
// error, at most attempts times. fn must re-read whatever it writes.
func retryOnConflict(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !apperrors.IsRetryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

// clock is swapped in tests.
type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
