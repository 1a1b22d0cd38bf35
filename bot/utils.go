package bot

import (
	"context"
	"time"
)

// RobustExecute calls f up to n times, sleeping d between failed attempts,
// and reports whether any call succeeded. It gives up early when ctx is done.
func RobustExecute(ctx context.Context, n int, d time.Duration, f func() bool) bool {
	if n < 1 {
		n = 1
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return false
		}
		if f() {
			return true
		}
		if i == n-1 {
			break
		}

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
	return false
}
