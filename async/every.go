package async

import (
	"context"
	"time"
)

// RunEvery spawns a background goroutine that calls f every interval until
// ctx is cancelled. It returns immediately; callers that need to wait for
// the loop to stop should synchronize on ctx themselves.
func RunEvery(ctx context.Context, interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f()
			}
		}
	}()
}
