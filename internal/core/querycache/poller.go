package querycache

import (
	"context"
	"time"
)

// Poll refreshes key every interval until ctx ends. It backs views that
// must stay current even when no change notification arrives.
func (c *Cache) Poll(ctx context.Context, key Key, interval time.Duration, fetch Fetcher) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx, key, fetch); err != nil && ctx.Err() == nil {
				c.logger.Warn("cache poll failed", "key", key.String(), "error", err)
			}
		}
	}
}
