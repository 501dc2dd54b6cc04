package docai

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

const (
	stagedPattern = "docuexplore-*.pdf"

	DefaultStagedFileTTL         = time.Hour
	DefaultStagedCleanupInterval = 10 * time.Minute
)

// StartStagedFileCleaner removes staged uploads that outlived ttl, e.g. after a
// crash between staging and the deferred removal.
func (c *Client) StartStagedFileCleaner(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultStagedCleanupInterval
	}
	if ttl <= 0 {
		ttl = DefaultStagedFileTTL
	}
	go c.cleanupLoop(ctx, interval, ttl)
}

func (c *Client) cleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := c.cleanupStagedFiles(time.Now().Add(-ttl)); err != nil {
				c.log.Warn("cleanup staged uploads failed", "error", err)
			} else if n > 0 {
				c.log.Info("removed stale staged uploads", "count", n)
			}
		}
	}
}

func (c *Client) cleanupStagedFiles(cutoff time.Time) (int, error) {
	dir := c.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	paths, err := filepath.Glob(filepath.Join(dir, stagedPattern))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.log.Warn("remove staged upload failed", "path", p, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
