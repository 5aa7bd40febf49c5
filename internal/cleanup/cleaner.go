package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Reaper releases idle and finished live sessions
type Reaper interface {
	Reap(ctx context.Context, idle time.Duration) int
}

// Cleaner handles periodic release of abandoned sessions
type Cleaner struct {
	reaper   Reaper
	interval time.Duration
	idle     time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(reaper Reaper, interval, idle time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if idle <= 0 {
		idle = 2 * time.Hour
	}

	return &Cleaner{
		reaper:   reaper,
		interval: interval,
		idle:     idle,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "idle_timeout", c.idle)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup runs one reaping cycle
func (c *Cleaner) cleanup(ctx context.Context) {
	slog.Debug("running cleanup cycle")

	released := c.reaper.Reap(ctx, c.idle)
	if released == 0 {
		slog.Debug("no idle sessions found")
		return
	}

	slog.Info("released sessions", "count", released)
}
