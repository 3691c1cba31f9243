package metrics

import (
	"context"
	"sync"
	"time"

	"collab-board/internal/store"
	"collab-board/pkg/logger"
)

// Collector samples per-instance connection counters and a rolling
// events-per-minute window. Everything here is advisory: a failure in the
// heartbeat loop must never affect room traffic.
type Collector struct {
	mu          sync.Mutex
	startTime   time.Time
	totalConns  int64
	activeConns int64
	events      []time.Time
}

type Snapshot struct {
	UptimeSeconds     int64
	TotalConnections  int64
	ActiveConnections int64
	EventsPerMinute   int
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) ConnectionOpened() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalConns++
	c.activeConns++
}

func (c *Collector) ConnectionClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeConns--
}

func (c *Collector) RecordEvent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, time.Now())
	c.prune()
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	return Snapshot{
		UptimeSeconds:     int64(time.Since(c.startTime).Seconds()),
		TotalConnections:  c.totalConns,
		ActiveConnections: c.activeConns,
		EventsPerMinute:   len(c.events),
	}
}

// prune drops event timestamps older than one minute. Caller holds the lock.
func (c *Collector) prune() {
	cutoff := time.Now().Add(-time.Minute)
	kept := c.events[:0]
	for _, ts := range c.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	c.events = kept
}

// Run logs a sample on every tick and, in distributed mode, registers this
// instance's liveness so the fleet can be enumerated from /status.
func (c *Collector) Run(ctx context.Context, interval time.Duration, st store.Store, instanceID string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.Snapshot()
			logger.Info("[%s] active=%d total=%d events/min=%d uptime=%ds",
				instanceID, snap.ActiveConnections, snap.TotalConnections,
				snap.EventsPerMinute, snap.UptimeSeconds)

			if st.Distributed() {
				if err := st.Heartbeat(ctx, instanceID); err != nil {
					logger.Error("Heartbeat failed: %v", err)
				}
			}
		}
	}
}
