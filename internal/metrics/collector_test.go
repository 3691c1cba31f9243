package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorConnectionCounters(t *testing.T) {
	c := NewCollector()

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.TotalConnections)
	assert.Equal(t, int64(1), snap.ActiveConnections)
}

func TestCollectorEventsPerMinute(t *testing.T) {
	c := NewCollector()

	for i := 0; i < 5; i++ {
		c.RecordEvent()
	}
	assert.Equal(t, 5, c.Snapshot().EventsPerMinute)

	// Entries older than a minute fall out of the window.
	c.mu.Lock()
	for i := range c.events {
		c.events[i] = time.Now().Add(-2 * time.Minute)
	}
	c.mu.Unlock()

	assert.Equal(t, 0, c.Snapshot().EventsPerMinute)
}
