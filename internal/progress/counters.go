package progress

import "sync/atomic"

// Counters are the running byte totals shared by every worker of a run.
// All methods are safe for concurrent use.
type Counters struct {
	processed atomic.Int64
	total     atomic.Int64
}

// Reset starts a new run with the given total.
func (c *Counters) Reset(total int64) {
	c.processed.Store(0)
	c.total.Store(total)
}

// Add advances the processed count. Negative values are ignored so the count never decreases.
func (c *Counters) Add(n int64) {
	if n > 0 {
		c.processed.Add(n)
	}
}

func (c *Counters) Processed() int64 { return c.processed.Load() }
func (c *Counters) Total() int64     { return c.total.Load() }

// Percent is capped at 100; an empty run counts as complete.
func (c *Counters) Percent() float64 {
	total := c.total.Load()
	if total <= 0 {
		return 100
	}
	pct := float64(c.processed.Load()) / float64(total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
