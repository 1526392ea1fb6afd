package progress

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const bytesPerMB = 1024 * 1024

// Reporter samples Counters on a fixed interval and mirrors them onto the
// manager's progress bar. It never blocks the workers it observes.
type Reporter struct {
	manager  *Manager
	counters *Counters
	interval time.Duration

	start time.Time
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewReporter(manager *Manager, counters *Counters, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{
		manager:  manager,
		counters: counters,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins sampling in the background until Stop is called or ctx ends.
func (r *Reporter) Start(ctx context.Context, description string) {
	r.start = time.Now()
	r.manager.InitTotalProgress(r.counters.Total(), description)

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sample()
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop takes a final sample and finishes the bar. Safe to call more than once.
func (r *Reporter) Stop() {
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		r.manager.SetTotalProgress(r.counters.Processed())
		r.manager.FinishTotalProgress()
	})
}

func (r *Reporter) sample() {
	processed := r.counters.Processed()
	r.manager.SetTotalProgress(processed)
	line := FormatStatus(time.Since(r.start), processed, r.counters.Total())
	switch {
	case r.manager.IsVerbose():
		r.manager.PrintVerbose("%s", line)
	case !r.manager.IsTerminal():
		// No bar to watch, so status lines stand in for it
		r.manager.PrintInfo("%s\n", line)
	}
}

// FormatStatus renders one status line, e.g.
// "Progress at time t + 5 s: 50.00% (1 MB / 2 MB)".
func FormatStatus(elapsed time.Duration, processed, total int64) string {
	pct := 100.0
	if total > 0 {
		pct = float64(processed) / float64(total) * 100
		if pct > 100 {
			pct = 100
		}
	}
	return fmt.Sprintf("Progress at time t + %d s: %.2f%% (%d MB / %d MB)",
		int64(elapsed/time.Second), pct, processed/bytesPerMB, total/bytesPerMB)
}
