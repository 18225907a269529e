package sim

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"inverter/core"
)

// TickerCadence implements core.CadenceSource with a time.Ticker. The
// callback runs on its own goroutine, so it preempts the applier loop the
// way a timer interrupt does. Ticks missed by a slow receiver are dropped.
type TickerCadence struct {
	mu     sync.Mutex
	period time.Duration
	stop   chan struct{}
	done   chan struct{}
}

// NewTickerCadence creates a stopped cadence source
func NewTickerCadence() *TickerCadence {
	return &TickerCadence{}
}

// Schedule starts calling callback every periodUS microseconds
func (c *TickerCadence) Schedule(periodUS uint32, callback func()) error {
	if periodUS == 0 {
		return core.ErrInvalidPeriod
	}
	if callback == nil {
		return errors.New("cadence callback is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return errors.New("cadence already scheduled")
	}
	c.period = time.Duration(periodUS) * time.Microsecond
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	ticker := time.NewTicker(c.period)
	go func(stop, done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				callback()
			}
		}
	}(c.stop, c.done)
	return nil
}

// Period returns the scheduled period
func (c *TickerCadence) Period() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period
}

// Stop halts the ticker and waits for an in-flight callback to return
func (c *TickerCadence) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
