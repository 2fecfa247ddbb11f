// internal/stream/runner.go
package stream

import (
	"context"
	"time"
)

// Run drives the connect / read / reconnect loop until ctx ends.
// One goroutine per feed. The capture is released before Run returns.
func (c *Connection) Run(ctx context.Context) {
	defer c.Disconnect()

	// the first attempt and the attempt right after a read failure
	// are immediate; everything else goes through backoff
	immediate := true

	for ctx.Err() == nil {
		if !c.connected() {
			var err error
			if immediate {
				err = c.Connect(ctx)
			} else {
				err = c.Reconnect(ctx)
			}
			immediate = false
			if err != nil {
				continue
			}
		}

		start := c.now()
		if err := c.processFrame(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.recordReadFailure(err)
			c.Disconnect()
			immediate = true
			continue
		}

		// pace to the current quality
		interval := time.Second / time.Duration(c.Settings().FPS)
		if wait := interval - c.now().Sub(start); wait > 0 {
			if err := c.sleep(ctx, wait); err != nil {
				return
			}
		}
	}
}

// Start launches Run on its own goroutine. A second call is a no-op.
func (c *Connection) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.done != nil {
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		c.Run(rctx)
	}()
}

// Stop signals the worker and waits up to timeout for it to release the capture.
// On timeout the capture is closed from here and ErrStopTimeout is returned.
func (c *Connection) Stop(timeout time.Duration) error {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()

	if done == nil {
		c.Disconnect()
		return nil
	}
	cancel()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-done:
		return nil
	case <-t.C:
		c.Disconnect()
		c.log.Warn("stream worker did not stop in time", "timeout", timeout)
		return ErrStopTimeout
	}
}

func (c *Connection) connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st.IsConnected
}
