package proctor

import (
	"sync"
	"time"
)

// countdown drives the session clock while Running. cancel stops the
// goroutine; ticks already in flight are discarded by the session's generation check.
type countdown struct {
	stop chan struct{}
	once sync.Once
}

func startCountdown(interval time.Duration, tick func()) *countdown {
	c := &countdown{stop: make(chan struct{})}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				tick()
			}
		}
	}()
	return c
}

func (c *countdown) cancel() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.stop) })
}
