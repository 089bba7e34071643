package rate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter gates outbound work so we respect Gmail rate limits.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Pacer enforces a fixed minimum delay between consecutive Wait calls.
type Pacer struct {
	delay time.Duration
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewPacer returns a limiter that lets the first call through immediately
// and spaces every later call at least delay after the previous one.
func NewPacer(delay time.Duration) *Pacer {
	if delay < 0 {
		delay = 0
	}
	return &Pacer{delay: delay, now: time.Now}
}

// Wait blocks until the delay since the previous call has elapsed or the
// context is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if remaining := p.delay - p.now().Sub(p.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("rate wait canceled: %w", ctx.Err())
			case <-timer.C:
			}
		}
	} else if err := ctx.Err(); err != nil {
		return fmt.Errorf("rate wait canceled: %w", err)
	}
	p.last = p.now()
	return nil
}

var _ Limiter = (*Pacer)(nil)
