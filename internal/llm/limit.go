package llm

import (
	"context"
	"sync"
	"time"
)

// limited bounds concurrent calls to a provider and spaces them out.
type limited struct {
	next  Provider
	sem   chan struct{}
	mu    sync.Mutex
	last  time.Time
	delay time.Duration
}

// Limit wraps p so that at most n calls are in flight and consecutive calls
// start at least minInterval apart. n <= 0 returns p unchanged.
func Limit(p Provider, n int, minInterval time.Duration) Provider {
	if n <= 0 {
		return p
	}
	return &limited{
		next:  p,
		sem:   make(chan struct{}, n),
		delay: minInterval,
	}
}

func (l *limited) Generate(ctx context.Context, turns []Turn, opts Options) (*Completion, error) {
	release, err := l.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return l.next.Generate(ctx, turns, opts)
}

func (l *limited) acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if !l.last.IsZero() {
		if wait := l.delay - now.Sub(l.last); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				<-l.sem
				return nil, ctx.Err()
			}
			now = time.Now()
		}
	}
	l.last = now

	return func() { <-l.sem }, nil
}
