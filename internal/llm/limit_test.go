package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (p *countingProvider) Generate(ctx context.Context, _ []Turn, _ Options) (*Completion, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return &Completion{Text: "{}"}, nil
}

func TestLimit_Unbounded(t *testing.T) {
	p := &countingProvider{}
	assert.Same(t, Provider(p), Limit(p, 0, 0))
}

func TestLimit_BoundsConcurrency(t *testing.T) {
	p := &countingProvider{}
	limited := Limit(p, 2, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := limited.Generate(context.Background(), nil, DefaultOptions)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, p.peak.Load(), int32(2))
}

func TestLimit_ContextCancelled(t *testing.T) {
	p := &countingProvider{}
	limited := Limit(p, 1, time.Hour)

	_, err := limited.Generate(context.Background(), nil, DefaultOptions)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = limited.Generate(ctx, nil, DefaultOptions)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
