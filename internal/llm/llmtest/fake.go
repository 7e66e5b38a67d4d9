// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/dvloznov/moneychat-nlp/internal/llm"
)

// Call records one Generate invocation.
type Call struct {
	Turns   []llm.Turn
	Options llm.Options
}

// Fake replies with queued texts or errors, in order. When the queue is
// exhausted the last reply is repeated.
type Fake struct {
	mu      sync.Mutex
	replies []reply
	calls   []Call
}

type reply struct {
	text string
	err  error
}

// NewFake creates a Fake that answers every call with text.
func NewFake(texts ...string) *Fake {
	f := &Fake{}
	for _, t := range texts {
		f.Reply(t)
	}
	return f
}

// Reply queues a successful reply.
func (f *Fake) Reply(text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{text: text})
	return f
}

// Fail queues a failing reply.
func (f *Fake) Fail(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{err: err})
	return f
}

// Generate implements llm.Provider.
func (f *Fake) Generate(ctx context.Context, turns []llm.Turn, opts llm.Options) (*llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Turns: append([]llm.Turn(nil), turns...), Options: opts})

	if len(f.replies) == 0 {
		return nil, errors.New("llmtest: no reply scripted")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Completion{
		Text:  r.text,
		Model: "fake",
		Usage: llm.Usage{InputTokens: 10, OutputTokens: 20},
	}, nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns the number of Generate invocations so far.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var _ llm.Provider = (*Fake)(nil)
