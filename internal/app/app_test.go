package app

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/moneychat-nlp/internal/config"
	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/llm/llmtest"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
)

const reply = `{"expenses":[{"date":"2024-06-09","amount":12000,"category":"식비","place":"김밥천국","confidence":0.9}],"clarification_needed":false}`

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	env["GEMINI_API_KEY"] = "test"
	cfg, err := config.FromEnv(func(k string) string { return env[k] })
	require.NoError(t, err)
	return cfg
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(io.Discard))
}

func TestBuild_MemoryCache(t *testing.T) {
	cfg := testConfig(t, map[string]string{"REDIS_URL": "memory://"})
	fake := llmtest.NewFake(reply)

	a, err := Build(quietContext(), cfg, fake)
	require.NoError(t, err)
	defer a.Close()

	msg := domain.ChatMessage{Message: "어제 김밥천국 12000원", UserID: "u1"}
	first, err := a.Service.ExtractExpense(quietContext(), msg)
	require.NoError(t, err)
	second, err := a.Service.ExtractExpense(quietContext(), msg)
	require.NoError(t, err)

	assert.Equal(t, first.Expenses, second.Expenses)
	assert.Equal(t, 1, fake.CallCount(), "second request should be served from cache")
}

func TestBuild_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, map[string]string{"REDIS_URL": "redis://" + mr.Addr()})
	fake := llmtest.NewFake(reply)

	a, err := Build(quietContext(), cfg, fake)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Service.ExtractExpense(quietContext(), domain.ChatMessage{Message: "김밥 12000원"})
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)
}

func TestBuild_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t, map[string]string{"REDIS_URL": "redis://" + addr})
	_, err := Build(quietContext(), cfg, llmtest.NewFake(reply))
	assert.Error(t, err)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestApp_CloseReverseOrder(t *testing.T) {
	var order []int
	a := &App{closers: []io.Closer{
		closerFunc(func() error { order = append(order, 1); return errors.New("first") }),
		closerFunc(func() error { order = append(order, 2); return nil }),
	}}

	err := a.Close()
	assert.EqualError(t, err, "first")
	assert.Equal(t, []int{2, 1}, order)
}
