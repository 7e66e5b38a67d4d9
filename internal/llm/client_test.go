package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/llm"
	"github.com/dvloznov/moneychat-nlp/internal/llm/llmtest"
)

func TestParseObject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantErr bool
	}{
		{name: "plain object", raw: `{"a":1}`, wantKey: "a"},
		{name: "json fence", raw: "```json\n{\"a\":1}\n```", wantKey: "a"},
		{name: "bare fence", raw: "```\n{\"b\":2}\n```", wantKey: "b"},
		{name: "leading prose", raw: "Here you go: {\"c\":3} thanks", wantKey: "c"},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "array", raw: `[1,2,3]`, wantErr: true},
		{name: "truncated", raw: `{"a":`, wantErr: true},
		{name: "not json", raw: "I cannot help with that", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.ParseObject(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, got, tt.wantKey)
		})
	}
}

func TestClient_ExtractJSON(t *testing.T) {
	fake := llmtest.NewFake("```json\n{\"expenses\":[]}\n```")
	client := llm.NewClient(fake)

	res, err := client.ExtractJSON(context.Background(), "ExtractExpense", []llm.Turn{
		{Role: llm.RoleUser, Text: "hi"},
	})
	require.NoError(t, err)

	assert.Contains(t, res.Payload, "expenses")
	assert.Equal(t, "fake", res.Model)
	assert.Equal(t, int64(10), res.Usage.InputTokens)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, llm.DefaultOptions, calls[0].Options)
}

func TestClient_ExtractJSON_UpstreamError(t *testing.T) {
	fake := llmtest.NewFake().Fail(errors.New("503 service unavailable"))

	var observed []string
	client := llm.NewClient(fake, llm.WithObserver(func(op string, _ time.Duration, err error) {
		if err != nil {
			observed = append(observed, op)
		}
	}))

	_, err := client.ExtractJSON(context.Background(), "MapColumns", nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))
	assert.Equal(t, []string{"MapColumns"}, observed)
	assert.Equal(t, 1, fake.CallCount(), "no retries")
}

func TestClient_ExtractJSON_Malformed(t *testing.T) {
	client := llm.NewClient(llmtest.NewFake("sorry, no JSON today"))

	_, err := client.ExtractJSON(context.Background(), "ExtractExpense", nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindMalformedResponse, domain.KindOf(err))
}

type slowProvider struct{}

func (slowProvider) Generate(ctx context.Context, _ []llm.Turn, _ llm.Options) (*llm.Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestClient_ExtractJSON_Timeout(t *testing.T) {
	client := llm.NewClient(slowProvider{}, llm.WithTimeout(10*time.Millisecond))

	_, err := client.ExtractJSON(context.Background(), "ExtractExpense", nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindUpstream, domain.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
