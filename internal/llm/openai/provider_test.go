package openai

import (
	"context"
	"errors"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/moneychat-nlp/internal/llm"
)

type fakeCompleter struct {
	req  goopenai.ChatCompletionRequest
	resp goopenai.ChatCompletionResponse
	err  error
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestProvider_Generate(t *testing.T) {
	fc := &fakeCompleter{resp: goopenai.ChatCompletionResponse{
		Model: "gpt-4o-mini-2024-07-18",
		Choices: []goopenai.ChatCompletionChoice{
			{Message: goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: `{"ok":true}`}},
		},
		Usage: goopenai.Usage{PromptTokens: 120, CompletionTokens: 30},
	}}
	p := newWithClient(fc, "")

	got, err := p.Generate(context.Background(), []llm.Turn{
		{Role: llm.RoleSystem, Text: "sys"},
		{Role: llm.RoleUser, Text: "hello"},
	}, llm.DefaultOptions)
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, got.Text)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", got.Model)
	assert.Equal(t, int64(120), got.Usage.InputTokens)
	assert.Equal(t, int64(30), got.Usage.OutputTokens)

	assert.Equal(t, DefaultModelName, fc.req.Model)
	assert.Equal(t, 1000, fc.req.MaxTokens)
	require.NotNil(t, fc.req.ResponseFormat)
	assert.Equal(t, goopenai.ChatCompletionResponseFormatTypeJSONObject, fc.req.ResponseFormat.Type)
	require.Len(t, fc.req.Messages, 2)
	assert.Equal(t, goopenai.ChatMessageRoleSystem, fc.req.Messages[0].Role)
	assert.Equal(t, goopenai.ChatMessageRoleUser, fc.req.Messages[1].Role)
}

func TestProvider_GenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeCompleter
	}{
		{name: "transport error", fc: &fakeCompleter{err: errors.New("connection refused")}},
		{name: "no choices", fc: &fakeCompleter{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newWithClient(tt.fc, "gpt-test")
			_, err := p.Generate(context.Background(), []llm.Turn{{Role: llm.RoleUser, Text: "x"}}, llm.DefaultOptions)
			assert.Error(t, err)
		})
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("", "")
	assert.Error(t, err)
}
