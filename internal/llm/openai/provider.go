// Package openai implements llm.Provider on the OpenAI chat completions API.
package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/dvloznov/moneychat-nlp/internal/llm"
)

// DefaultModelName is the chat model used when none is configured.
const DefaultModelName = "gpt-4o-mini"

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Provider sends prompts to OpenAI.
type Provider struct {
	client chatCompleter
	model  string
}

// New creates an OpenAI provider.
func New(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai.New: API key is required")
	}
	return newWithClient(goopenai.NewClient(apiKey), model), nil
}

func newWithClient(c chatCompleter, model string) *Provider {
	if model == "" {
		model = DefaultModelName
	}
	return &Provider{client: c, model: model}
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, turns []llm.Turn, opts llm.Options) (*llm.Completion, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toMessages(turns),
		Temperature: opts.Temperature,
		MaxTokens:   int(opts.MaxOutputTokens),
	}
	if opts.JSONOnly {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai.Generate: create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai.Generate: no choices in response")
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &llm.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: llm.Usage{
			InputTokens:  int64(resp.Usage.PromptTokens),
			OutputTokens: int64(resp.Usage.CompletionTokens),
		},
	}, nil
}

func toMessages(turns []llm.Turn) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := goopenai.ChatMessageRoleUser
		switch t.Role {
		case llm.RoleSystem:
			role = goopenai.ChatMessageRoleSystem
		case llm.RoleAssistant:
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	return msgs
}

var _ llm.Provider = (*Provider)(nil)
