// Package gemini implements llm.Provider on the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/moneychat-nlp/internal/llm"
)

// DefaultModelName is the default Gemini model used for extraction.
const DefaultModelName = "gemini-2.5-flash"

// generator is the subset of *genai.Models the provider needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider sends prompts to Gemini.
type Provider struct {
	models generator
	model  string
}

// New creates a Gemini provider authenticated with apiKey.
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini.New: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini.New: create genai client: %w", err)
	}
	return newWithGenerator(client.Models, model), nil
}

func newWithGenerator(g generator, model string) *Provider {
	if model == "" {
		model = DefaultModelName
	}
	return &Provider{models: g, model: model}
}

// Generate implements llm.Provider. System turns become the system instruction;
// the rest are sent as conversation contents in order.
func (p *Provider) Generate(ctx context.Context, turns []llm.Turn, opts llm.Options) (*llm.Completion, error) {
	system, contents := toContents(turns)
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini.Generate: no user content")
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(opts.Temperature),
		MaxOutputTokens: opts.MaxOutputTokens,
		// Thinking tokens count against MaxOutputTokens and can crowd out the reply.
		ThinkingConfig:  &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	if opts.JSONOnly {
		config.ResponseMIMEType = "application/json"
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini.Generate: generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini.Generate: no response candidates")
	}

	completion := &llm.Completion{
		Text:  resp.Text(),
		Model: p.model,
	}
	if resp.ModelVersion != "" {
		completion.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		completion.Usage = llm.Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return completion, nil
}

func toContents(turns []llm.Turn) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(turns))

	for _, t := range turns {
		switch t.Role {
		case llm.RoleSystem:
			system = append(system, t.Text)
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: t.Text}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: t.Text}},
			})
		}
	}

	return strings.Join(system, "\n\n"), contents
}

var _ llm.Provider = (*Provider)(nil)
