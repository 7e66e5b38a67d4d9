package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/llm"
)

// Stage names a state of the chat extraction state machine.
type Stage string

const (
	StageReceived         Stage = "RECEIVED"
	StageCacheCheck       Stage = "CACHE_CHECK"
	StagePrompting        Stage = "PROMPTING"
	StageAwaitingUpstream Stage = "AWAITING_UPSTREAM"
	StageParsing          Stage = "PARSING"
	StageResolving        Stage = "RESOLVING"
	StageValidating       Stage = "VALIDATING"
	StageCaching          Stage = "CACHING"
	StageResponded        Stage = "RESPONDED"
	StageFailed           Stage = "FAILED"
)

// PipelineStep represents a single step of the chat extraction pipeline.
type PipelineStep interface {
	Stage() Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Message domain.ChatMessage
	Today   time.Time

	Stage    Stage
	CacheHit bool
	// Done stops the pipeline after the current step without error.
	Done bool

	Turns  []llm.Turn
	Result *llm.Result

	Items                []interface{}
	ClarificationNeeded  bool
	ClarificationMessage *string

	Response *domain.NLPResponse
}

// CacheCheckStep serves a previously stored response for the same request.
type CacheCheckStep struct {
	Cache ResponseCache
}

func (s *CacheCheckStep) Stage() Stage { return StageCacheCheck }

func (s *CacheCheckStep) Execute(ctx context.Context, state *PipelineState) error {
	if resp, ok := s.Cache.Get(ctx, state.Message); ok {
		// The key only covers the trailing context, so the stored history
		// may belong to another conversation.
		hit := *resp
		hit.ConversationContext = conversationHistory(state.Message)
		state.Response = &hit
		state.CacheHit = true
		state.Done = true
	}
	return nil
}

// conversationHistory returns the request's context with its message appended.
func conversationHistory(msg domain.ChatMessage) []string {
	history := make([]string, 0, len(msg.Context)+1)
	history = append(history, msg.Context...)
	return append(history, msg.Message)
}

// PromptStep assembles the extraction prompt.
type PromptStep struct{}

func (s *PromptStep) Stage() Stage { return StagePrompting }

func (s *PromptStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Turns = BuildExtractionPrompt(state.Today, state.Message.Context, state.Message.Message)
	return nil
}

// UpstreamStep calls the extraction service.
type UpstreamStep struct {
	Extractor Extractor
}

func (s *UpstreamStep) Stage() Stage { return StageAwaitingUpstream }

func (s *UpstreamStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Extractor.ExtractJSON(ctx, OpExtractExpense, state.Turns)
	if err != nil {
		return err
	}
	state.Result = res
	return nil
}

// ParseStep checks the reply's top-level shape.
type ParseStep struct{}

func (s *ParseStep) Stage() Stage { return StageParsing }

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	payload := state.Result.Payload

	needed, err := getBoolField(payload, "clarification_needed")
	if err != nil {
		return domain.Malformed(OpExtractExpense, "bad clarification flag", err)
	}
	state.ClarificationNeeded = needed

	raw, ok := payload["expenses"]
	if !ok && !needed {
		return domain.Malformed(OpExtractExpense, `reply has no "expenses" field`, nil)
	}
	switch v := raw.(type) {
	case nil:
		state.Items = nil
	case []interface{}:
		state.Items = v
	default:
		return domain.Malformed(OpExtractExpense, fmt.Sprintf(`"expenses" is %T, want array`, v), nil)
	}

	msg, err := getOptionalStringField(payload, "clarification_message")
	if err != nil {
		return domain.Malformed(OpExtractExpense, "bad clarification message", err)
	}
	state.ClarificationMessage = msg

	return nil
}

// ResolveDatesStep rewrites each item's date phrase as an absolute date.
type ResolveDatesStep struct{}

func (s *ResolveDatesStep) Stage() Stage { return StageResolving }

func (s *ResolveDatesStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, item := range state.Items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if d, ok := obj["date"].(string); ok {
			obj["date"] = FormatDate(ResolveDate(d, state.Today))
		}
	}
	return nil
}

// ValidateStep validates the items and builds the response.
type ValidateStep struct {
	Policy BatchPolicy
}

func (s *ValidateStep) Stage() Stage { return StageValidating }

func (s *ValidateStep) Execute(ctx context.Context, state *PipelineState) error {
	expenses, rejected, err := ValidateExpenses(state.Items, state.Today, s.Policy)
	if err != nil {
		return err
	}

	state.Response = &domain.NLPResponse{
		Success:              true,
		Expenses:             expenses,
		ClarificationNeeded:  state.ClarificationNeeded,
		ClarificationMessage: state.ClarificationMessage,
		ConversationContext:  conversationHistory(state.Message),
		Rejected:             rejected,
	}
	return nil
}

// CacheStoreStep stores the successful response.
type CacheStoreStep struct {
	Cache ResponseCache
}

func (s *CacheStoreStep) Stage() Stage { return StageCaching }

func (s *CacheStoreStep) Execute(ctx context.Context, state *PipelineState) error {
	s.Cache.Put(ctx, state.Message, state.Response)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially. A step error moves the state to
// StageFailed and stops the run; no step is retried.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	state.Stage = StageReceived
	for _, step := range p.steps {
		state.Stage = step.Stage()
		if err := step.Execute(ctx, state); err != nil {
			state.Stage = StageFailed
			return err
		}
		if state.Done {
			break
		}
	}
	state.Stage = StageResponded
	return nil
}

// NewExtractionPipeline creates the standard chat extraction pipeline.
func NewExtractionPipeline(extractor Extractor, cache ResponseCache, policy BatchPolicy) *Pipeline {
	return NewPipeline(
		&CacheCheckStep{Cache: cache},
		&PromptStep{},
		&UpstreamStep{Extractor: extractor},
		&ParseStep{},
		&ResolveDatesStep{},
		&ValidateStep{Policy: policy},
		&CacheStoreStep{Cache: cache},
	)
}
