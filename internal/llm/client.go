package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
)

// Role tags a prompt turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged text turn of a prompt.
type Turn struct {
	Role Role
	Text string
}

// Options is the decoding configuration sent with every request.
type Options struct {
	Temperature     float32
	MaxOutputTokens int32
	JSONOnly        bool
}

// DefaultOptions keeps decoding near-deterministic and bounded.
var DefaultOptions = Options{
	Temperature:     0.1,
	MaxOutputTokens: 1000,
	JSONOnly:        true,
}

// Usage reports token accounting when the provider exposes it.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Completion is a provider's raw reply.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Provider is an external structured-completion service.
// Implementations must not retry; a single failed attempt is returned as is.
type Provider interface {
	Generate(ctx context.Context, turns []Turn, opts Options) (*Completion, error)
}

// Observer is notified after every upstream call.
type Observer func(op string, elapsed time.Duration, err error)

// Client wraps a Provider and turns replies into parsed JSON objects.
type Client struct {
	provider Provider
	opts     Options
	timeout  time.Duration
	observe  Observer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds every upstream call. Zero disables the bound.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithOptions overrides the decoding configuration.
func WithOptions(opts Options) ClientOption {
	return func(c *Client) { c.opts = opts }
}

// WithObserver registers a callback for call latency and outcome.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observe = o }
}

// NewClient creates a new extraction client around provider.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider: provider,
		opts:     DefaultOptions,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a parsed JSON reply.
type Result struct {
	Payload map[string]interface{}
	Raw     string
	Model   string
	Usage   Usage
}

// ExtractJSON sends turns to the provider and parses the reply as a JSON object.
// Provider failures become UpstreamErrors; unparseable replies become
// MalformedResponseErrors.
func (c *Client) ExtractJSON(ctx context.Context, op string, turns []Turn) (*Result, error) {
	log := logger.FromContext(ctx)

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := c.provider.Generate(callCtx, turns, c.opts)
	elapsed := time.Since(start)
	if c.observe != nil {
		c.observe(op, elapsed, err)
	}
	if err != nil {
		log.Error().Err(err).Str("op", op).Dur("elapsed", elapsed).Msg("Extraction service call failed")
		return nil, domain.Upstream(op, err)
	}

	log.Debug().
		Str("op", op).
		Str("model", completion.Model).
		Dur("elapsed", elapsed).
		Int64("tokens_input", completion.Usage.InputTokens).
		Int64("tokens_output", completion.Usage.OutputTokens).
		Msg("Extraction service replied")

	payload, err := ParseObject(completion.Text)
	if err != nil {
		return nil, domain.Malformed(op, "reply is not a JSON object", err)
	}

	return &Result{
		Payload: payload,
		Raw:     completion.Text,
		Model:   completion.Model,
		Usage:   completion.Usage,
	}, nil
}

// ErrEmptyReply is returned by ParseObject for blank replies.
var ErrEmptyReply = errors.New("empty reply")

// ParseObject decodes raw model output that must be a single JSON object.
func ParseObject(raw string) (map[string]interface{}, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, ErrEmptyReply
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("top-level value is %T, want object", parsed)
	}
	return obj, nil
}

// cleanModelJSON strips markdown fences and any text around the outermost object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return strings.Trim(s, "`")
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
