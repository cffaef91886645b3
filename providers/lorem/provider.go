// Package lorem implements a mock provider that streams lorem ipsum.
// It needs no API key and is used for tests, demos and load experiments.
//
// The model name selects the behavior:
//   - lorem-slow, lorem-medium, lorem-fast, lorem-instant pace the words
//   - lorem-cutoff and lorem-small always stop on the token limit
//
// When the request carries tools and the conversation does not end in tool
// results, the step ends with a call to one of them.
package lorem

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

const (
	defaultTextWords      = 20
	defaultReasoningWords = 20
	argsChunkSize         = 8
	mockSignature         = "4k_a"
)

// Provider is a mock LLM provider that generates lorem ipsum text.
// Used for testing and development without requiring real API keys.
type Provider struct {
	mu        sync.Mutex // guards generator
	generator *loremgen.Lorem

	delay     time.Duration
	delaySet  bool
	textWords int
	clock     llmprovider.Clock
	tokenizer Tokenizer
	logger    *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithDelay fixes the pause between streamed words regardless of the model name.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) {
		p.delay = d
		p.delaySet = true
	}
}

// WithTextWords sets the number of words in a text block.
func WithTextWords(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.textWords = n
		}
	}
}

// WithTokenizer counts usage with t instead of whitespace-separated words.
func WithTokenizer(t Tokenizer) Option {
	return func(p *Provider) { p.tokenizer = t }
}

// WithClock paces the stream with c.
func WithClock(c llmprovider.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// NewProvider creates a new lorem ipsum provider.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		generator: loremgen.New(),
		textWords: defaultTextWords,
		clock:     llmprovider.RealClock(),
		tokenizer: WordCounter{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() llmprovider.ProviderID {
	return llmprovider.ProviderLorem
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-cutoff"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// streamDelay returns the delay between words.
// - lorem-slow: 2 words/second
// - lorem-fast: 30 words/second
// - lorem-instant: no delay
// - default: 10 words/second
func (p *Provider) streamDelay(model string) time.Duration {
	switch {
	case p.delaySet:
		return p.delay
	case strings.Contains(model, "instant"):
		return 0
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// isCutoffModel returns true if the model should simulate a max_tokens cutoff.
func isCutoffModel(model string) bool {
	return strings.Contains(model, "cutoff") || strings.Contains(model, "small")
}

// step holds the state of one StreamResponse call.
type step struct {
	p     *Provider
	ctx   context.Context
	out   chan<- llmprovider.Part
	delay time.Duration

	// completion collects every generated string for usage counting.
	completion strings.Builder
}

func (s *step) send(part llmprovider.Part) bool {
	return llmprovider.Send(s.ctx, s.out, part)
}

func (s *step) pause(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}
	select {
	case <-s.p.clock.After(d):
		return true
	case <-s.ctx.Done():
		return false
	}
}

// StreamResponse streams one step: optional reasoning, a text block and, when
// tools are offered, a tool call.
func (p *Provider) StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (<-chan llmprovider.Part, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Lorem provider (must start with 'lorem-')",
			Err:      llmprovider.ErrInvalidModel,
		}
	}

	params := req.Params
	if params == nil {
		params = &llmprovider.RequestParams{}
	}
	maxTokens := params.GetMaxTokens(4096)
	thinking := params.ThinkingEnabled != nil && *params.ThinkingEnabled
	tool, callIndex := pickTool(params.Tools, req.Messages)

	out := make(chan llmprovider.Part)
	s := &step{p: p, ctx: ctx, out: out, delay: p.streamDelay(req.Model)}

	go func() {
		defer close(out)

		p.logger.Debug("lorem step started",
			"model", req.Model,
			"thinking", thinking,
			"tools", len(params.Tools),
			"max_tokens", maxTokens)

		if thinking {
			if !s.streamReasoning(defaultReasoningWords) {
				return
			}
		}

		target := p.textWords
		if isCutoffModel(req.Model) {
			target = maxTokens + maxTokens/2
		}
		sent, ok := s.streamText(min(target, maxTokens))
		if !ok {
			return
		}

		reason := llmprovider.FinishReasonStop
		switch {
		case sent < target:
			reason = llmprovider.FinishReasonLength
		case tool != nil:
			if !s.streamToolCall(tool, callIndex) {
				return
			}
			reason = llmprovider.FinishReasonToolCalls
		}

		usage := llmprovider.NewUsage(p.promptTokens(req.Messages), p.tokenizer.Count(s.completion.String()))
		p.logger.Debug("lorem step finished",
			"model", req.Model,
			"finish_reason", reason,
			"completion_tokens", usage.CompletionTokens)
		s.send(llmprovider.Finish{
			FinishReason: reason,
			Usage:        usage,
			ProviderMetadata: map[string]any{
				"mock":     true,
				"provider": "lorem",
			},
		})
	}()

	return out, nil
}

// streamReasoning streams words of reasoning followed by the signature.
// The signature is sent last, matching Anthropic.
func (s *step) streamReasoning(words int) bool {
	for _, word := range strings.Fields(s.p.generateTextWords(words))[:words] {
		delta := word + " "
		s.completion.WriteString(delta)
		if !s.send(llmprovider.ReasoningDelta{Text: delta}) || !s.pause(s.delay) {
			return false
		}
	}
	return s.send(llmprovider.ReasoningSignature{Signature: mockSignature})
}

// streamText streams up to limit words and returns how many were sent.
func (s *step) streamText(limit int) (int, bool) {
	words := strings.Fields(s.p.generateTextWords(limit))
	if len(words) > limit {
		words = words[:limit]
	}
	for i, word := range words {
		delta := word + " "
		s.completion.WriteString(delta)
		if !s.send(llmprovider.TextDelta{Text: delta}) || !s.pause(s.delay) {
			return i, false
		}
	}
	return len(words), true
}

// streamToolCall streams the arguments of a call to tool in small chunks,
// then the complete call.
func (s *step) streamToolCall(tool *llmprovider.Tool, index int) bool {
	name := tool.Function.Name
	id := fmt.Sprintf("toolu_%s_%d", name, index)

	args, err := json.Marshal(mockInput(tool))
	if err != nil {
		s.send(llmprovider.ErrorPart{Err: fmt.Errorf("failed to marshal tool input: %w", err)})
		return false
	}
	s.completion.Write(args)

	if !s.send(llmprovider.ToolCallStreamingStart{ToolCallID: id, ToolName: name}) {
		return false
	}
	for start := 0; start < len(args); start += argsChunkSize {
		end := min(start+argsChunkSize, len(args))
		delta := llmprovider.ToolCallDelta{ToolCallID: id, ToolName: name, ArgsTextDelta: string(args[start:end])}
		if !s.send(delta) || !s.pause(s.delay/10) {
			return false
		}
	}
	return s.send(llmprovider.ToolCall{ToolCallID: id, ToolName: name, Args: args})
}

// pickTool returns the tool to call this step and the number of calls
// already in the conversation, rotating through the offered tools. No tool is
// called when the conversation ends in tool results.
func pickTool(tools []llmprovider.Tool, messages []llmprovider.Message) (*llmprovider.Tool, int) {
	if len(tools) == 0 || endsWithToolResults(messages) {
		return nil, 0
	}
	calls := 0
	for _, msg := range messages {
		for _, block := range msg.Blocks {
			if block.BlockType == llmprovider.BlockTypeToolUse {
				calls++
			}
		}
	}
	return &tools[calls%len(tools)], calls
}

func endsWithToolResults(messages []llmprovider.Message) bool {
	if len(messages) == 0 {
		return false
	}
	last := messages[len(messages)-1]
	for _, block := range last.Blocks {
		if block.BlockType == llmprovider.BlockTypeToolResult {
			return true
		}
	}
	return false
}

// mockInput builds arguments for tool. Well-known tools get realistic input;
// others get a value per schema property.
func mockInput(tool *llmprovider.Tool) map[string]any {
	switch tool.Function.Name {
	case "search":
		return map[string]any{"query": "lorem ipsum dolor sit amet"}
	case "text_editor":
		return map[string]any{
			"command":   "str_replace",
			"file_path": "/path/to/file.txt",
			"old_str":   "consectetur",
			"new_str":   "adipiscing",
		}
	case "bash":
		return map[string]any{"command": "echo 'lorem ipsum'"}
	}

	input := map[string]any{}
	properties, _ := tool.Function.Parameters["properties"].(map[string]any)
	for name, raw := range properties {
		schema, _ := raw.(map[string]any)
		switch schema["type"] {
		case "integer", "number":
			input[name] = 1
		case "boolean":
			input[name] = true
		case "array":
			input[name] = []any{}
		case "object":
			input[name] = map[string]any{}
		default:
			input[name] = "lorem"
		}
	}
	return input
}

// generateTextWords generates lorem ipsum text with at least targetWords words.
func (p *Provider) generateTextWords(targetWords int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	wordCount := 0

	for wordCount < targetWords {
		sentence := p.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")
		wordCount += len(strings.Fields(sentence))
	}

	return strings.TrimSpace(sb.String())
}

// promptTokens counts the text of the request messages.
func (p *Provider) promptTokens(messages []llmprovider.Message) int {
	total := 0
	for _, msg := range messages {
		for _, block := range msg.Blocks {
			if block.TextContent != nil {
				total += p.tokenizer.Count(*block.TextContent)
			}
		}
	}
	return total
}
