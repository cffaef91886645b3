package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// StreamResponse streams one step from Claude as parts.
func (p *Provider) StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (<-chan llmprovider.Part, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Anthropic (must start with 'claude-')",
			Err:      llmprovider.ErrInvalidModel,
		}
	}

	apiParams, err := buildMessageParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan llmprovider.Part)
	go func() {
		defer close(out)

		stream := p.client.Messages.NewStreaming(ctx, apiParams)
		defer stream.Close()

		state := newStreamState()
		for stream.Next() {
			parts, err := state.handle(stream.Current())
			if err != nil {
				llmprovider.Send(ctx, out, llmprovider.ErrorPart{Err: err})
				return
			}
			for _, part := range parts {
				if !llmprovider.Send(ctx, out, part) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("anthropic stream failed", "model", req.Model, "error", err)
			llmprovider.Send(ctx, out, llmprovider.ErrorPart{Err: convertError(err)})
			return
		}

		finish := state.finish()
		p.logger.Debug("anthropic step finished",
			"model", req.Model,
			"finish_reason", finish.FinishReason,
			"prompt_tokens", finish.Usage.PromptTokens,
			"completion_tokens", finish.Usage.CompletionTokens)
		llmprovider.Send(ctx, out, finish)
	}()

	return out, nil
}

type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// streamState maps Anthropic stream events to parts. The accumulated message
// provides usage, the stop reason and complete content blocks.
//
// Anthropic stream events include:
// - MessageStart: message metadata and input usage
// - ContentBlockStart: a new content block (text, thinking, redacted_thinking, tool_use, ...)
// - ContentBlockDelta: text_delta, thinking_delta, signature_delta, input_json_delta
// - ContentBlockStop: the block at the index is complete
// - MessageDelta: stop_reason and output usage
// - MessageStop: streaming complete
type streamState struct {
	message anthropic.Message
	tools   map[int64]*pendingToolCall
}

func newStreamState() *streamState {
	return &streamState{tools: make(map[int64]*pendingToolCall)}
}

func (s *streamState) handle(event anthropic.MessageStreamEventUnion) ([]llmprovider.Part, error) {
	if err := s.message.Accumulate(event); err != nil {
		return nil, fmt.Errorf("failed to accumulate message: %w", err)
	}

	switch e := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		block, ok := s.block(e.Index)
		if !ok {
			return nil, nil
		}
		switch block.Type {
		case "tool_use":
			s.tools[e.Index] = &pendingToolCall{id: block.ID, name: block.Name}
			return []llmprovider.Part{llmprovider.ToolCallStreamingStart{ToolCallID: block.ID, ToolName: block.Name}}, nil
		case "redacted_thinking":
			return []llmprovider.Part{llmprovider.RedactedReasoning{Data: block.Data}}, nil
		case "web_search_tool_result":
			return webSearchSources(block), nil
		}

	case anthropic.ContentBlockDeltaEvent:
		switch e.Delta.Type {
		case "text_delta":
			if e.Delta.Text != "" {
				return []llmprovider.Part{llmprovider.TextDelta{Text: e.Delta.Text}}, nil
			}
		case "thinking_delta":
			if e.Delta.Thinking != "" {
				return []llmprovider.Part{llmprovider.ReasoningDelta{Text: e.Delta.Thinking}}, nil
			}
		case "signature_delta":
			return []llmprovider.Part{llmprovider.ReasoningSignature{Signature: e.Delta.Signature}}, nil
		case "input_json_delta":
			call, ok := s.tools[e.Index]
			if !ok || e.Delta.PartialJSON == "" {
				return nil, nil
			}
			call.args.WriteString(e.Delta.PartialJSON)
			return []llmprovider.Part{llmprovider.ToolCallDelta{
				ToolCallID:    call.id,
				ToolName:      call.name,
				ArgsTextDelta: e.Delta.PartialJSON,
			}}, nil
		}

	case anthropic.ContentBlockStopEvent:
		call, ok := s.tools[e.Index]
		if !ok {
			return nil, nil
		}
		delete(s.tools, e.Index)
		args := call.args.String()
		if args == "" {
			args = "{}"
		}
		return []llmprovider.Part{llmprovider.ToolCall{ToolCallID: call.id, ToolName: call.name, Args: []byte(args)}}, nil
	}

	return nil, nil
}

func (s *streamState) block(index int64) (anthropic.ContentBlockUnion, bool) {
	if index < 0 || int(index) >= len(s.message.Content) {
		return anthropic.ContentBlockUnion{}, false
	}
	return s.message.Content[index], true
}

// webSearchSources turns the results of a server-side web search into sources.
func webSearchSources(block anthropic.ContentBlockUnion) []llmprovider.Part {
	results := block.Content.OfWebSearchResultBlockArray
	parts := make([]llmprovider.Part, 0, len(results))
	for i, result := range results {
		source := llmprovider.Source{
			SourceType: "url",
			ID:         fmt.Sprintf("%s-%d", block.ToolUseID, i),
			URL:        result.URL,
			Title:      result.Title,
		}
		if result.PageAge != "" {
			source.ProviderMetadata = map[string]any{"page_age": result.PageAge}
		}
		parts = append(parts, llmprovider.SourcePart{Source: source})
	}
	return parts
}

// finish builds the step's Finish from the accumulated message.
func (s *streamState) finish() llmprovider.Finish {
	metadata := map[string]any{
		"model": string(s.message.Model),
	}
	if s.message.ID != "" {
		metadata["message_id"] = s.message.ID
	}
	if s.message.StopSequence != "" {
		metadata["stop_sequence"] = s.message.StopSequence
	}
	if s.message.Usage.CacheCreationInputTokens > 0 {
		metadata["cache_creation_input_tokens"] = int(s.message.Usage.CacheCreationInputTokens)
	}
	if s.message.Usage.CacheReadInputTokens > 0 {
		metadata["cache_read_input_tokens"] = int(s.message.Usage.CacheReadInputTokens)
	}

	return llmprovider.Finish{
		FinishReason:     llmprovider.MapStopReason(string(s.message.StopReason)),
		Usage:            llmprovider.NewUsage(int(s.message.Usage.InputTokens), int(s.message.Usage.OutputTokens)),
		ProviderMetadata: metadata,
	}
}
