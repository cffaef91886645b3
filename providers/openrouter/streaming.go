package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// ChatCompletionChunk represents a streaming chunk from OpenRouter.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
	Error   *apiError     `json:"error,omitempty"`
}

// ChunkChoice represents a choice in a streaming chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta represents incremental updates in a chunk.
type Delta struct {
	Role             *string           `json:"role,omitempty"`
	Content          *string           `json:"content,omitempty"`
	ToolCalls        []ToolCall        `json:"tool_calls,omitempty"`
	Reasoning        *string           `json:"reasoning,omitempty"`
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`
	Annotations      []Annotation      `json:"annotations,omitempty"`
}

// StreamResponse streams one step from OpenRouter as parts.
func (p *Provider) StreamResponse(ctx context.Context, req *llmprovider.GenerateRequest) (<-chan llmprovider.Part, error) {
	if !p.SupportsModel(req.Model) {
		return nil, &llmprovider.ModelError{
			Model:    req.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by OpenRouter (must be in 'provider/model' format)",
			Err:      llmprovider.ErrInvalidModel,
		}
	}
	if err := p.rejectSearchTool(req); err != nil {
		return nil, err
	}

	openrouterReq, err := buildChatCompletionRequest(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := p.newStreamRequest(ctx, openrouterReq)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Join(llmprovider.ErrAborted, ctx.Err())
		}
		return nil, &llmprovider.ProviderError{
			Provider:  p.Name().String(),
			Message:   err.Error(),
			Retryable: true,
			Err:       errors.Join(llmprovider.ErrProviderUnavailable, err),
		}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, p.responseError(resp, req.Model)
	}

	out := make(chan llmprovider.Part)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		state := newStreamState(p.Name().String())
		scanner := newSSEScanner(resp.Body)
		for scanner.Next() {
			data := scanner.Data()
			if data == "[DONE]" {
				break
			}

			var chunk ChatCompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				p.logger.Debug("skipping unparseable openrouter chunk", "error", err)
				continue
			}

			parts, err := state.handle(&chunk)
			for _, part := range parts {
				if !llmprovider.Send(ctx, out, part) {
					return
				}
			}
			if err != nil {
				p.logger.Warn("openrouter stream error", "model", req.Model, "error", err)
				llmprovider.Send(ctx, out, llmprovider.ErrorPart{Err: err})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("openrouter stream read failed", "model", req.Model, "error", err)
			llmprovider.Send(ctx, out, llmprovider.ErrorPart{Err: &llmprovider.ProviderError{
				Provider:  p.Name().String(),
				Message:   err.Error(),
				Retryable: true,
				Err:       errors.Join(llmprovider.ErrProviderUnavailable, err),
			}})
			return
		}

		parts := state.finish()
		for _, part := range parts {
			if !llmprovider.Send(ctx, out, part) {
				return
			}
		}
		p.logger.Debug("openrouter step finished", "model", req.Model, "finish_reason", state.finishReason)
	}()

	return out, nil
}

type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// streamState maps chat completion chunks to parts. Tool calls are keyed by
// their stream index; they complete when the choice reports a finish reason.
type streamState struct {
	provider     string
	id           string
	model        string
	finishReason string
	usage        *Usage
	tools        map[int]*pendingToolCall
	sources      map[string]bool
}

func newStreamState(provider string) *streamState {
	return &streamState{
		provider: provider,
		tools:    make(map[int]*pendingToolCall),
		sources:  make(map[string]bool),
	}
}

func (s *streamState) handle(chunk *ChatCompletionChunk) ([]llmprovider.Part, error) {
	if chunk.Error != nil {
		return nil, chunkError(s.provider, chunk.Error, chunk.Model)
	}
	if chunk.ID != "" {
		s.id = chunk.ID
	}
	if chunk.Model != "" {
		s.model = chunk.Model
	}
	if chunk.Usage != nil {
		s.usage = chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		return nil, nil
	}

	choice := chunk.Choices[0]
	delta := choice.Delta
	var parts []llmprovider.Part

	parts = append(parts, reasoningParts(delta)...)

	if delta.Content != nil && *delta.Content != "" {
		parts = append(parts, llmprovider.TextDelta{Text: *delta.Content})
	}

	for _, annotation := range delta.Annotations {
		c := annotation.URLCitation
		if annotation.Type != "url_citation" || c == nil || c.URL == "" || s.sources[c.URL] {
			continue
		}
		s.sources[c.URL] = true
		source := llmprovider.Source{
			SourceType: "url",
			ID:         fmt.Sprintf("%s-%d", s.id, len(s.sources)-1),
			URL:        c.URL,
		}
		if c.Title != nil {
			source.Title = *c.Title
		}
		if c.Content != nil {
			source.ProviderMetadata = map[string]any{"content": *c.Content}
		}
		parts = append(parts, llmprovider.SourcePart{Source: source})
	}

	for _, tc := range delta.ToolCalls {
		parts = append(parts, s.toolCallDelta(tc)...)
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		s.finishReason = *choice.FinishReason
		parts = append(parts, s.flushTools()...)
	}

	return parts, nil
}

// reasoningParts prefers structured reasoning details; the plain reasoning
// field repeats the same text.
func reasoningParts(delta Delta) []llmprovider.Part {
	if len(delta.ReasoningDetails) == 0 {
		if delta.Reasoning != nil && *delta.Reasoning != "" {
			return []llmprovider.Part{llmprovider.ReasoningDelta{Text: *delta.Reasoning}}
		}
		return nil
	}

	var parts []llmprovider.Part
	for _, detail := range delta.ReasoningDetails {
		switch detail.Type {
		case "reasoning.text":
			if detail.Text != nil && *detail.Text != "" {
				parts = append(parts, llmprovider.ReasoningDelta{Text: *detail.Text})
			}
		case "reasoning.summary":
			if detail.Summary != nil && *detail.Summary != "" {
				parts = append(parts, llmprovider.ReasoningDelta{Text: *detail.Summary})
			}
		case "reasoning.encrypted":
			if detail.Data != nil && *detail.Data != "" {
				parts = append(parts, llmprovider.RedactedReasoning{Data: *detail.Data})
			}
		}
		if detail.Signature != nil && *detail.Signature != "" {
			parts = append(parts, llmprovider.ReasoningSignature{Signature: *detail.Signature})
		}
	}
	return parts
}

func (s *streamState) toolCallDelta(tc ToolCall) []llmprovider.Part {
	index := s.toolIndex(tc)

	var parts []llmprovider.Part
	call, ok := s.tools[index]
	if !ok {
		call = &pendingToolCall{id: tc.ID, name: tc.Function.Name}
		if call.id == "" {
			call.id = fmt.Sprintf("%s-call-%d", s.id, index)
		}
		s.tools[index] = call
		parts = append(parts, llmprovider.ToolCallStreamingStart{ToolCallID: call.id, ToolName: call.name})
	}

	if args := tc.Function.Arguments; args != "" {
		call.args.WriteString(args)
		parts = append(parts, llmprovider.ToolCallDelta{
			ToolCallID:    call.id,
			ToolName:      call.name,
			ArgsTextDelta: args,
		})
	}
	return parts
}

func (s *streamState) toolIndex(tc ToolCall) int {
	if tc.Index != nil {
		return *tc.Index
	}
	if tc.ID != "" {
		for index, call := range s.tools {
			if call.id == tc.ID {
				return index
			}
		}
	}
	return len(s.tools)
}

// flushTools completes pending tool calls in index order.
func (s *streamState) flushTools() []llmprovider.Part {
	if len(s.tools) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(s.tools))
	for index := range s.tools {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	parts := make([]llmprovider.Part, 0, len(indexes))
	for _, index := range indexes {
		call := s.tools[index]
		args := call.args.String()
		if args == "" {
			args = "{}"
		}
		parts = append(parts, llmprovider.ToolCall{ToolCallID: call.id, ToolName: call.name, Args: json.RawMessage(args)})
	}
	clear(s.tools)
	return parts
}

// finish completes any open tool calls and builds the step's Finish.
func (s *streamState) finish() []llmprovider.Part {
	parts := s.flushTools()

	metadata := map[string]any{}
	if s.model != "" {
		metadata["model"] = s.model
	}
	if s.id != "" {
		metadata["response_id"] = s.id
	}

	finish := llmprovider.Finish{
		FinishReason:     llmprovider.MapStopReason(s.finishReason),
		ProviderMetadata: metadata,
	}
	if s.usage != nil {
		finish.Usage = llmprovider.NewUsage(s.usage.PromptTokens, s.usage.CompletionTokens)
	}
	return append(parts, finish)
}

// chunkError converts an error reported inside the stream.
func chunkError(provider string, e *apiError, model string) error {
	status := 0
	switch code := e.Code.(type) {
	case float64:
		status = int(code)
	case string:
		status, _ = strconv.Atoi(code)
	}
	return statusError(provider, status, e.Message, model)
}
