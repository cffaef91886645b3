package openrouter

import (
	"fmt"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// ChatCompletionRequest represents an OpenRouter chat completion request.
// OpenRouter uses OpenAI-compatible format.
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Models         []string        `json:"models,omitempty"` // Fallback models tried in order
	Messages       []Message       `json:"messages"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	TopK           *int            `json:"top_k,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	Seed           *int            `json:"seed,omitempty"`

	FrequencyPenalty  *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty   *float64           `json:"presence_penalty,omitempty"`
	RepetitionPenalty *float64           `json:"repetition_penalty,omitempty"`
	MinP              *float64           `json:"min_p,omitempty"`
	TopA              *float64           `json:"top_a,omitempty"`
	LogitBias         map[string]float64 `json:"logit_bias,omitempty"`
	LogProbs          *bool              `json:"logprobs,omitempty"`
	TopLogProbs       *int               `json:"top_logprobs,omitempty"`
	ParallelToolCalls *bool              `json:"parallel_tool_calls,omitempty"`

	Stream         bool            `json:"stream"`
	StreamOptions  *StreamOptions  `json:"stream_options,omitempty"`
	Tools          []Tool          `json:"tools,omitempty"`
	ToolChoice     any             `json:"tool_choice,omitempty"` // "auto", "none", "required", or {"type": "function", "function": {"name": "..."}}
	Reasoning      *Reasoning      `json:"reasoning,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// StreamOptions asks for a final usage chunk.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Reasoning configures thinking for models that support it.
type Reasoning struct {
	Effort    string `json:"effort,omitempty"` // "low", "medium", "high"
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// ResponseFormat requests JSON output.
type ResponseFormat struct {
	Type       string      `json:"type"` // "json_object" or "json_schema"
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is a named schema for "json_schema" response formats.
type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// Message represents a message in the conversation.
type Message struct {
	Role             string            `json:"role"`              // "system", "user", "assistant", "tool"
	Content          any               `json:"content,omitempty"` // string or []ContentPart
	ToolCalls        []ToolCall        `json:"tool_calls,omitempty"`
	ToolCallID       *string           `json:"tool_call_id,omitempty"` // For role:"tool" messages
	Reasoning        *string           `json:"reasoning,omitempty"`
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`
	Annotations      []Annotation      `json:"annotations,omitempty"` // Web search citations for :online models
}

// ToolCall represents a function call in assistant messages.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"` // Streaming only - index of this tool call in the array
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall represents the function details of a tool call.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"` // JSON string
}

// Annotation represents a citation or reference in the response.
// Used by OpenRouter :online models to provide web search results.
type Annotation struct {
	Type        string       `json:"type"` // "url_citation"
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

// URLCitation represents a web search result citation.
type URLCitation struct {
	URL        string  `json:"url"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Title      *string `json:"title,omitempty"`
	Content    *string `json:"content,omitempty"`
}

// ReasoningDetail represents a reasoning/thinking detail in the response.
type ReasoningDetail struct {
	Type      string  `json:"type"` // "reasoning.text", "reasoning.summary", "reasoning.encrypted"
	Text      *string `json:"text,omitempty"`
	Summary   *string `json:"summary,omitempty"`
	Data      *string `json:"data,omitempty"`
	Signature *string `json:"signature,omitempty"`
}

// Tool represents a function tool definition.
type Tool struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition represents a function tool definition.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Usage represents token usage in the response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// buildChatCompletionRequest constructs a streaming OpenRouter API request from a GenerateRequest.
func buildChatCompletionRequest(req *llmprovider.GenerateRequest) (*ChatCompletionRequest, error) {
	params := req.Params
	if params == nil {
		params = &llmprovider.RequestParams{}
	}

	messages, err := convertToOpenRouterMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if params.System != nil && *params.System != "" {
		messages = append([]Message{{Role: "system", Content: *params.System}}, messages...)
	}

	openrouterReq := &ChatCompletionRequest{
		Model:         req.Model,
		Models:        params.FallbackModels,
		Messages:      messages,
		MaxTokens:     params.MaxTokens,
		Temperature:   params.Temperature,
		TopP:          params.TopP,
		TopK:          params.TopK,
		Stop:          params.Stop,
		Seed:          params.Seed,
		Stream:        true,
		StreamOptions: &StreamOptions{IncludeUsage: true},

		FrequencyPenalty:  params.FrequencyPenalty,
		PresencePenalty:   params.PresencePenalty,
		RepetitionPenalty: params.RepetitionPenalty,
		MinP:              params.MinP,
		TopA:              params.TopA,
		LogitBias:         params.LogitBias,
		LogProbs:          params.LogProbs,
		TopLogProbs:       params.TopLogProbs,
		ParallelToolCalls: params.ParallelToolCalls,
	}

	if params.ThinkingEnabled != nil && *params.ThinkingEnabled {
		switch {
		case params.ThinkingBudget != nil:
			openrouterReq.Reasoning = &Reasoning{MaxTokens: *params.ThinkingBudget}
		case params.ThinkingLevel != nil:
			openrouterReq.Reasoning = &Reasoning{Effort: *params.ThinkingLevel}
		default:
			openrouterReq.Reasoning = &Reasoning{Effort: "medium"}
		}
	}

	if rf := params.ResponseFormat; rf != nil && rf.Type != "" && rf.Type != "text" {
		openrouterReq.ResponseFormat = &ResponseFormat{Type: rf.Type}
		if rf.Type == "json_schema" {
			name := rf.Name
			if name == "" {
				name = "response"
			}
			openrouterReq.ResponseFormat.JSONSchema = &JSONSchema{Name: name, Schema: rf.JSONSchema}
		}
	}

	if len(params.Tools) > 0 {
		tools, err := convertToOpenRouterTools(params.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
		openrouterReq.Tools = tools
	}

	if params.ToolChoice != nil {
		toolChoice, err := convertToolChoice(params.ToolChoice)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool choice: %w", err)
		}
		openrouterReq.ToolChoice = toolChoice
	}

	return openrouterReq, nil
}

// convertToolChoice converts library tool choice to OpenRouter format.
func convertToolChoice(tc *llmprovider.ToolChoice) (any, error) {
	if tc == nil {
		return "auto", nil
	}

	switch tc.Mode {
	case llmprovider.ToolChoiceModeRequired:
		return "required", nil
	case llmprovider.ToolChoiceModeNone:
		return "none", nil
	case llmprovider.ToolChoiceModeSpecific:
		if tc.ToolName == nil {
			return nil, fmt.Errorf("specific tool choice requires tool_name")
		}
		return map[string]any{
			"type": "function",
			"function": map[string]any{
				"name": *tc.ToolName,
			},
		}, nil
	default:
		return "auto", nil
	}
}
