package llmprovider

import (
	"fmt"
	"slices"
)

// RequestParams represents all possible LLM request parameters across providers.
// All fields are optional pointers to distinguish "not set" from "set to zero value".
type RequestParams struct {
	// MaxTokens sets the maximum number of tokens to generate
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-2.0)
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP (nucleus sampling) - cumulative probability cutoff (0.0-1.0)
	TopP *float64 `json:"top_p,omitempty"`

	// TopK limits sampling to top K tokens
	TopK *int `json:"top_k,omitempty"`

	// Stop sequences - generation stops if any of these are generated
	Stop []string `json:"stop,omitempty"`

	// Seed for deterministic sampling (if supported by provider)
	Seed *int `json:"seed,omitempty"`

	// ThinkingEnabled requests reasoning output
	ThinkingEnabled *bool `json:"thinking_enabled,omitempty"`

	// ThinkingLevel sets the thinking budget: "low", "medium", "high"
	// Maps to token budgets: low=2000, medium=5000, high=12000
	ThinkingLevel *string `json:"thinking_level,omitempty"`

	// ThinkingBudget sets an explicit thinking token budget (overrides ThinkingLevel)
	ThinkingBudget *int `json:"thinking_budget,omitempty"`

	// System prompt override (can also be set per turn)
	System *string `json:"system,omitempty"`

	// Sampling controls not every provider accepts.

	// FrequencyPenalty reduces repetition of token sequences (-2.0 to 2.0)
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// PresencePenalty reduces repetition of topics (-2.0 to 2.0)
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`

	// RepetitionPenalty reduces token repetition (some providers)
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`

	// MinP - minimum probability threshold for sampling
	MinP *float64 `json:"min_p,omitempty"`

	// TopA - top-a sampling parameter
	TopA *float64 `json:"top_a,omitempty"`

	// LogitBias adjusts likelihood of specific tokens
	LogitBias map[string]float64 `json:"logit_bias,omitempty"`

	// LogProbs returns log probabilities of output tokens
	LogProbs *bool `json:"logprobs,omitempty"`

	// TopLogProbs specifies how many top logprobs to return per token
	TopLogProbs *int `json:"top_logprobs,omitempty"`

	// ResponseFormat for structured outputs (JSON mode, etc.)
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Tools available for the model to use
	Tools []Tool `json:"tools,omitempty"`

	// ToolChoice controls whether/which tools to use
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	// ParallelToolCalls allows model to use multiple tools simultaneously
	ParallelToolCalls *bool `json:"parallel_tool_calls,omitempty"`

	// FallbackModels lists models a routing provider may fall back to
	FallbackModels []string `json:"fallback_models,omitempty"`
}

// ResponseFormat specifies the format for structured outputs
type ResponseFormat struct {
	Type       string         `json:"type"`                  // "text", "json_object", "json_schema"
	Name       string         `json:"name,omitempty"`        // Schema name (json_schema)
	JSONSchema map[string]any `json:"json_schema,omitempty"` // Schema for structured output
}

// paramRange bounds one numeric parameter. A nil bound is open.
type paramRange struct {
	field    string
	value    func(*RequestParams) *float64
	min, max *float64
}

func bound(v float64) *float64 { return &v }

func intValue(p *int) *float64 {
	if p == nil {
		return nil
	}
	return bound(float64(*p))
}

var paramRanges = []paramRange{
	{"temperature", func(p *RequestParams) *float64 { return p.Temperature }, bound(0), bound(2)},
	{"top_p", func(p *RequestParams) *float64 { return p.TopP }, bound(0), bound(1)},
	{"top_k", func(p *RequestParams) *float64 { return intValue(p.TopK) }, bound(0), nil},
	{"max_tokens", func(p *RequestParams) *float64 { return intValue(p.MaxTokens) }, bound(1), nil},
	{"thinking_budget", func(p *RequestParams) *float64 { return intValue(p.ThinkingBudget) }, bound(0), nil},
	{"frequency_penalty", func(p *RequestParams) *float64 { return p.FrequencyPenalty }, bound(-2), bound(2)},
	{"presence_penalty", func(p *RequestParams) *float64 { return p.PresencePenalty }, bound(-2), bound(2)},
	{"repetition_penalty", func(p *RequestParams) *float64 { return p.RepetitionPenalty }, bound(0), bound(2)},
	{"min_p", func(p *RequestParams) *float64 { return p.MinP }, bound(0), bound(1)},
	{"top_a", func(p *RequestParams) *float64 { return p.TopA }, bound(0), bound(1)},
	{"top_logprobs", func(p *RequestParams) *float64 { return intValue(p.TopLogProbs) }, bound(0), bound(20)},
}

func (r paramRange) check(params *RequestParams) error {
	v := r.value(params)
	if v == nil {
		return nil
	}
	if (r.min != nil && *v < *r.min) || (r.max != nil && *v > *r.max) {
		reason := fmt.Sprintf("must be at least %g", *r.min)
		if r.max != nil {
			reason = fmt.Sprintf("must be between %g and %g", *r.min, *r.max)
		}
		return &ValidationError{Field: r.field, Value: *v, Reason: reason, Err: ErrInvalidRequest}
	}
	return nil
}

// ValidateRequestParams rejects parameters no provider accepts. Unlike
// validation warnings it is independent of the model.
// Failures are *ValidationError wrapping ErrInvalidRequest.
func ValidateRequestParams(params *RequestParams) error {
	if params == nil {
		return nil
	}
	for _, r := range paramRanges {
		if err := r.check(params); err != nil {
			return err
		}
	}

	invalid := func(field string, value any, reason string) error {
		return &ValidationError{Field: field, Value: value, Reason: reason, Err: ErrInvalidRequest}
	}
	if params.ThinkingLevel != nil {
		if _, ok := defaultThinkingBudgets[*params.ThinkingLevel]; !ok {
			return invalid("thinking_level", *params.ThinkingLevel, "must be 'low', 'medium', or 'high'")
		}
	}
	if slices.Contains(params.Stop, "") {
		return invalid("stop", params.Stop, "must not contain empty sequences")
	}
	if params.ToolChoice != nil {
		if err := params.ToolChoice.Validate(); err != nil {
			return invalid("tool_choice", params.ToolChoice.Mode, err.Error())
		}
	}
	for i := range params.Tools {
		if err := params.Tools[i].Validate(); err != nil {
			return invalid("tools", params.Tools[i].Function.Name, err.Error())
		}
	}
	return nil
}

// GetMaxTokens returns max_tokens, or defaultValue when unset. rp may be nil.
func (rp *RequestParams) GetMaxTokens(defaultValue int) int {
	if rp == nil || rp.MaxTokens == nil {
		return defaultValue
	}
	return *rp.MaxTokens
}

// GetThinkingBudgetTokens returns the explicit thinking budget, else the
// default budget of the thinking level, else 0. rp may be nil.
func (rp *RequestParams) GetThinkingBudgetTokens() int {
	switch {
	case rp == nil:
		return 0
	case rp.ThinkingBudget != nil:
		return *rp.ThinkingBudget
	case rp.ThinkingLevel != nil:
		return defaultThinkingBudgets[*rp.ThinkingLevel]
	}
	return 0
}
