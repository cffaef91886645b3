package llmprovider

// FinishReason indicates why a step or a turn stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"           // Natural end or stop sequence
	FinishReasonLength        FinishReason = "length"         // Output token limit reached
	FinishReasonContentFilter FinishReason = "content-filter" // Provider filtered the output
	FinishReasonToolCalls     FinishReason = "tool-calls"     // Model requested tool calls
	FinishReasonError         FinishReason = "error"          // Generation failed
	FinishReasonOther         FinishReason = "other"          // Provider-specific reason
	FinishReasonUnknown       FinishReason = "unknown"        // Provider did not report a reason

	// FinishReasonMaxSteps is reported on the turn-level finish when the step
	// ceiling ended the turn while another step was still warranted.
	FinishReasonMaxSteps FinishReason = "max-steps"
)

// String returns the string representation of the finish reason
func (r FinishReason) String() string {
	return string(r)
}

// IsValid returns true if r is a known finish reason
func (r FinishReason) IsValid() bool {
	switch r {
	case FinishReasonStop, FinishReasonLength, FinishReasonContentFilter,
		FinishReasonToolCalls, FinishReasonError, FinishReasonOther,
		FinishReasonUnknown, FinishReasonMaxSteps:
		return true
	default:
		return false
	}
}

// MapStopReason converts a provider stop reason to a FinishReason.
// Covers Anthropic ("end_turn", "max_tokens", "tool_use") and
// OpenAI-compatible ("stop", "length", "tool_calls") vocabularies.
func MapStopReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop", "stop_sequence", "pause_turn":
		return FinishReasonStop
	case "max_tokens", "length", "model_context_window_exceeded":
		return FinishReasonLength
	case "tool_use", "tool_calls", "function_call":
		return FinishReasonToolCalls
	case "content_filter", "refusal", "safety":
		return FinishReasonContentFilter
	case "error":
		return FinishReasonError
	case "":
		return FinishReasonUnknown
	default:
		return FinishReasonOther
	}
}

// Usage reports token counts for a step or a whole turn.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// NewUsage builds a Usage with TotalTokens computed.
func NewUsage(promptTokens, completionTokens int) Usage {
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// IsZero returns true if no tokens were reported
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// Source is an external reference the model used (for example a web page).
type Source struct {
	// SourceType is "url" for web sources
	SourceType string `json:"sourceType"`

	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`

	// ProviderMetadata stores provider-specific source data
	ProviderMetadata map[string]any `json:"providerMetadata,omitempty"`
}
