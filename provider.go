package llmprovider

import (
	"context"
)

// Provider defines the interface that all LLM providers must implement.
// This abstraction allows supporting multiple providers (Anthropic, OpenRouter, Lorem, etc.)
// while maintaining a consistent interface.
//
// A provider serves exactly one generation step per call. Multi-step turns
// (tool roundtrips, continuations) are sequenced by the streamtext package.
type Provider interface {
	// StreamResponse starts one generation step (non-blocking).
	// Returns a channel that emits model-level parts as they arrive:
	// TextDelta, ReasoningDelta, ReasoningSignature, RedactedReasoning,
	// SourcePart, ToolCallStreamingStart, ToolCallDelta and ToolCall.
	// The last part is a Finish (finish reason and usage) or an ErrorPart.
	// The channel is closed after the last part.
	//
	// Usage:
	//   parts, err := provider.StreamResponse(ctx, req)
	//   if err != nil { return err }
	//   for part := range parts {
	//     switch p := part.(type) {
	//     case llmprovider.TextDelta: ...
	//     case llmprovider.Finish: ...
	//     case llmprovider.ErrorPart: ...
	//     }
	//   }
	StreamResponse(ctx context.Context, req *GenerateRequest) (<-chan Part, error)

	// Name returns the provider identifier (e.g., "anthropic", "lorem")
	Name() ProviderID

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool
}

// Send delivers p on ch unless ctx is done first.
// Provider goroutines use it so an abandoned consumer never blocks them.
func Send(ctx context.Context, ch chan<- Part, p Part) bool {
	select {
	case ch <- p:
		return true
	case <-ctx.Done():
		return false
	}
}
