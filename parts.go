package llmprovider

import "encoding/json"

// Part is one event of a generation stream.
//
// Part is a closed set: only the types in this file implement it. Consumers
// switch on the concrete type; a default branch should treat an unknown part
// as a protocol violation so a new variant cannot be silently ignored.
//
// Providers emit the model-level parts of a single step (text, reasoning,
// sources, tool call streaming, tool calls) terminated by a Finish or an
// ErrorPart. The orchestrator adds StepStart, StepFinish, ToolResult and the
// aggregate Finish of the whole turn.
type Part interface {
	part()

	// Type returns the stable tag of the part (e.g. "text-delta").
	Type() PartType
}

// PartType is the tag of a Part.
type PartType string

const (
	PartTypeTextDelta              PartType = "text-delta"
	PartTypeReasoningDelta         PartType = "reasoning-delta"
	PartTypeReasoningSignature     PartType = "reasoning-signature"
	PartTypeRedactedReasoning      PartType = "redacted-reasoning"
	PartTypeSource                 PartType = "source"
	PartTypeToolCallStreamingStart PartType = "tool-call-streaming-start"
	PartTypeToolCallDelta          PartType = "tool-call-delta"
	PartTypeToolCall               PartType = "tool-call"
	PartTypeToolResult             PartType = "tool-result"
	PartTypeStepStart              PartType = "step-start"
	PartTypeStepFinish             PartType = "step-finish"
	PartTypeFinish                 PartType = "finish"
	PartTypeMessageAnnotations     PartType = "message-annotations"
	PartTypeData                   PartType = "data"
	PartTypeError                  PartType = "error"
)

// TextDelta appends text to the assistant content.
type TextDelta struct {
	Text string
}

// ReasoningDelta appends text to the reasoning accumulator.
type ReasoningDelta struct {
	Text string
}

// ReasoningSignature closes the current reasoning segment with a provider signature.
type ReasoningSignature struct {
	Signature string
}

// RedactedReasoning carries opaque reasoning data the provider did not expose.
type RedactedReasoning struct {
	Data string
}

// SourcePart references an external source used by the model.
type SourcePart struct {
	Source Source
}

// ToolCallStreamingStart opens a tool call whose arguments will arrive as deltas.
type ToolCallStreamingStart struct {
	ToolCallID string
	ToolName   string
}

// ToolCallDelta carries a fragment of a tool call's JSON arguments.
// ToolName may be empty; it is not part of the wire frame.
type ToolCallDelta struct {
	ToolCallID    string
	ToolName      string
	ArgsTextDelta string
}

// ToolCall is a complete tool call. Args are authoritative and supersede any
// text accumulated from deltas.
type ToolCall struct {
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
}

// ToolResult carries the output of an executed tool call.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
	Result     any
}

// StepStart marks the beginning of a generation step.
// MessageID is optional and, when set, becomes the assembled message id.
type StepStart struct {
	MessageID string

	// Request is the request sent to the provider for this step (not on the wire).
	Request *GenerateRequest

	// Warnings are validation warnings for Request (not on the wire).
	Warnings []ValidationWarning
}

// StepFinish marks the end of a generation step.
type StepFinish struct {
	FinishReason FinishReason
	Usage        Usage
	IsContinued  bool
}

// Finish ends a provider step or, on the orchestrated stream, the whole turn.
type Finish struct {
	FinishReason FinishReason
	Usage        Usage

	// ProviderMetadata carries provider-specific response data (not on the wire).
	ProviderMetadata map[string]any
}

// MessageAnnotations appends annotations to the assembled message.
type MessageAnnotations struct {
	Annotations []json.RawMessage
}

// Data carries out-of-band stream data for the caller.
type Data struct {
	Values []json.RawMessage
}

// ErrorPart reports an error on the stream.
//
// When ToolCallID is set the error is local to that tool call and the stream
// continues. Otherwise it is terminal and is the last part of the stream.
type ErrorPart struct {
	Err        error
	ToolCallID string
}

func (TextDelta) part()              {}
func (ReasoningDelta) part()         {}
func (ReasoningSignature) part()     {}
func (RedactedReasoning) part()      {}
func (SourcePart) part()             {}
func (ToolCallStreamingStart) part() {}
func (ToolCallDelta) part()          {}
func (ToolCall) part()               {}
func (ToolResult) part()             {}
func (StepStart) part()              {}
func (StepFinish) part()             {}
func (Finish) part()                 {}
func (MessageAnnotations) part()     {}
func (Data) part()                   {}
func (ErrorPart) part()              {}

func (TextDelta) Type() PartType              { return PartTypeTextDelta }
func (ReasoningDelta) Type() PartType         { return PartTypeReasoningDelta }
func (ReasoningSignature) Type() PartType     { return PartTypeReasoningSignature }
func (RedactedReasoning) Type() PartType      { return PartTypeRedactedReasoning }
func (SourcePart) Type() PartType             { return PartTypeSource }
func (ToolCallStreamingStart) Type() PartType { return PartTypeToolCallStreamingStart }
func (ToolCallDelta) Type() PartType          { return PartTypeToolCallDelta }
func (ToolCall) Type() PartType               { return PartTypeToolCall }
func (ToolResult) Type() PartType             { return PartTypeToolResult }
func (StepStart) Type() PartType              { return PartTypeStepStart }
func (StepFinish) Type() PartType             { return PartTypeStepFinish }
func (Finish) Type() PartType                 { return PartTypeFinish }
func (MessageAnnotations) Type() PartType     { return PartTypeMessageAnnotations }
func (Data) Type() PartType                   { return PartTypeData }
func (ErrorPart) Type() PartType              { return PartTypeError }

var (
	_ Part = TextDelta{}
	_ Part = ReasoningDelta{}
	_ Part = ReasoningSignature{}
	_ Part = RedactedReasoning{}
	_ Part = SourcePart{}
	_ Part = ToolCallStreamingStart{}
	_ Part = ToolCallDelta{}
	_ Part = ToolCall{}
	_ Part = ToolResult{}
	_ Part = StepStart{}
	_ Part = StepFinish{}
	_ Part = Finish{}
	_ Part = MessageAnnotations{}
	_ Part = Data{}
	_ Part = ErrorPart{}
)

// IsTerminal reports whether p ends the stream it appears on.
func IsTerminal(p Part) bool {
	switch p := p.(type) {
	case Finish:
		return true
	case ErrorPart:
		return p.ToolCallID == ""
	default:
		return false
	}
}
