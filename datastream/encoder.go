package datastream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// DefaultErrorMessage replaces error details on the wire unless
// Options.ErrorMessage is set.
const DefaultErrorMessage = "An error occurred."

// Options controls which optional parts an Encoder writes.
type Options struct {
	// SendUsage includes token usage on step-finish and finish frames.
	SendUsage bool

	// SendReasoning writes reasoning, signature and redacted reasoning frames.
	SendReasoning bool

	// SendSources writes source frames.
	SendSources bool

	// ErrorMessage maps a terminal error to the text of its error frame.
	// Nil masks every error as DefaultErrorMessage.
	ErrorMessage func(err error) string
}

// DefaultOptions sends usage and nothing else optional.
func DefaultOptions() Options {
	return Options{SendUsage: true}
}

// Encoder writes parts as data stream frames. Each part is written with a
// single Write call.
type Encoder struct {
	w    io.Writer
	opts Options
	buf  bytes.Buffer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer, opts Options) *Encoder {
	return &Encoder{w: w, opts: opts}
}

// Encode writes p. Parts the options exclude and empty deltas are skipped.
//
// Tool-local errors (an ErrorPart with a ToolCallID) are filtered out on
// purpose: the error frame ends the stream for every decoder, so writing one
// would turn a failure of a single call into a fatal one. On the receiving
// side the invocation stays in the call state without a result.
//
// Tool call arguments that are not valid JSON are written as a JSON string of
// the raw argument text so the frame stays decodable.
func (e *Encoder) Encode(p llmprovider.Part) error {
	code, payload, ok := e.frame(p)
	if !ok {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("datastream: encode %s: %w", p.Type(), err)
	}

	e.buf.Reset()
	e.buf.WriteByte(code)
	e.buf.WriteByte(':')
	e.buf.Write(data)
	e.buf.WriteByte('\n')

	if _, err := e.w.Write(e.buf.Bytes()); err != nil {
		return fmt.Errorf("datastream: write: %w", err)
	}
	return nil
}

// EncodeError writes a terminal error frame for err.
func (e *Encoder) EncodeError(err error) error {
	return e.Encode(llmprovider.ErrorPart{Err: err})
}

func (e *Encoder) errorMessage(err error) string {
	if e.opts.ErrorMessage != nil {
		return e.opts.ErrorMessage(err)
	}
	return DefaultErrorMessage
}

func (e *Encoder) usage(u llmprovider.Usage) *wireUsage {
	if !e.opts.SendUsage {
		return nil
	}
	return fromUsage(u)
}

func argsPayload(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 {
		return json.RawMessage("{}")
	}
	if json.Valid(trimmed) {
		return trimmed
	}
	quoted, _ := json.Marshal(string(args))
	return quoted
}

func (e *Encoder) frame(p llmprovider.Part) (byte, any, bool) {
	switch p := p.(type) {
	case llmprovider.TextDelta:
		return CodeText, p.Text, p.Text != ""
	case llmprovider.ReasoningDelta:
		return CodeReasoning, p.Text, e.opts.SendReasoning && p.Text != ""
	case llmprovider.ReasoningSignature:
		return CodeReasoningSignature, wireSignature{Signature: p.Signature}, e.opts.SendReasoning
	case llmprovider.RedactedReasoning:
		return CodeRedactedReasoning, wireRedacted{Data: p.Data}, e.opts.SendReasoning
	case llmprovider.SourcePart:
		return CodeSource, p.Source, e.opts.SendSources
	case llmprovider.ToolCallStreamingStart:
		return CodeToolCallStart, wireToolCallStart{ToolCallID: p.ToolCallID, ToolName: p.ToolName}, true
	case llmprovider.ToolCallDelta:
		return CodeToolCallDelta, wireToolCallDelta{ToolCallID: p.ToolCallID, ArgsTextDelta: p.ArgsTextDelta}, p.ArgsTextDelta != ""
	case llmprovider.ToolCall:
		return CodeToolCall, wireToolCall{ToolCallID: p.ToolCallID, ToolName: p.ToolName, Args: argsPayload(p.Args)}, true
	case llmprovider.ToolResult:
		return CodeToolResult, wireToolResult{ToolCallID: p.ToolCallID, Result: p.Result}, true
	case llmprovider.MessageAnnotations:
		return CodeAnnotations, nonNil(p.Annotations), true
	case llmprovider.Data:
		return CodeData, nonNil(p.Values), true
	case llmprovider.StepStart:
		return CodeStepStart, wireStepStart{MessageID: p.MessageID}, true
	case llmprovider.StepFinish:
		return CodeStepFinish, wireStepFinish{
			FinishReason: string(p.FinishReason),
			Usage:        e.usage(p.Usage),
			IsContinued:  p.IsContinued,
		}, true
	case llmprovider.Finish:
		return CodeFinish, wireFinish{
			FinishReason: string(p.FinishReason),
			Usage:        e.usage(p.Usage),
		}, true
	case llmprovider.ErrorPart:
		if p.ToolCallID != "" {
			return 0, nil, false
		}
		return CodeError, e.errorMessage(p.Err), true
	default:
		return 0, nil, false
	}
}

func nonNil(values []json.RawMessage) []json.RawMessage {
	if values == nil {
		return []json.RawMessage{}
	}
	return values
}
