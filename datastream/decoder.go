package datastream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

const maxFrameInError = 64

// Decoder reads parts from a data stream.
//
// Frames may be split arbitrarily across reads of the underlying reader.
// Empty lines are skipped and a final frame without a trailing newline is
// still decoded. The first malformed frame fails the decoder: every later
// call to Next returns the same *llmprovider.DecodeError.
type Decoder struct {
	reader *bufio.Reader
	line   int
	err    error
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		reader: bufio.NewReaderSize(r, 64*1024),
	}
}

// Next returns the next part. It returns io.EOF after the last frame.
func (d *Decoder) Next() (llmprovider.Part, error) {
	if d.err != nil {
		return nil, d.err
	}

	for {
		line, err := d.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				d.err = io.EOF
			} else {
				d.err = fmt.Errorf("datastream: read: %w", err)
			}
			return nil, d.err
		}
		d.line++

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		part, decodeErr := d.decodeFrame(line)
		if decodeErr != nil {
			d.err = decodeErr
			return nil, d.err
		}
		return part, nil
	}
}

// All iterates over the remaining parts. Iteration stops after the first
// error, which is yielded with a nil part. A clean end yields no error.
func (d *Decoder) All() iter.Seq2[llmprovider.Part, error] {
	return func(yield func(llmprovider.Part, error) bool) {
		for {
			part, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(part, nil) {
				return
			}
		}
	}
}

// Line returns the number of lines consumed so far.
func (d *Decoder) Line() int {
	return d.line
}

func (d *Decoder) fail(line, code string, err error) error {
	if len(line) > maxFrameInError {
		line = line[:maxFrameInError] + "..."
	}
	return &llmprovider.DecodeError{Line: d.line, Code: code, Frame: line, Err: err}
}

func (d *Decoder) decodeFrame(line string) (llmprovider.Part, error) {
	code, payload, ok := strings.Cut(line, ":")
	if !ok {
		return nil, d.fail(line, "", errors.New("missing ':' separator"))
	}
	if len(code) != 1 {
		return nil, d.fail(line, code, fmt.Errorf("unknown type code %q", code))
	}

	part, err := decodePayload(code[0], []byte(payload))
	if err != nil {
		return nil, d.fail(line, code, err)
	}
	return part, nil
}

// unmarshalStrict decodes payload into v, rejecting trailing data.
func unmarshalStrict(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON payload: trailing data")
	}
	return nil
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%q must be a non-empty string", name)
	}
	return nil
}

func decodePayload(code byte, payload []byte) (llmprovider.Part, error) {
	switch code {
	case CodeText, CodeReasoning, CodeError:
		var text string
		if err := unmarshalStrict(payload, &text); err != nil {
			return nil, fmt.Errorf("expected a string: %w", err)
		}
		switch code {
		case CodeText:
			return llmprovider.TextDelta{Text: text}, nil
		case CodeReasoning:
			return llmprovider.ReasoningDelta{Text: text}, nil
		default:
			return llmprovider.ErrorPart{Err: &llmprovider.RemoteError{Message: text}}, nil
		}

	case CodeReasoningSignature:
		var v wireSignature
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := requireField("signature", v.Signature); err != nil {
			return nil, err
		}
		return llmprovider.ReasoningSignature{Signature: v.Signature}, nil

	case CodeRedactedReasoning:
		var v wireRedacted
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := requireField("data", v.Data); err != nil {
			return nil, err
		}
		return llmprovider.RedactedReasoning{Data: v.Data}, nil

	case CodeSource:
		var v llmprovider.Source
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := requireField("id", v.ID); err != nil {
			return nil, err
		}
		if v.SourceType == "" {
			v.SourceType = "url"
		}
		return llmprovider.SourcePart{Source: v}, nil

	case CodeToolCallStart:
		var v wireToolCallStart
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := errors.Join(requireField("toolCallId", v.ToolCallID), requireField("toolName", v.ToolName)); err != nil {
			return nil, err
		}
		return llmprovider.ToolCallStreamingStart{ToolCallID: v.ToolCallID, ToolName: v.ToolName}, nil

	case CodeToolCallDelta:
		var v wireToolCallDelta
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := requireField("toolCallId", v.ToolCallID); err != nil {
			return nil, err
		}
		return llmprovider.ToolCallDelta{ToolCallID: v.ToolCallID, ArgsTextDelta: v.ArgsTextDelta}, nil

	case CodeToolCall:
		var v wireToolCall
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := errors.Join(requireField("toolCallId", v.ToolCallID), requireField("toolName", v.ToolName)); err != nil {
			return nil, err
		}
		return llmprovider.ToolCall{ToolCallID: v.ToolCallID, ToolName: v.ToolName, Args: v.Args}, nil

	case CodeToolResult:
		var v struct {
			ToolCallID string          `json:"toolCallId"`
			Result     json.RawMessage `json:"result"`
		}
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := requireField("toolCallId", v.ToolCallID); err != nil {
			return nil, err
		}
		if v.Result == nil {
			return nil, errors.New(`"result" is required`)
		}
		var result any
		if err := json.Unmarshal(v.Result, &result); err != nil {
			return nil, fmt.Errorf("invalid result: %w", err)
		}
		return llmprovider.ToolResult{ToolCallID: v.ToolCallID, Result: result}, nil

	case CodeAnnotations, CodeData:
		var values []json.RawMessage
		if err := unmarshalStrict(payload, &values); err != nil {
			return nil, fmt.Errorf("expected an array: %w", err)
		}
		if values == nil {
			return nil, errors.New("expected an array, got null")
		}
		if code == CodeAnnotations {
			return llmprovider.MessageAnnotations{Annotations: values}, nil
		}
		return llmprovider.Data{Values: values}, nil

	case CodeStepStart:
		var v wireStepStart
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		return llmprovider.StepStart{MessageID: v.MessageID}, nil

	case CodeStepFinish:
		var v wireStepFinish
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := requireField("finishReason", v.FinishReason); err != nil {
			return nil, err
		}
		return llmprovider.StepFinish{
			FinishReason: llmprovider.FinishReason(v.FinishReason),
			Usage:        v.Usage.toUsage(),
			IsContinued:  v.IsContinued,
		}, nil

	case CodeFinish:
		var v wireFinish
		if err := unmarshalStrict(payload, &v); err != nil {
			return nil, err
		}
		if err := requireField("finishReason", v.FinishReason); err != nil {
			return nil, err
		}
		return llmprovider.Finish{
			FinishReason: llmprovider.FinishReason(v.FinishReason),
			Usage:        v.Usage.toUsage(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown type code %q", string(code))
	}
}
