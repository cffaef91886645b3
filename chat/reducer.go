package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	llmprovider "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/internal/partialjson"
)

// ToolCallUpdate is the state of a tool call after a reduced part.
type ToolCallUpdate struct {
	ToolCallID string
	ToolName   string

	// Args is the best-effort parse of the arguments streamed so far, or the
	// authoritative arguments once Complete.
	Args any

	// Complete is set once the tool-call part arrived.
	Complete bool

	// Err is a *llmprovider.ToolArgumentsError when the complete arguments
	// are not a JSON object.
	Err error
}

// StepChange describes what a reduced part changed in the step.
// The zero value means the part had no step-level effect.
type StepChange struct {
	Text      string
	Reasoning string
	Tool      *ToolCallUpdate
	Finished  bool
}

type pendingToolCall struct {
	name     string
	argsText strings.Builder
	args     any
	complete bool
}

// StepReducer folds the parts of one generation step: text, reasoning,
// streamed tool call arguments and the step finish. A reducer must not be
// reused for another step.
type StepReducer struct {
	index     int
	text      strings.Builder
	reasoning strings.Builder

	calls map[string]*pendingToolCall
	order []string

	finished     bool
	finishReason llmprovider.FinishReason
	usage        llmprovider.Usage
	isContinued  bool
}

// NewStepReducer creates a reducer for the step with the given index.
func NewStepReducer(index int) *StepReducer {
	return &StepReducer{
		index: index,
		calls: make(map[string]*pendingToolCall),
	}
}

// Reduce folds p into the step. Parts that are not step-level (sources,
// annotations, tool results, ...) return a zero change.
func (r *StepReducer) Reduce(p llmprovider.Part) (StepChange, error) {
	if r.finished {
		return StepChange{}, &llmprovider.ProtocolError{Reason: "part " + string(p.Type()) + " after step finish"}
	}

	switch p := p.(type) {
	case llmprovider.TextDelta:
		r.text.WriteString(p.Text)
		return StepChange{Text: p.Text}, nil

	case llmprovider.ReasoningDelta:
		r.reasoning.WriteString(p.Text)
		return StepChange{Reasoning: p.Text}, nil

	case llmprovider.ToolCallStreamingStart:
		if _, exists := r.calls[p.ToolCallID]; exists {
			return StepChange{}, &llmprovider.ProtocolError{Reason: "duplicate tool call start", ToolCallID: p.ToolCallID}
		}
		call := r.track(p.ToolCallID, p.ToolName)
		return StepChange{Tool: r.update(p.ToolCallID, call)}, nil

	case llmprovider.ToolCallDelta:
		call, exists := r.calls[p.ToolCallID]
		if !exists {
			call = r.track(p.ToolCallID, p.ToolName)
		}
		if call.complete {
			return StepChange{}, &llmprovider.ProtocolError{Reason: "tool call delta after complete call", ToolCallID: p.ToolCallID}
		}
		if call.name == "" {
			call.name = p.ToolName
		}
		call.argsText.WriteString(p.ArgsTextDelta)
		if v, state := partialjson.Parse(call.argsText.String()); state == partialjson.StateSuccessful || state == partialjson.StateRepaired {
			call.args = v
		}
		return StepChange{Tool: r.update(p.ToolCallID, call)}, nil

	case llmprovider.ToolCall:
		call, exists := r.calls[p.ToolCallID]
		if !exists {
			call = r.track(p.ToolCallID, p.ToolName)
		}
		if call.complete {
			return StepChange{}, &llmprovider.ProtocolError{Reason: "duplicate tool call", ToolCallID: p.ToolCallID}
		}
		if call.name == "" {
			call.name = p.ToolName
		}
		call.complete = true

		args, err := parseArgs(p.Args)
		call.args = args
		update := r.update(p.ToolCallID, call)
		if err != nil {
			update.Err = &llmprovider.ToolArgumentsError{
				ToolCallID: p.ToolCallID,
				ToolName:   call.name,
				Args:       string(p.Args),
				Err:        err,
			}
		}
		return StepChange{Tool: update}, nil

	case llmprovider.StepFinish:
		r.finished = true
		r.finishReason = p.FinishReason
		r.usage = p.Usage
		r.isContinued = p.IsContinued
		return StepChange{Finished: true}, nil

	default:
		return StepChange{}, nil
	}
}

func (r *StepReducer) track(id, name string) *pendingToolCall {
	call := &pendingToolCall{name: name}
	r.calls[id] = call
	r.order = append(r.order, id)
	return call
}

func (r *StepReducer) update(id string, call *pendingToolCall) *ToolCallUpdate {
	return &ToolCallUpdate{
		ToolCallID: id,
		ToolName:   call.name,
		Args:       call.args,
		Complete:   call.complete,
	}
}

var errArgsNotObject = errors.New("arguments must be a JSON object")

// parseArgs decodes complete tool call arguments. Empty or null arguments are
// an empty object. On failure the returned value is the raw argument text.
func parseArgs(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(raw), err
	}
	switch v := v.(type) {
	case map[string]any:
		return v, nil
	case string:
		// Producers encode unparsable arguments as a JSON string of the raw text.
		return v, errArgsNotObject
	default:
		return string(raw), errArgsNotObject
	}
}

// Index returns the step index.
func (r *StepReducer) Index() int {
	return r.index
}

// Text returns the step's text.
func (r *StepReducer) Text() string {
	return r.text.String()
}

// Reasoning returns the step's reasoning text.
func (r *StepReducer) Reasoning() string {
	return r.reasoning.String()
}

// ToolCalls returns the step's tool calls in order of first appearance.
func (r *StepReducer) ToolCalls() []ToolCallUpdate {
	calls := make([]ToolCallUpdate, 0, len(r.order))
	for _, id := range r.order {
		calls = append(calls, *r.update(id, r.calls[id]))
	}
	return calls
}

// Finished reports whether the step-finish part was reduced.
func (r *StepReducer) Finished() bool {
	return r.finished
}

// FinishReason returns the step's finish reason.
func (r *StepReducer) FinishReason() llmprovider.FinishReason {
	return r.finishReason
}

// Usage returns the step's usage.
func (r *StepReducer) Usage() llmprovider.Usage {
	return r.usage
}

// IsContinued reports whether the next step continues this step's text.
func (r *StepReducer) IsContinued() bool {
	return r.isContinued
}

// IsEmpty reports whether no step-level part has been reduced.
func (r *StepReducer) IsEmpty() bool {
	return r.text.Len() == 0 && r.reasoning.Len() == 0 && len(r.order) == 0 && !r.finished
}
