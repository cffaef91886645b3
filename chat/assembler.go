package chat

import (
	"encoding/json"
	"log/slog"
	"reflect"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// AssemblerOptions configures an Assembler.
type AssemblerOptions struct {
	// GenerateID creates the message id when the stream does not provide one.
	// Defaults to llmprovider.NewIDGenerator("msg").
	GenerateID llmprovider.IDGenerator

	// Clock stamps CreatedAt of a new message. Defaults to llmprovider.RealClock().
	Clock llmprovider.Clock

	// LastMessage is an existing assistant message to continue. Its id,
	// creation time and tool invocations are kept, and new tool calls are
	// attributed to the steps after its last one.
	LastMessage *Message

	Logger *slog.Logger
}

// FinishInfo is the outcome of an assembled turn.
type FinishInfo struct {
	Message      *Message
	FinishReason llmprovider.FinishReason
	Usage        llmprovider.Usage
}

// Assembler merges the steps of one assistant turn into a single message.
//
// Apply returns a snapshot after every observable change to the message.
// Snapshots are independent copies with strictly increasing RevisionID,
// starting at 1, or after the continued message's revision. An Assembler is not safe for concurrent use.
type Assembler struct {
	msg        *Message
	continuing bool
	generateID llmprovider.IDGenerator
	logger     *slog.Logger

	step    int
	reducer *StepReducer

	revision    int64
	snapshotted bool
	data        []json.RawMessage

	stepUsage         llmprovider.Usage
	stepReportedUsage bool
	lastStepReason    llmprovider.FinishReason

	finished     bool
	finishReason llmprovider.FinishReason
	finishUsage  llmprovider.Usage
}

// NewAssembler creates an assembler for one assistant turn.
func NewAssembler(opts AssemblerOptions) *Assembler {
	if opts.GenerateID == nil {
		opts.GenerateID = llmprovider.NewIDGenerator("msg")
	}
	if opts.Clock == nil {
		opts.Clock = llmprovider.RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	a := &Assembler{
		generateID: opts.GenerateID,
		logger:     opts.Logger,
	}

	if opts.LastMessage != nil {
		a.msg = opts.LastMessage.Clone()
		a.revision = a.msg.RevisionID
		a.continuing = true
		a.step = a.msg.MaxStep() + 1
	} else {
		a.msg = &Message{
			Role:      llmprovider.RoleAssistant,
			CreatedAt: opts.Clock.Now(),
		}
	}
	a.reducer = NewStepReducer(a.step)
	return a
}

// ReplaceLastMessage reports whether snapshots replace the caller's last
// message rather than being appended after it.
func (a *Assembler) ReplaceLastMessage() bool {
	return a.continuing
}

// Data returns the data values received so far.
func (a *Assembler) Data() []json.RawMessage {
	return a.data
}

// Step returns the index that the next completed tool call is attributed to.
func (a *Assembler) Step() int {
	return a.step
}

// Finished reports whether the finish part has been applied.
func (a *Assembler) Finished() bool {
	return a.finished
}

// Apply folds p into the message. It returns a snapshot when the message
// changed and nil otherwise.
//
// A *llmprovider.ToolArgumentsError is returned together with a snapshot: the
// affected invocation records the error and the turn can continue. Any other
// error is fatal to the turn.
func (a *Assembler) Apply(p llmprovider.Part) (*Message, error) {
	if a.finished {
		switch p.(type) {
		case llmprovider.MessageAnnotations, llmprovider.Data:
		case llmprovider.Finish:
			return nil, &llmprovider.ProtocolError{Reason: "duplicate finish"}
		default:
			return nil, &llmprovider.ProtocolError{Reason: "part " + string(p.Type()) + " after finish"}
		}
	}

	switch p := p.(type) {
	case llmprovider.TextDelta:
		change, err := a.reducer.Reduce(p)
		if err != nil {
			return nil, err
		}
		if change.Text == "" {
			return nil, nil
		}
		a.msg.Content += change.Text
		return a.snapshot(), nil

	case llmprovider.ReasoningDelta:
		change, err := a.reducer.Reduce(p)
		if err != nil {
			return nil, err
		}
		if change.Reasoning == "" {
			return nil, nil
		}
		a.msg.Reasoning += change.Reasoning
		a.appendReasoningText(change.Reasoning)
		return a.snapshot(), nil

	case llmprovider.ReasoningSignature:
		a.signReasoning(p.Signature)
		return a.snapshot(), nil

	case llmprovider.RedactedReasoning:
		a.msg.ReasoningDetails = append(a.msg.ReasoningDetails, ReasoningDetail{Type: ReasoningTypeRedacted, Data: p.Data})
		return a.snapshot(), nil

	case llmprovider.SourcePart:
		a.msg.Sources = append(a.msg.Sources, p.Source)
		return a.snapshot(), nil

	case llmprovider.ToolCallStreamingStart:
		if _, exists := a.msg.ToolInvocation(p.ToolCallID); exists {
			return nil, &llmprovider.ProtocolError{Reason: "tool call start for existing tool call", ToolCallID: p.ToolCallID}
		}
		change, err := a.reducer.Reduce(p)
		if err != nil {
			return nil, err
		}
		return a.applyToolUpdate(change.Tool)

	case llmprovider.ToolCallDelta, llmprovider.ToolCall:
		id := toolCallID(p)
		if inv, exists := a.msg.ToolInvocation(id); exists && inv.State != ToolStatePartialCall {
			return nil, &llmprovider.ProtocolError{Reason: string(p.Type()) + " for completed tool call", ToolCallID: id}
		}
		change, err := a.reducer.Reduce(p)
		if err != nil {
			return nil, err
		}
		return a.applyToolUpdate(change.Tool)

	case llmprovider.ToolResult:
		inv, exists := a.msg.ToolInvocation(p.ToolCallID)
		if !exists {
			return nil, &llmprovider.ProtocolError{Reason: "tool result for unknown tool call", ToolCallID: p.ToolCallID}
		}
		if inv.State != ToolStateCall {
			return nil, &llmprovider.ProtocolError{Reason: "tool result in state " + string(inv.State), ToolCallID: p.ToolCallID}
		}
		inv.State = ToolStateResult
		inv.Result = p.Result
		return a.snapshot(), nil

	case llmprovider.StepStart:
		if p.MessageID != "" && !a.continuing && !a.snapshotted && a.msg.ID == "" {
			a.msg.ID = p.MessageID
		}
		return nil, nil

	case llmprovider.StepFinish:
		if _, err := a.reducer.Reduce(p); err != nil {
			return nil, err
		}
		if !p.Usage.IsZero() {
			a.stepReportedUsage = true
		}
		a.stepUsage = a.stepUsage.Add(p.Usage)
		a.lastStepReason = p.FinishReason
		if !p.IsContinued {
			a.step++
		}
		a.logger.Debug("step finished",
			"message_id", a.msg.ID,
			"finish_reason", p.FinishReason,
			"is_continued", p.IsContinued,
			"next_step", a.step)
		a.reducer = NewStepReducer(a.step)
		return nil, nil

	case llmprovider.Finish:
		a.finished = true
		a.finishReason = p.FinishReason
		a.finishUsage = p.Usage
		return nil, nil

	case llmprovider.MessageAnnotations:
		if len(p.Annotations) == 0 {
			return nil, nil
		}
		a.msg.Annotations = append(a.msg.Annotations, p.Annotations...)
		return a.snapshot(), nil

	case llmprovider.Data:
		a.data = append(a.data, p.Values...)
		return a.snapshot(), nil

	case llmprovider.ErrorPart:
		if p.ToolCallID == "" {
			return nil, p.Err
		}
		inv, exists := a.msg.ToolInvocation(p.ToolCallID)
		if !exists {
			return nil, &llmprovider.ProtocolError{Reason: "error for unknown tool call", ToolCallID: p.ToolCallID}
		}
		inv.Err = p.Err.Error()
		return a.snapshot(), nil

	default:
		return nil, &llmprovider.ProtocolError{Reason: "unhandled part " + string(p.Type())}
	}
}

func toolCallID(p llmprovider.Part) string {
	switch p := p.(type) {
	case llmprovider.ToolCallDelta:
		return p.ToolCallID
	case llmprovider.ToolCall:
		return p.ToolCallID
	}
	return ""
}

// applyToolUpdate creates or promotes the invocation for u.
func (a *Assembler) applyToolUpdate(u *ToolCallUpdate) (*Message, error) {
	inv, exists := a.msg.ToolInvocation(u.ToolCallID)
	if !exists {
		a.msg.ToolInvocations = append(a.msg.ToolInvocations, ToolInvocation{
			State:      ToolStatePartialCall,
			ToolCallID: u.ToolCallID,
			ToolName:   u.ToolName,
		})
		inv = &a.msg.ToolInvocations[len(a.msg.ToolInvocations)-1]
	} else if !u.Complete && reflect.DeepEqual(inv.Args, u.Args) && inv.ToolName == u.ToolName {
		return nil, nil
	}

	inv.ToolName = u.ToolName
	inv.Args = u.Args
	if u.Complete {
		step := a.step
		inv.State = ToolStateCall
		inv.Step = &step
	}

	if u.Err != nil {
		inv.Err = u.Err.Error()
		a.logger.Warn("invalid tool call arguments",
			"message_id", a.msg.ID,
			"tool_call_id", u.ToolCallID,
			"tool_name", u.ToolName,
			"error", u.Err)
		return a.snapshot(), u.Err
	}
	return a.snapshot(), nil
}

func (a *Assembler) appendReasoningText(text string) {
	details := a.msg.ReasoningDetails
	if n := len(details); n > 0 && details[n-1].Type == ReasoningTypeText && details[n-1].Signature == "" {
		details[n-1].Text += text
		return
	}
	a.msg.ReasoningDetails = append(details, ReasoningDetail{Type: ReasoningTypeText, Text: text})
}

func (a *Assembler) signReasoning(signature string) {
	details := a.msg.ReasoningDetails
	if n := len(details); n > 0 && details[n-1].Type == ReasoningTypeText && details[n-1].Signature == "" {
		details[n-1].Signature = signature
		return
	}
	a.msg.ReasoningDetails = append(details, ReasoningDetail{Type: ReasoningTypeText, Signature: signature})
}

func (a *Assembler) ensureID() {
	if a.msg.ID == "" {
		a.msg.ID = a.generateID()
	}
}

func (a *Assembler) snapshot() *Message {
	a.ensureID()
	a.revision++
	a.snapshotted = true
	a.msg.RevisionID = a.revision
	return a.msg.Clone()
}

// Message returns a copy of the message in its current state.
func (a *Assembler) Message() *Message {
	a.ensureID()
	return a.msg.Clone()
}

// Finish returns the outcome of the turn. Usage is the sum of the step usages,
// or the finish usage when no step reported usage. The finish reason is the
// finish part's, or the last step's when no finish part arrived.
func (a *Assembler) Finish() FinishInfo {
	info := FinishInfo{
		Message:      a.Message(),
		FinishReason: a.finishReason,
		Usage:        a.stepUsage,
	}
	if !a.stepReportedUsage {
		info.Usage = a.finishUsage
	}
	if !a.finished {
		info.FinishReason = a.lastStepReason
	}
	if info.FinishReason == "" {
		info.FinishReason = llmprovider.FinishReasonUnknown
	}
	return info
}
