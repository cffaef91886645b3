// Package chat assembles data stream parts into conversation messages.
//
// A StepReducer folds the parts of one generation step. An Assembler merges
// the steps of one assistant turn into a single Message and produces a
// snapshot after every observable change. ProcessResponse drives both from a
// data stream, and Session applies the snapshots to a stored conversation.
package chat

import (
	"encoding/json"
	"slices"
	"time"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// ToolInvocationState is the lifecycle state of a tool invocation.
// It only moves forward: partial-call, call, result.
type ToolInvocationState string

const (
	// ToolStatePartialCall means arguments are still streaming.
	ToolStatePartialCall ToolInvocationState = "partial-call"
	// ToolStateCall means the call is complete and awaits a result.
	ToolStateCall ToolInvocationState = "call"
	// ToolStateResult means the call has a result. The invocation is final.
	ToolStateResult ToolInvocationState = "result"
)

func (s ToolInvocationState) rank() int {
	switch s {
	case ToolStatePartialCall:
		return 0
	case ToolStateCall:
		return 1
	case ToolStateResult:
		return 2
	default:
		return -1
	}
}

// ToolInvocation is one tool call of an assistant message.
type ToolInvocation struct {
	State      ToolInvocationState `json:"state"`
	ToolCallID string              `json:"toolCallId"`
	ToolName   string              `json:"toolName"`
	Args       any                 `json:"args,omitempty"`
	Result     any                 `json:"result,omitempty"`

	// Step is the index of the step that completed the call.
	// Nil while the call is partial.
	Step *int `json:"step,omitempty"`

	// Err describes a local failure of this call (unparsable arguments,
	// failed execution). The invocation keeps its state.
	Err string `json:"error,omitempty"`
}

// ReasoningDetail is one segment of the model's reasoning.
type ReasoningDetail struct {
	Type      string `json:"type"` // "text" or "redacted"
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Reasoning detail types
const (
	ReasoningTypeText     = "text"
	ReasoningTypeRedacted = "redacted"
)

// Message is an assembled conversation message.
type Message struct {
	ID         string `json:"id"`
	RevisionID int64  `json:"revisionId,omitempty"`
	Role       string `json:"role"`

	// Content is the text of every step concatenated.
	Content string `json:"content"`

	// Reasoning is the reasoning text of every step concatenated.
	Reasoning        string            `json:"reasoning,omitempty"`
	ReasoningDetails []ReasoningDetail `json:"reasoningDetails,omitempty"`

	ToolInvocations []ToolInvocation     `json:"toolInvocations,omitempty"`
	Annotations     []json.RawMessage    `json:"annotations,omitempty"`
	Sources         []llmprovider.Source `json:"sources,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// NewUserMessage creates a user message.
func NewUserMessage(id, content string, createdAt time.Time) Message {
	return Message{
		ID:        id,
		Role:      llmprovider.RoleUser,
		Content:   content,
		CreatedAt: createdAt,
	}
}

// Clone returns a copy of m whose slices can be modified independently.
// Tool arguments and results are shared; they are never mutated in place.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.ReasoningDetails = slices.Clone(m.ReasoningDetails)
	clone.Annotations = slices.Clone(m.Annotations)
	clone.Sources = slices.Clone(m.Sources)
	clone.ToolInvocations = slices.Clone(m.ToolInvocations)
	for i := range clone.ToolInvocations {
		if step := clone.ToolInvocations[i].Step; step != nil {
			s := *step
			clone.ToolInvocations[i].Step = &s
		}
	}
	return &clone
}

// ToolInvocation returns the invocation with the given id.
func (m *Message) ToolInvocation(toolCallID string) (*ToolInvocation, bool) {
	for i := range m.ToolInvocations {
		if m.ToolInvocations[i].ToolCallID == toolCallID {
			return &m.ToolInvocations[i], true
		}
	}
	return nil, false
}

// MaxStep returns the highest step index of the message's invocations, or
// -1 when no invocation has a step.
func (m *Message) MaxStep() int {
	maxStep := -1
	for _, inv := range m.ToolInvocations {
		if inv.Step != nil && *inv.Step > maxStep {
			maxStep = *inv.Step
		}
	}
	return maxStep
}

// HasCompletedToolCalls reports whether m is an assistant message with at
// least one tool invocation, all of which have results.
func (m *Message) HasCompletedToolCalls() bool {
	if m.Role != llmprovider.RoleAssistant || len(m.ToolInvocations) == 0 {
		return false
	}
	for _, inv := range m.ToolInvocations {
		if inv.State != ToolStateResult {
			return false
		}
	}
	return true
}

// ToRequestMessages converts the message into provider request messages.
// An assistant message with tool results becomes an assistant message with
// tool_use blocks followed by a user message carrying the tool_result blocks.
func (m *Message) ToRequestMessages() ([]llmprovider.Message, error) {
	if m.Role != llmprovider.RoleAssistant {
		return []llmprovider.Message{llmprovider.NewUserMessage(m.Content)}, nil
	}

	assistant := llmprovider.Message{Role: llmprovider.RoleAssistant}
	for _, d := range m.ReasoningDetails {
		if d.Type == ReasoningTypeText && d.Signature != "" {
			assistant.Blocks = append(assistant.Blocks, llmprovider.NewThinkingBlock(len(assistant.Blocks), d.Text, d.Signature))
		}
	}
	if m.Content != "" {
		assistant.Blocks = append(assistant.Blocks, llmprovider.NewTextBlock(len(assistant.Blocks), m.Content))
	}

	var results []*llmprovider.Block
	for _, inv := range m.ToolInvocations {
		if inv.State == ToolStatePartialCall {
			continue
		}
		assistant.Blocks = append(assistant.Blocks, llmprovider.NewToolUseBlock(len(assistant.Blocks), inv.ToolCallID, inv.ToolName, inv.Args))
		if inv.State == ToolStateResult {
			block, err := llmprovider.NewToolResultBlock(len(results), inv.ToolCallID, inv.Result, inv.Err != "")
			if err != nil {
				return nil, err
			}
			results = append(results, block)
		}
	}

	msgs := []llmprovider.Message{assistant}
	if len(results) > 0 {
		msgs = append(msgs, llmprovider.Message{Role: llmprovider.RoleUser, Blocks: results})
	}
	return msgs, nil
}
