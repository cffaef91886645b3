package streamtext

import (
	"encoding/json"

	llmprovider "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/chat"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index int

	Text             string
	Reasoning        string
	ReasoningDetails []chat.ReasoningDetail
	Sources          []llmprovider.Source

	ToolCalls   []llmprovider.ToolCall
	ToolResults []llmprovider.ToolResult

	FinishReason llmprovider.FinishReason
	Usage        llmprovider.Usage

	// IsContinued is set when the next step extends this step's text.
	IsContinued bool

	Request          *llmprovider.GenerateRequest
	Warnings         []llmprovider.ValidationWarning
	ProviderMetadata map[string]any
}

// Response is the outcome of a generation.
type Response struct {
	// Text is the text of every step.
	Text      string
	Reasoning string

	// Usage is the sum of the step usages.
	Usage llmprovider.Usage

	// FinishReason is the last step's finish reason, or max-steps when the
	// step budget ran out while another step was warranted.
	FinishReason llmprovider.FinishReason

	Steps       []StepResult
	ToolCalls   []llmprovider.ToolCall
	ToolResults []llmprovider.ToolResult
	Sources     []llmprovider.Source

	// Warnings are the validation warnings of the first step request.
	Warnings []llmprovider.ValidationWarning

	// Message is the assembled assistant message.
	Message *chat.Message

	// ResponseMessages are the request messages that reproduce the turn,
	// ready to be appended to the conversation.
	ResponseMessages []llmprovider.Message
}

func (s *StepResult) hasAllToolResults() bool {
	if len(s.ToolCalls) == 0 || len(s.ToolResults) != len(s.ToolCalls) {
		return false
	}
	for i, call := range s.ToolCalls {
		if s.ToolResults[i].ToolCallID != call.ToolCallID {
			return false
		}
	}
	return true
}

// appendStepMessages adds the request messages for step to msgs. With merge
// set, the step's text extends the trailing assistant message.
func appendStepMessages(msgs []llmprovider.Message, step *StepResult, merge bool) ([]llmprovider.Message, error) {
	if merge && len(msgs) > 0 && msgs[len(msgs)-1].Role == llmprovider.RoleAssistant {
		last := &msgs[len(msgs)-1]
		blocks := append([]*llmprovider.Block(nil), last.Blocks...)
		if n := len(blocks); n > 0 && blocks[n-1].BlockType == llmprovider.BlockTypeText {
			blocks[n-1] = llmprovider.NewTextBlock(n-1, blocks[n-1].Text()+step.Text)
		} else if step.Text != "" {
			blocks = append(blocks, llmprovider.NewTextBlock(n, step.Text))
		}
		last.Blocks = blocks
		return appendToolMessages(msgs, step)
	}

	assistant := llmprovider.Message{Role: llmprovider.RoleAssistant}
	for _, d := range step.ReasoningDetails {
		switch {
		case d.Type == chat.ReasoningTypeRedacted:
			assistant.Blocks = append(assistant.Blocks, &llmprovider.Block{
				BlockType: llmprovider.BlockTypeRedactedThinking,
				Sequence:  len(assistant.Blocks),
				Content:   map[string]any{"data": d.Data},
			})
		case d.Signature != "":
			assistant.Blocks = append(assistant.Blocks, llmprovider.NewThinkingBlock(len(assistant.Blocks), d.Text, d.Signature))
		}
	}
	if step.Text != "" {
		assistant.Blocks = append(assistant.Blocks, llmprovider.NewTextBlock(len(assistant.Blocks), step.Text))
	}
	msgs = append(msgs, assistant)
	return appendToolMessages(msgs, step)
}

func appendToolMessages(msgs []llmprovider.Message, step *StepResult) ([]llmprovider.Message, error) {
	if len(step.ToolCalls) == 0 {
		return msgs, nil
	}
	answered := make(map[string]bool, len(step.ToolResults))
	for _, r := range step.ToolResults {
		answered[r.ToolCallID] = true
	}
	last := &msgs[len(msgs)-1]
	for _, call := range step.ToolCalls {
		block := llmprovider.NewToolUseBlock(len(last.Blocks), call.ToolCallID, call.ToolName, decodeArgs(call.Args))
		if answered[call.ToolCallID] {
			block.SetExecutionSide(llmprovider.ExecutionSideServer)
		} else {
			block.SetExecutionSide(llmprovider.ExecutionSideClient)
		}
		last.Blocks = append(last.Blocks, block)
	}

	if len(step.ToolResults) == 0 {
		return msgs, nil
	}
	results := llmprovider.Message{Role: llmprovider.RoleUser}
	for _, r := range step.ToolResults {
		block, err := llmprovider.NewToolResultBlock(len(results.Blocks), r.ToolCallID, r.Result, false)
		if err != nil {
			return nil, err
		}
		results.Blocks = append(results.Blocks, block)
	}
	return append(msgs, results), nil
}

func decodeArgs(raw json.RawMessage) any {
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return map[string]any{}
	}
	return v
}
