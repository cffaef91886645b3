package openrouter

import (
	"encoding/json"
	"fmt"
	"strings"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// convertToOpenRouterMessages converts library messages to OpenRouter/OpenAI format.
func convertToOpenRouterMessages(messages []llmprovider.Message) ([]Message, error) {
	result := make([]Message, 0, len(messages))

	for i, msg := range messages {
		converted, err := convertMessageToOpenRouter(msg, i)
		if err != nil {
			return nil, err
		}
		result = append(result, converted...)
	}

	return result, nil
}

// convertMessageToOpenRouter converts a single library message to OpenRouter format.
// Tool results become separate role:"tool" messages, so one message may expand to several.
func convertMessageToOpenRouter(msg llmprovider.Message, msgIndex int) ([]Message, error) {
	if msg.Role != llmprovider.RoleUser && msg.Role != llmprovider.RoleAssistant {
		return nil, fmt.Errorf("message %d: unsupported role '%s'", msgIndex, msg.Role)
	}

	var (
		result    []Message
		text      []string
		reasoning []ReasoningDetail
		toolCalls []ToolCall
	)

	for j, block := range msg.Blocks {
		switch block.BlockType {
		case llmprovider.BlockTypeText:
			if block.TextContent != nil {
				text = append(text, *block.TextContent)
			}

		case llmprovider.BlockTypeThinking:
			if msg.Role != llmprovider.RoleAssistant || block.Text() == "" {
				continue
			}
			thinking := block.Text()
			detail := ReasoningDetail{Type: "reasoning.text", Text: &thinking}
			if sig := block.GetSignature(); sig != "" {
				detail.Signature = &sig
			}
			reasoning = append(reasoning, detail)

		case llmprovider.BlockTypeRedactedThinking:
			if data, ok := block.Content["data"].(string); ok && data != "" && msg.Role == llmprovider.RoleAssistant {
				reasoning = append(reasoning, ReasoningDetail{Type: "reasoning.encrypted", Data: &data})
			}

		case llmprovider.BlockTypeToolUse:
			if msg.Role != llmprovider.RoleAssistant {
				return nil, fmt.Errorf("message %d, block %d: tool_use block in %s message", msgIndex, j, msg.Role)
			}
			toolCall, err := convertToolUseToToolCall(block, msgIndex, j)
			if err != nil {
				return nil, err
			}
			toolCalls = append(toolCalls, toolCall)

		case llmprovider.BlockTypeToolResult:
			toolUseID, ok := block.GetToolUseID()
			if !ok || toolUseID == "" {
				return nil, fmt.Errorf("message %d, block %d: tool_result block missing tool_use_id", msgIndex, j)
			}
			result = append(result, Message{
				Role:       "tool",
				Content:    block.Text(),
				ToolCallID: &toolUseID,
			})
		}
	}

	out := Message{Role: msg.Role, ReasoningDetails: reasoning, ToolCalls: toolCalls}
	if len(text) > 0 {
		out.Content = strings.Join(text, "\n\n")
	}
	if out.Content != nil || len(out.ToolCalls) > 0 || len(out.ReasoningDetails) > 0 {
		result = append(result, out)
	}

	return result, nil
}

// convertToolUseToToolCall converts a tool_use block to OpenRouter ToolCall format.
func convertToolUseToToolCall(block *llmprovider.Block, msgIndex, blockIndex int) (ToolCall, error) {
	toolUseID, ok := block.GetToolUseID()
	if !ok || toolUseID == "" {
		return ToolCall{}, fmt.Errorf("message %d, block %d: tool_use block missing tool_use_id", msgIndex, blockIndex)
	}

	toolName, ok := block.GetToolName()
	if !ok || toolName == "" {
		return ToolCall{}, fmt.Errorf("message %d, block %d: tool_use block missing tool_name", msgIndex, blockIndex)
	}

	input, ok := block.GetToolInput()
	if !ok {
		return ToolCall{}, fmt.Errorf("message %d, block %d: tool_use block missing input", msgIndex, blockIndex)
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return ToolCall{}, fmt.Errorf("message %d, block %d: failed to marshal tool input: %w", msgIndex, blockIndex, err)
	}

	return ToolCall{
		ID:   toolUseID,
		Type: "function",
		Function: FunctionCall{
			Name:      toolName,
			Arguments: string(inputJSON),
		},
	}, nil
}
