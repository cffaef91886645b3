package llmprovider

import (
	"encoding/json"
	"fmt"
)

// Block type constants
const (
	BlockTypeText             = "text"
	BlockTypeThinking         = "thinking"          // Extended thinking / reasoning
	BlockTypeRedactedThinking = "redacted_thinking" // Opaque reasoning returned by the provider
	BlockTypeToolUse          = "tool_use"
	BlockTypeToolResult       = "tool_result" // Result sent back from an executed tool call
	BlockTypeImage            = "image"
)

// Block represents a multimodal content block of a request message.
//
// User blocks: text, image, tool_result
// Assistant blocks: text, thinking, redacted_thinking, tool_use
//
// The Content field stores block-type-specific structured data as a map:
//   - text: empty (text in TextContent field)
//   - thinking: {"signature": "..."} (optional, text in TextContent)
//   - redacted_thinking: {"data": "..."}
//   - tool_use: {"tool_use_id": "toolu_...", "tool_name": "...", "input": {...}}
//   - tool_result: {"tool_use_id": "toolu_...", "is_error": false} (result text in TextContent)
//   - image: {"url": "...", "mime_type": "..."}
type Block struct {
	// BlockType indicates the type of block
	BlockType string `json:"block_type"`

	// Sequence indicates the position of this block in the message (0-indexed)
	Sequence int `json:"sequence"`

	// TextContent contains the text for text/thinking/tool_result blocks
	TextContent *string `json:"text_content,omitempty"`

	// Content contains type-specific structured data
	Content map[string]any `json:"content,omitempty"`

	// ExecutionSide indicates where tool execution happens (tool_use blocks only)
	ExecutionSide *ExecutionSide `json:"execution_side,omitempty"`
}

// NewTextBlock creates a text block.
func NewTextBlock(sequence int, text string) *Block {
	return &Block{
		BlockType:   BlockTypeText,
		Sequence:    sequence,
		TextContent: &text,
	}
}

// NewThinkingBlock creates a thinking block with an optional signature.
func NewThinkingBlock(sequence int, text, signature string) *Block {
	b := &Block{
		BlockType:   BlockTypeThinking,
		Sequence:    sequence,
		TextContent: &text,
	}
	if signature != "" {
		b.Content = map[string]any{"signature": signature}
	}
	return b
}

// NewToolUseBlock creates a tool_use block. Input is the decoded argument value.
func NewToolUseBlock(sequence int, toolCallID, toolName string, input any) *Block {
	return &Block{
		BlockType: BlockTypeToolUse,
		Sequence:  sequence,
		Content: map[string]any{
			"tool_use_id": toolCallID,
			"tool_name":   toolName,
			"input":       input,
		},
	}
}

// NewToolResultBlock creates a tool_result block. Non-string results are
// JSON-encoded into TextContent.
func NewToolResultBlock(sequence int, toolCallID string, result any, isError bool) (*Block, error) {
	var text string
	switch r := result.(type) {
	case string:
		text = r
	default:
		encoded, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool result for %s: %w", toolCallID, err)
		}
		text = string(encoded)
	}
	return &Block{
		BlockType:   BlockTypeToolResult,
		Sequence:    sequence,
		TextContent: &text,
		Content: map[string]any{
			"tool_use_id": toolCallID,
			"is_error":    isError,
		},
	}, nil
}

// GetExecutionSide returns the execution side, or empty string if not set
func (b *Block) GetExecutionSide() ExecutionSide {
	if b.ExecutionSide == nil {
		return ""
	}
	return *b.ExecutionSide
}

// SetExecutionSide sets the execution side for this block
func (b *Block) SetExecutionSide(side ExecutionSide) {
	b.ExecutionSide = &side
}

// Text returns the text content or empty string.
func (b *Block) Text() string {
	if b.TextContent == nil {
		return ""
	}
	return *b.TextContent
}

// IsToolBlock returns true if this is a tool-related block
func (b *Block) IsToolBlock() bool {
	return b.BlockType == BlockTypeToolUse || b.BlockType == BlockTypeToolResult
}

// GetToolUseID returns the tool_use_id from a tool_use or tool_result block
func (b *Block) GetToolUseID() (string, bool) {
	if !b.IsToolBlock() {
		return "", false
	}
	id, ok := b.Content["tool_use_id"].(string)
	return id, ok
}

// GetToolName returns the tool_name from a tool_use block
func (b *Block) GetToolName() (string, bool) {
	if b.BlockType != BlockTypeToolUse {
		return "", false
	}
	name, ok := b.Content["tool_name"].(string)
	return name, ok
}

// GetToolInput returns the input from a tool_use block
func (b *Block) GetToolInput() (any, bool) {
	if b.BlockType != BlockTypeToolUse {
		return nil, false
	}
	input, ok := b.Content["input"]
	return input, ok
}

// GetSignature returns the signature of a thinking block
func (b *Block) GetSignature() string {
	sig, _ := b.Content["signature"].(string)
	return sig
}

// IsErrorResult returns true for tool_result blocks flagged as errors
func (b *Block) IsErrorResult() bool {
	isErr, _ := b.Content["is_error"].(bool)
	return b.BlockType == BlockTypeToolResult && isErr
}
