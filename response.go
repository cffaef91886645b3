package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GenerateResponse contains one provider step collected into blocks.
type GenerateResponse struct {
	// Blocks is the list of assistant content blocks in arrival order
	Blocks []*Block

	// Model is the model that was used
	Model string

	// Usage is the token usage reported by the provider
	Usage Usage

	// FinishReason indicates why generation stopped
	FinishReason FinishReason

	// ResponseMetadata contains provider-specific response data
	ResponseMetadata map[string]any
}

// ResponseCollector folds the parts of one provider step into content blocks.
// Text and reasoning deltas extend the trailing block of the same type; a
// block of another type in between starts a new block.
type ResponseCollector struct {
	blocks   []*Block
	text     *strings.Builder
	thinking *strings.Builder

	finished bool
	resp     GenerateResponse
}

// NewResponseCollector creates an empty collector.
func NewResponseCollector() *ResponseCollector {
	return &ResponseCollector{}
}

// Add folds one part into the collector. Parts the collector does not track
// (step boundaries, annotations, data) are ignored.
func (c *ResponseCollector) Add(p Part) error {
	switch p := p.(type) {
	case TextDelta:
		if c.text == nil {
			c.flush()
			c.text = &strings.Builder{}
		}
		c.text.WriteString(p.Text)
	case ReasoningDelta:
		if c.thinking == nil {
			c.flush()
			c.thinking = &strings.Builder{}
		}
		c.thinking.WriteString(p.Text)
	case ReasoningSignature:
		text := ""
		if c.thinking != nil {
			text = c.thinking.String()
			c.thinking = nil
		}
		c.flush()
		c.blocks = append(c.blocks, NewThinkingBlock(len(c.blocks), text, p.Signature))
	case RedactedReasoning:
		c.flush()
		c.blocks = append(c.blocks, &Block{
			BlockType: BlockTypeRedactedThinking,
			Sequence:  len(c.blocks),
			Content:   map[string]any{"data": p.Data},
		})
	case ToolCall:
		c.flush()
		var input any = map[string]any{}
		if len(p.Args) > 0 {
			if err := json.Unmarshal(p.Args, &input); err != nil {
				input = map[string]any{}
			}
		}
		c.blocks = append(c.blocks, NewToolUseBlock(len(c.blocks), p.ToolCallID, p.ToolName, input))
	case Finish:
		c.flush()
		c.finished = true
		c.resp.FinishReason = p.FinishReason
		c.resp.Usage = p.Usage
		c.resp.ResponseMetadata = p.ProviderMetadata
	case ErrorPart:
		if p.ToolCallID == "" {
			return p.Err
		}
	}
	return nil
}

func (c *ResponseCollector) flush() {
	if c.text != nil {
		c.blocks = append(c.blocks, NewTextBlock(len(c.blocks), c.text.String()))
		c.text = nil
	}
	if c.thinking != nil {
		c.blocks = append(c.blocks, NewThinkingBlock(len(c.blocks), c.thinking.String(), ""))
		c.thinking = nil
	}
}

// Blocks returns the blocks collected so far, including any open text or
// thinking block.
func (c *ResponseCollector) Blocks() []*Block {
	c.flush()
	return c.blocks
}

// Response returns the collected response.
func (c *ResponseCollector) Response() *GenerateResponse {
	resp := c.resp
	resp.Blocks = c.Blocks()
	return &resp
}

// Finished returns true once a Finish part has been added
func (c *ResponseCollector) Finished() bool {
	return c.finished
}

// CollectResponse runs one step on p and blocks until it completes.
// This is the non-streaming counterpart of Provider.StreamResponse.
func CollectResponse(ctx context.Context, p Provider, req *GenerateRequest) (*GenerateResponse, error) {
	parts, err := p.StreamResponse(ctx, req)
	if err != nil {
		return nil, err
	}

	collector := NewResponseCollector()
	for part := range parts {
		if err := collector.Add(part); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAborted, err)
	}
	if !collector.Finished() {
		return nil, &ProtocolError{Reason: "provider stream closed without finish"}
	}

	resp := collector.Response()
	resp.Model = req.Model
	return resp, nil
}
