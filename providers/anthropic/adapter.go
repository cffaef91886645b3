package anthropic

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// convertToAnthropicMessages converts library messages to Anthropic SDK format.
func convertToAnthropicMessages(messages []llmprovider.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Blocks))

		for j, block := range msg.Blocks {
			switch block.BlockType {
			case llmprovider.BlockTypeText:
				if block.TextContent == nil {
					return nil, fmt.Errorf("message %d, block %d: text block missing text_content", i, j)
				}
				blocks = append(blocks, anthropic.NewTextBlock(*block.TextContent))

			case llmprovider.BlockTypeThinking:
				// Unsigned reasoning cannot be replayed as a thinking block.
				if block.GetSignature() == "" {
					continue
				}
				blocks = append(blocks, anthropic.NewThinkingBlock(block.GetSignature(), block.Text()))

			case llmprovider.BlockTypeRedactedThinking:
				data, _ := block.Content["data"].(string)
				if data == "" {
					return nil, fmt.Errorf("message %d, block %d: redacted_thinking block missing data", i, j)
				}
				blocks = append(blocks, anthropic.NewRedactedThinkingBlock(data))

			case llmprovider.BlockTypeToolUse:
				toolUseID, ok := block.GetToolUseID()
				if !ok || toolUseID == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing tool_use_id", i, j)
				}
				toolName, ok := block.GetToolName()
				if !ok || toolName == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing tool_name", i, j)
				}
				input, ok := block.GetToolInput()
				if !ok {
					return nil, fmt.Errorf("message %d, block %d: tool_use block missing input", i, j)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(toolUseID, input, toolName))

			case llmprovider.BlockTypeToolResult:
				toolUseID, ok := block.GetToolUseID()
				if !ok || toolUseID == "" {
					return nil, fmt.Errorf("message %d, block %d: tool_result block missing tool_use_id", i, j)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(toolUseID, block.Text(), block.IsErrorResult()))

			default:
				// Images are not sent yet.
			}
		}

		switch msg.Role {
		case llmprovider.RoleUser:
			result = append(result, anthropic.NewUserMessage(blocks...))
		case llmprovider.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("message %d: unsupported role '%s'", i, msg.Role)
		}
	}

	return result, nil
}

// convertError maps an SDK error to a ProviderError carrying the matching
// sentinel.
func convertError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &llmprovider.ProviderError{
			Provider:  llmprovider.ProviderAnthropic.String(),
			Message:   err.Error(),
			Retryable: true,
			Err:       errors.Join(llmprovider.ErrProviderUnavailable, err),
		}
	}

	perr := &llmprovider.ProviderError{
		Provider:   llmprovider.ProviderAnthropic.String(),
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Error(),
		Err:        err,
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		perr.Err = errors.Join(llmprovider.ErrInvalidAPIKey, err)
	case code == http.StatusTooManyRequests:
		perr.Retryable = true
		perr.Err = errors.Join(llmprovider.ErrRateLimited, err)
	case code == http.StatusBadRequest || code == http.StatusNotFound || code == http.StatusUnprocessableEntity:
		perr.Err = errors.Join(llmprovider.ErrInvalidRequest, err)
	case code >= http.StatusInternalServerError:
		perr.Retryable = true
		perr.Err = errors.Join(llmprovider.ErrProviderUnavailable, err)
	}
	return perr
}
