package openrouter

import (
	"fmt"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// convertToOpenRouterTools converts library tools to OpenRouter function tools.
// The library already uses the OpenAI shape, so this is a direct mapping.
func convertToOpenRouterTools(tools []llmprovider.Tool) ([]Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	result := make([]Tool, 0, len(tools))
	for i, tool := range tools {
		if tool.Function.Name == "" {
			return nil, fmt.Errorf("tool %d: function name is required", i)
		}

		parameters := tool.Function.Parameters
		if parameters == nil {
			parameters = map[string]any{"type": "object"}
		}

		def := FunctionDefinition{
			Name:       tool.Function.Name,
			Parameters: parameters,
		}
		if tool.Function.Description != "" {
			description := tool.Function.Description
			def.Description = &description
		}

		result = append(result, Tool{Type: "function", Function: def})
	}

	return result, nil
}
