package anthropic

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// builtinTools maps reserved tool names to Anthropic's own tool types. Their
// name and type fields carry SDK defaults, so the params stay empty.
var builtinTools = map[string]func() anthropic.ToolUnionParam{
	// https://docs.anthropic.com/en/docs/build-with-claude/web-search
	"search": func() anthropic.ToolUnionParam {
		return anthropic.ToolUnionParam{OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{}}
	},
	"text_editor": func() anthropic.ToolUnionParam {
		return anthropic.ToolUnionParam{OfTextEditor20250728: &anthropic.ToolTextEditor20250728Param{}}
	},
	"bash": func() anthropic.ToolUnionParam {
		return anthropic.ToolUnionParam{OfBashTool20250124: &anthropic.ToolBash20250124Param{}}
	},
}

// convertToolsToAnthropicTools converts function tools to SDK tool params.
func convertToolsToAnthropicTools(tools []llmprovider.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for i := range tools {
		tool := &tools[i]
		if builtin, ok := builtinTools[tool.Name()]; ok {
			result = append(result, builtin())
			continue
		}
		if err := tool.Validate(); err != nil {
			return nil, fmt.Errorf("tool %d (%s): %w", i, tool.Name(), err)
		}
		result = append(result, convertFunctionTool(tool))
	}
	return result, nil
}

// convertFunctionTool splits the JSON schema into the SDK's input_schema:
// properties and required are typed fields, everything else rides along.
func convertFunctionTool(tool *llmprovider.Tool) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{
		Properties:  tool.Function.Parameters["properties"],
		Required:    requiredProperties(tool.Function.Parameters),
		ExtraFields: make(map[string]any),
	}
	for key, value := range tool.Function.Parameters {
		switch key {
		case "type", "properties", "required":
		default:
			schema.ExtraFields[key] = value
		}
	}

	param := anthropic.ToolUnionParamOfTool(schema, tool.Name())
	if tool.Function.Description != "" {
		param.OfTool.Description = anthropic.String(tool.Function.Description)
	}
	return param
}

// requiredProperties reads the schema's "required" list, built in Go
// ([]string) or decoded from JSON ([]any).
func requiredProperties(schema map[string]any) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []any:
		names := make([]string, 0, len(required))
		for _, v := range required {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// convertToolChoice maps a tool choice; nil leaves the choice to the API.
// Anthropic calls "required" "any".
func convertToolChoice(choice *llmprovider.ToolChoice) (*anthropic.ToolChoiceUnionParam, error) {
	if choice == nil {
		return nil, nil
	}
	if err := choice.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tool choice: %w", err)
	}

	var param anthropic.ToolChoiceUnionParam
	switch choice.Mode {
	case llmprovider.ToolChoiceModeAuto:
		param.OfAuto = &anthropic.ToolChoiceAutoParam{}
	case llmprovider.ToolChoiceModeRequired:
		param.OfAny = &anthropic.ToolChoiceAnyParam{}
	case llmprovider.ToolChoiceModeNone:
		none := anthropic.NewToolChoiceNoneParam()
		param.OfNone = &none
	case llmprovider.ToolChoiceModeSpecific:
		param = anthropic.ToolChoiceParamOfTool(*choice.ToolName)
	}
	return &param, nil
}
