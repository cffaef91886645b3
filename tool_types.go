package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ToolExecuteFunc runs a tool call. args is the validated JSON argument
// object. The returned value must be JSON-encodable.
type ToolExecuteFunc func(ctx context.Context, toolCallID string, args json.RawMessage) (any, error)

// FunctionDetails represents the function definition within a tool (OpenAI format).
// This matches the universal standard used by OpenAI, OpenRouter, and easily converts to Anthropic.
type FunctionDetails struct {
	Name        string         `json:"name"`                  // Function name (required)
	Description string         `json:"description,omitempty"` // What the function does
	Parameters  map[string]any `json:"parameters"`            // JSON Schema for parameters
}

// Tool represents a function tool (OpenAI universal format).
// This format cleanly converts to all providers:
//   - OpenAI/OpenRouter: Use directly (native format)
//   - Anthropic: Flatten and rename (parameters → input_schema)
//
// Execute is optional. A tool without it is a client-side tool: its calls
// stay pending in "call" state for the caller to answer.
type Tool struct {
	Type     string          `json:"type"`     // Always "function" for function tools
	Function FunctionDetails `json:"function"` // Function definition

	Execute ToolExecuteFunc `json:"-"`
}

// Validate checks if the Tool is properly configured
func (t *Tool) Validate() error {
	if t.Type == "" {
		return errors.New("tool type is required")
	}

	if t.Type != "function" {
		return fmt.Errorf("unsupported tool type: %s (only 'function' is supported)", t.Type)
	}

	if t.Function.Name == "" {
		return errors.New("function name is required")
	}

	if t.Function.Parameters == nil {
		return errors.New("function parameters are required")
	}

	// Validate that parameters is a valid JSON schema object
	if schemaType, ok := t.Function.Parameters["type"].(string); !ok || schemaType != "object" {
		return errors.New("function parameters must be a JSON schema with type 'object'")
	}

	return nil
}

// Name returns the function name
func (t *Tool) Name() string {
	return t.Function.Name
}

// ExecutionSide returns ExecutionSideServer when the tool can be executed by
// this library, ExecutionSideClient otherwise.
func (t *Tool) ExecutionSide() ExecutionSide {
	if t.Execute != nil {
		return ExecutionSideServer
	}
	return ExecutionSideClient
}

// ValidateArgs checks raw arguments against the tool's parameter schema.
// Empty arguments are treated as an empty object. Only the top-level shape is
// checked: the value must be a JSON object carrying every "required" property.
func (t *Tool) ValidateArgs(args json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 {
		trimmed = []byte("{}")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	for _, name := range requiredProperties(t.Function.Parameters) {
		if _, ok := obj[name]; !ok {
			return nil, fmt.Errorf("missing required property %q", name)
		}
	}

	return json.RawMessage(trimmed), nil
}

// requiredProperties reads the "required" list of a JSON schema. The list may
// be []string (built in Go) or []any (decoded from JSON/YAML).
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

// NewTool creates a function tool (OpenAI format).
// This follows the universal function calling standard used by OpenAI, Anthropic, and OpenRouter.
//
// Parameters:
//   - name: Function name (required)
//   - description: What the function does (required)
//   - parameters: JSON Schema object defining function parameters (required)
//   - execute: optional; nil makes this a client-side tool
//
// Example parameters:
//
//	map[string]any{
//	  "type": "object",
//	  "properties": map[string]any{
//	    "city": map[string]any{
//	      "type":        "string",
//	      "description": "The city, e.g. London",
//	    },
//	  },
//	  "required": []string{"city"},
//	}
func NewTool(name string, description string, parameters map[string]any, execute ToolExecuteFunc) (*Tool, error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}

	if description == "" {
		return nil, errors.New("tool description is required")
	}

	if parameters == nil {
		return nil, errors.New("parameters are required")
	}

	tool := &Tool{
		Type: "function",
		Function: FunctionDetails{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
		Execute: execute,
	}

	if err := tool.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create tool: %w", err)
	}

	return tool, nil
}
