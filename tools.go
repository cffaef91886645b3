package llmprovider

import (
	"errors"
	"fmt"
)

// ExecutionSide records who answers a tool call.
type ExecutionSide string

const (
	ExecutionSideServer ExecutionSide = "server" // executed during the generation
	ExecutionSideClient ExecutionSide = "client" // left pending for the caller
)

// ToolChoiceMode controls tool selection behavior
type ToolChoiceMode string

const (
	ToolChoiceModeAuto     ToolChoiceMode = "auto"
	ToolChoiceModeRequired ToolChoiceMode = "required"
	ToolChoiceModeNone     ToolChoiceMode = "none"
	ToolChoiceModeSpecific ToolChoiceMode = "specific" // ToolName names the tool
)

// ToolChoice specifies tool selection behavior. A nil *ToolChoice means auto.
type ToolChoice struct {
	Mode     ToolChoiceMode `json:"mode"`
	ToolName *string        `json:"tool_name,omitempty"`
}

// Validate checks the mode and that ToolName is set exactly when required.
func (tc *ToolChoice) Validate() error {
	switch tc.Mode {
	case ToolChoiceModeSpecific:
		if tc.ToolName == nil || *tc.ToolName == "" {
			return errors.New("tool_name is required when mode is 'specific'")
		}
	case ToolChoiceModeAuto, ToolChoiceModeRequired, ToolChoiceModeNone:
		if tc.ToolName != nil {
			return fmt.Errorf("tool_name is only valid when mode is 'specific', not %q", tc.Mode)
		}
	default:
		return fmt.Errorf("invalid tool choice mode: %q", tc.Mode)
	}
	return nil
}

// Forced reports whether the model must call some tool.
func (tc *ToolChoice) Forced() bool {
	return tc != nil && (tc.Mode == ToolChoiceModeRequired || tc.Mode == ToolChoiceModeSpecific)
}

// NewToolChoice creates a ToolChoice for auto, required or none.
// Use NewSpecificToolChoice for a named tool.
func NewToolChoice(mode ToolChoiceMode) (*ToolChoice, error) {
	tc := &ToolChoice{Mode: mode}
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tool choice: %w", err)
	}
	return tc, nil
}

// NewSpecificToolChoice creates a ToolChoice forcing the named tool.
func NewSpecificToolChoice(toolName string) (*ToolChoice, error) {
	tc := &ToolChoice{Mode: ToolChoiceModeSpecific, ToolName: &toolName}
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid specific tool choice: %w", err)
	}
	return tc, nil
}
