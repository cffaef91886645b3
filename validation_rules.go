package llmprovider

import (
	"fmt"
)

// defaultRules run in this order on every engine.
var defaultRules = []ValidationRule{
	RuleFunc{"model", checkModel},
	RuleFunc{"conversation", checkConversation},
	RuleFunc{"tools", checkTools},
	RuleFunc{"thinking", checkThinking},
	RuleFunc{"vision", checkVision},
	RuleFunc{"parameters", checkParameters},
	RuleFunc{"output", checkOutput},
}

func checkModel(t *ValidationTarget) []ValidationWarning {
	if t.Model != nil {
		return nil
	}
	return []ValidationWarning{{
		Code:     WarningCodeModelUnknown,
		Category: "model",
		Field:    "model",
		Value:    t.Request.Model,
		Message:  fmt.Sprintf("Model %s not found in %s capabilities (capabilities may be outdated)", t.Request.Model, t.Provider),
		Severity: SeverityWarning,
	}}
}

// checkConversation flags messages no provider adapter can convert, and tool
// results answering calls that never appear earlier in the conversation.
func checkConversation(t *ValidationTarget) []ValidationWarning {
	var warnings []ValidationWarning
	calls := make(map[string]bool)

	for i, msg := range t.Request.Messages {
		field := fmt.Sprintf("messages[%d]", i)
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeMessageRoleInvalid,
				Category: "conversation",
				Field:    field + ".role",
				Value:    msg.Role,
				Message:  fmt.Sprintf("Role %q is not user or assistant", msg.Role),
				Severity: SeverityError,
			})
		}
		if len(msg.Blocks) == 0 {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeMessageEmpty,
				Category: "conversation",
				Field:    field,
				Message:  "Message has no content blocks",
				Severity: SeverityWarning,
			})
		}

		for _, block := range msg.Blocks {
			if block == nil {
				continue
			}
			id, _ := block.Content["tool_use_id"].(string)
			switch block.BlockType {
			case BlockTypeToolUse:
				calls[id] = true
			case BlockTypeToolResult:
				if !calls[id] {
					warnings = append(warnings, ValidationWarning{
						Code:     WarningCodeToolResultWithoutCall,
						Category: "conversation",
						Field:    field,
						Value:    id,
						Message:  fmt.Sprintf("Tool result %s has no preceding tool call", id),
						Severity: SeverityError,
					})
				}
			}
		}
	}
	return warnings
}

func checkTools(t *ValidationTarget) []ValidationWarning {
	params := t.Params()
	if len(params.Tools) == 0 {
		return nil
	}

	var warnings []ValidationWarning
	names := make(map[string]bool, len(params.Tools))
	for i := range params.Tools {
		tool := &params.Tools[i]
		if err := tool.Validate(); err != nil {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeToolDefinitionInvalid,
				Category: "tool",
				Field:    fmt.Sprintf("tools[%d]", i),
				Value:    tool.Name(),
				Message:  err.Error(),
				Severity: SeverityError,
			})
		}
		if names[tool.Name()] {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeToolNameDuplicate,
				Category: "tool",
				Field:    fmt.Sprintf("tools[%d]", i),
				Value:    tool.Name(),
				Message:  fmt.Sprintf("Tool %s is defined more than once", tool.Name()),
				Severity: SeverityError,
			})
		}
		names[tool.Name()] = true
	}

	if tc := params.ToolChoice; tc != nil && tc.Mode == ToolChoiceModeSpecific && tc.ToolName != nil && !names[*tc.ToolName] {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeToolChoiceUnknownTool,
			Category: "tool",
			Field:    "tool_choice",
			Value:    *tc.ToolName,
			Message:  fmt.Sprintf("Tool choice names %s, which is not among the request tools", *tc.ToolName),
			Severity: SeverityError,
		})
	}

	if t.Model != nil && !t.Model.Features.Tools {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeModelDoesNotSupportTools,
			Category: "tool",
			Field:    "tools",
			Value:    len(params.Tools),
			Message:  fmt.Sprintf("Model %s might not support tools", t.Request.Model),
			Severity: SeverityWarning,
		})
	}
	return warnings
}

func checkThinking(t *ValidationTarget) []ValidationWarning {
	params := t.Params()
	if params.ThinkingEnabled == nil || !*params.ThinkingEnabled {
		return nil
	}

	var warnings []ValidationWarning
	if level := params.ThinkingLevel; level != nil {
		if _, ok := defaultThinkingBudgets[*level]; !ok {
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeThinkingLevelInvalid,
				Category: "thinking",
				Field:    "thinking_level",
				Value:    *level,
				Message:  "Unknown thinking level (valid: low, medium, high)",
				Severity: SeverityWarning,
			})
		}
	}

	if params.ToolChoice.Forced() {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeThinkingForcedTool,
			Category: "thinking",
			Field:    "tool_choice",
			Value:    params.ToolChoice.Mode,
			Message:  "Forcing a tool call while thinking is enabled is rejected by some providers",
			Severity: SeverityWarning,
		})
	}

	if t.Model == nil {
		return warnings
	}
	if !t.Model.Features.Thinking {
		return append(warnings, ValidationWarning{
			Code:     WarningCodeThinkingUnsupported,
			Category: "thinking",
			Field:    "thinking",
			Value:    true,
			Message:  fmt.Sprintf("Model %s might not support extended thinking", t.Request.Model),
			Severity: SeverityWarning,
		})
	}

	if params.ThinkingBudget != nil {
		budget := *params.ThinkingBudget
		lo, hi := t.Model.Thinking.MinBudget, t.Model.Thinking.MaxBudget
		switch {
		case budget < lo:
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeThinkingBudgetTooLow,
				Category: "thinking",
				Field:    "thinking_budget",
				Value:    budget,
				Message:  fmt.Sprintf("Thinking budget %d below recommended minimum %d", budget, lo),
				Severity: SeverityInfo,
			})
		case hi > 0 && budget > hi:
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeThinkingBudgetTooHigh,
				Category: "thinking",
				Field:    "thinking_budget",
				Value:    budget,
				Message:  fmt.Sprintf("Thinking budget %d above maximum %d (will likely fail)", budget, hi),
				Severity: SeverityError,
			})
		}
	}
	return warnings
}

func checkVision(t *ValidationTarget) []ValidationWarning {
	if t.Model == nil || t.Model.Features.Vision || !hasImageContent(t.Request.Messages) {
		return nil
	}
	return []ValidationWarning{{
		Code:     WarningCodeVisionUnsupported,
		Category: "vision",
		Field:    "messages",
		Value:    "contains images",
		Message:  fmt.Sprintf("Model %s might not support vision (check capabilities)", t.Request.Model),
		Severity: SeverityWarning,
	}}
}

// checkParameters compares sampling parameters with the provider's ranges.
func checkParameters(t *ValidationTarget) []ValidationWarning {
	if t.Constraints == nil {
		return nil
	}
	params, c := t.Params(), t.Constraints

	var warnings []ValidationWarning
	outOfRange := func(code WarningCode, field string, value any, format string, args ...any) {
		warnings = append(warnings, ValidationWarning{
			Code:     code,
			Category: "parameter",
			Field:    field,
			Value:    value,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityWarning,
		})
	}

	if v := params.Temperature; v != nil && (*v < c.TemperatureMin || *v > c.TemperatureMax) {
		outOfRange(WarningCodeTemperatureOutOfRange, "temperature", *v,
			"Temperature %.2f outside recommended range [%.2f, %.2f]", *v, c.TemperatureMin, c.TemperatureMax)
	}
	if v := params.TopP; v != nil && (*v < c.TopPMin || *v > c.TopPMax) {
		outOfRange(WarningCodeTopPOutOfRange, "top_p", *v,
			"TopP %.2f outside recommended range [%.2f, %.2f]", *v, c.TopPMin, c.TopPMax)
	}
	if v := params.TopK; v != nil && (*v < c.TopKMin || *v > c.TopKMax) {
		outOfRange(WarningCodeTopKOutOfRange, "top_k", *v,
			"TopK %d outside recommended range [%d, %d]", *v, c.TopKMin, c.TopKMax)
	}
	return warnings
}

// checkOutput covers the output side: token limit and structured output.
func checkOutput(t *ValidationTarget) []ValidationWarning {
	params := t.Params()
	var warnings []ValidationWarning

	if params.MaxTokens != nil && t.Model != nil && t.Model.MaxOutputTokens > 0 && *params.MaxTokens > t.Model.MaxOutputTokens {
		warnings = append(warnings, ValidationWarning{
			Code:     WarningCodeMaxTokensAboveLimit,
			Category: "parameter",
			Field:    "max_tokens",
			Value:    *params.MaxTokens,
			Message:  fmt.Sprintf("max_tokens %d above model limit %d", *params.MaxTokens, t.Model.MaxOutputTokens),
			Severity: SeverityError,
		})
	}

	if rf := params.ResponseFormat; rf != nil {
		switch rf.Type {
		case "text", "json_object":
		case "json_schema":
			if len(rf.JSONSchema) == 0 {
				warnings = append(warnings, ValidationWarning{
					Code:     WarningCodeResponseSchemaMissing,
					Category: "parameter",
					Field:    "response_format.json_schema",
					Message:  "json_schema response format without a schema",
					Severity: SeverityError,
				})
			}
		default:
			warnings = append(warnings, ValidationWarning{
				Code:     WarningCodeResponseFormatUnknown,
				Category: "parameter",
				Field:    "response_format.type",
				Value:    rf.Type,
				Message:  fmt.Sprintf("Unknown response format %q (valid: text, json_object, json_schema)", rf.Type),
				Severity: SeverityWarning,
			})
		}
	}
	return warnings
}

func hasImageContent(messages []Message) bool {
	for _, msg := range messages {
		for _, block := range msg.Blocks {
			if block != nil && block.BlockType == BlockTypeImage {
				return true
			}
		}
	}
	return false
}
