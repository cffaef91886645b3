package llmprovider

import "fmt"

// Severity indicates how serious a validation warning is
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error" // the provider will most likely reject the request
)

// rank orders severities for sorting, most serious first.
func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// WarningCode is a machine-readable identifier for validation warnings
type WarningCode string

const (
	WarningCodeModelUnknown WarningCode = "MODEL_UNKNOWN"

	WarningCodeModelDoesNotSupportTools WarningCode = "MODEL_DOES_NOT_SUPPORT_TOOLS"
	WarningCodeToolChoiceUnknownTool    WarningCode = "TOOL_CHOICE_UNKNOWN_TOOL"
	WarningCodeToolDefinitionInvalid    WarningCode = "TOOL_DEFINITION_INVALID"
	WarningCodeToolNameDuplicate        WarningCode = "TOOL_NAME_DUPLICATE"

	WarningCodeThinkingUnsupported   WarningCode = "THINKING_UNSUPPORTED"
	WarningCodeThinkingBudgetTooLow  WarningCode = "THINKING_BUDGET_TOO_LOW"
	WarningCodeThinkingBudgetTooHigh WarningCode = "THINKING_BUDGET_TOO_HIGH"
	WarningCodeThinkingLevelInvalid  WarningCode = "THINKING_LEVEL_INVALID"
	WarningCodeThinkingForcedTool    WarningCode = "THINKING_WITH_FORCED_TOOL"

	WarningCodeVisionUnsupported WarningCode = "VISION_UNSUPPORTED"

	WarningCodeImageSizeUnsupported        WarningCode = "IMAGE_SIZE_UNSUPPORTED"
	WarningCodeImageAspectRatioUnsupported WarningCode = "IMAGE_ASPECT_RATIO_UNSUPPORTED"

	WarningCodeMaxTokensAboveLimit   WarningCode = "MAX_TOKENS_ABOVE_LIMIT"
	WarningCodeResponseSchemaMissing WarningCode = "RESPONSE_SCHEMA_MISSING"
	WarningCodeResponseFormatUnknown WarningCode = "RESPONSE_FORMAT_UNKNOWN"
	WarningCodeTemperatureOutOfRange WarningCode = "TEMPERATURE_OUT_OF_RANGE"
	WarningCodeTopPOutOfRange        WarningCode = "TOP_P_OUT_OF_RANGE"
	WarningCodeTopKOutOfRange        WarningCode = "TOP_K_OUT_OF_RANGE"

	WarningCodeMessageRoleInvalid    WarningCode = "MESSAGE_ROLE_INVALID"
	WarningCodeMessageEmpty          WarningCode = "MESSAGE_EMPTY"
	WarningCodeToolResultWithoutCall WarningCode = "TOOL_RESULT_WITHOUT_CALL"
)

// ValidationWarning is a request problem found before it is sent.
// Warnings never block a request: provider APIs remain the authority.
type ValidationWarning struct {
	Code     WarningCode `json:"code"`
	Category string      `json:"category"` // model, tool, thinking, parameter, vision, image, conversation
	Field    string      `json:"field"`
	Value    any         `json:"value,omitempty"`
	Message  string      `json:"message"`
	Severity Severity    `json:"severity"`
}

func (w ValidationWarning) String() string {
	return fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message)
}

// ValidationTarget is the request under validation, with the capabilities of
// its provider and model resolved once for every rule. Model and Constraints
// are nil when the registry does not know them.
type ValidationTarget struct {
	Provider    string
	Request     *GenerateRequest
	Model       *ModelCapability
	Constraints *ProviderConstraints
}

// Params returns the request parameters, never nil.
func (t *ValidationTarget) Params() *RequestParams {
	if t.Request.Params == nil {
		return &RequestParams{}
	}
	return t.Request.Params
}

// ValidationRule is one named check run by a ValidationEngine.
type ValidationRule interface {
	Name() string
	Check(t *ValidationTarget) []ValidationWarning
}

// RuleFunc adapts a function to ValidationRule.
type RuleFunc struct {
	RuleName string
	Fn       func(t *ValidationTarget) []ValidationWarning
}

func (r RuleFunc) Name() string { return r.RuleName }

func (r RuleFunc) Check(t *ValidationTarget) []ValidationWarning { return r.Fn(t) }
