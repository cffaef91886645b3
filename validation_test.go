package llmprovider

import (
	"testing"
)

func testValidationRegistry() *CapabilityRegistry {
	registry := NewCapabilityRegistry(nil)
	registry.RegisterProviderCapabilities("p", &ProviderCapabilities{
		Provider: "p",
		Models: map[string]ModelCapability{
			"small": {MaxOutputTokens: 100, Features: ModelFeatures{Tools: true}},
			"thinker": {
				Features: ModelFeatures{Thinking: true},
				Thinking: ThinkingCapability{MinBudget: 1024, MaxBudget: 8000},
			},
		},
		Constraints: ProviderConstraints{TemperatureMax: 1, TopPMax: 1, TopKMax: 10},
	})
	return registry
}

func TestValidationEngine_Rules(t *testing.T) {
	engine := NewValidationEngine(testValidationRegistry())

	weather, err := NewTool("weather", "Get weather", map[string]any{"type": "object"}, nil)
	if err != nil {
		t.Fatalf("NewTool() error = %v", err)
	}
	result, err := NewToolResultBlock(0, "call_9", "sunny", false)
	if err != nil {
		t.Fatalf("NewToolResultBlock() error = %v", err)
	}

	tests := []struct {
		name     string
		req      *GenerateRequest
		wantCode WarningCode
		severity Severity
	}{
		{
			"unknown model",
			&GenerateRequest{Model: "large"},
			WarningCodeModelUnknown, SeverityWarning,
		},
		{
			"system role in messages",
			&GenerateRequest{Model: "small", Messages: []Message{{Role: "system", Blocks: []*Block{NewTextBlock(0, "x")}}}},
			WarningCodeMessageRoleInvalid, SeverityError,
		},
		{
			"message without blocks",
			&GenerateRequest{Model: "small", Messages: []Message{{Role: RoleUser}}},
			WarningCodeMessageEmpty, SeverityWarning,
		},
		{
			"tool result without call",
			&GenerateRequest{Model: "small", Messages: []Message{{Role: RoleUser, Blocks: []*Block{result}}}},
			WarningCodeToolResultWithoutCall, SeverityError,
		},
		{
			"duplicate tool names",
			&GenerateRequest{Model: "small", Params: &RequestParams{Tools: []Tool{*weather, *weather}}},
			WarningCodeToolNameDuplicate, SeverityError,
		},
		{
			"malformed tool definition",
			&GenerateRequest{Model: "small", Params: &RequestParams{Tools: []Tool{{Type: "function", Function: FunctionDetails{Name: "x"}}}}},
			WarningCodeToolDefinitionInvalid, SeverityError,
		},
		{
			"tools on a model without tool support",
			&GenerateRequest{Model: "thinker", Params: &RequestParams{Tools: []Tool{*weather}}},
			WarningCodeModelDoesNotSupportTools, SeverityWarning,
		},
		{
			"thinking on a model without thinking",
			&GenerateRequest{Model: "small", Params: &RequestParams{ThinkingEnabled: ptr(true)}},
			WarningCodeThinkingUnsupported, SeverityWarning,
		},
		{
			"thinking budget below minimum",
			&GenerateRequest{Model: "thinker", Params: &RequestParams{ThinkingEnabled: ptr(true), ThinkingBudget: ptr(100)}},
			WarningCodeThinkingBudgetTooLow, SeverityInfo,
		},
		{
			"thinking budget above maximum",
			&GenerateRequest{Model: "thinker", Params: &RequestParams{ThinkingEnabled: ptr(true), ThinkingBudget: ptr(9000)}},
			WarningCodeThinkingBudgetTooHigh, SeverityError,
		},
		{
			"unknown thinking level on unknown model",
			&GenerateRequest{Model: "large", Params: &RequestParams{ThinkingEnabled: ptr(true), ThinkingLevel: ptr("max")}},
			WarningCodeThinkingLevelInvalid, SeverityWarning,
		},
		{
			"thinking with a forced tool",
			&GenerateRequest{Model: "thinker", Params: &RequestParams{ThinkingEnabled: ptr(true), ToolChoice: &ToolChoice{Mode: ToolChoiceModeRequired}}},
			WarningCodeThinkingForcedTool, SeverityWarning,
		},
		{
			"image on a model without vision",
			&GenerateRequest{Model: "small", Messages: []Message{{Role: RoleUser, Blocks: []*Block{{BlockType: BlockTypeImage}}}}},
			WarningCodeVisionUnsupported, SeverityWarning,
		},
		{
			"top_k above provider range",
			&GenerateRequest{Model: "small", Params: &RequestParams{TopK: ptr(40)}},
			WarningCodeTopKOutOfRange, SeverityWarning,
		},
		{
			"json schema format without schema",
			&GenerateRequest{Model: "small", Params: &RequestParams{ResponseFormat: &ResponseFormat{Type: "json_schema"}}},
			WarningCodeResponseSchemaMissing, SeverityError,
		},
		{
			"unknown response format",
			&GenerateRequest{Model: "small", Params: &RequestParams{ResponseFormat: &ResponseFormat{Type: "yaml"}}},
			WarningCodeResponseFormatUnknown, SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterWarningsByCode(engine.Validate("p", tt.req), tt.wantCode)
			if len(got) != 1 {
				t.Fatalf("expected one %s warning, got %+v", tt.wantCode, got)
			}
			if got[0].Severity != tt.severity {
				t.Errorf("Severity = %s, want %s", got[0].Severity, tt.severity)
			}
		})
	}
}

func TestValidationEngine_AnsweredToolCallIsClean(t *testing.T) {
	engine := NewValidationEngine(testValidationRegistry())
	result, err := NewToolResultBlock(0, "call_1", map[string]any{"temp": 21}, false)
	if err != nil {
		t.Fatalf("NewToolResultBlock() error = %v", err)
	}

	warnings := engine.Validate("p", &GenerateRequest{
		Model: "small",
		Messages: []Message{
			NewUserMessage("Weather?"),
			{Role: RoleAssistant, Blocks: []*Block{NewToolUseBlock(0, "call_1", "weather", map[string]any{})}},
			{Role: RoleUser, Blocks: []*Block{result}},
		},
		Params: &RequestParams{ResponseFormat: &ResponseFormat{Type: "json_object"}},
	})
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", warnings)
	}
}

func TestValidationEngine_SortsBySeverity(t *testing.T) {
	engine := NewValidationEngine(testValidationRegistry())
	warnings := engine.Validate("p", &GenerateRequest{
		Model: "large",
		Params: &RequestParams{
			ResponseFormat: &ResponseFormat{Type: "json_schema"},
		},
	})

	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", warnings)
	}
	if warnings[0].Code != WarningCodeResponseSchemaMissing || warnings[1].Code != WarningCodeModelUnknown {
		t.Errorf("unexpected order: %v, %v", warnings[0], warnings[1])
	}
	if !HasErrors(warnings) || HasErrors(warnings[1:]) {
		t.Error("HasErrors() misreports error severity")
	}
}

func TestValidationEngine_CustomRules(t *testing.T) {
	engine := NewValidationEngine(testValidationRegistry())
	engine.AddRule(RuleFunc{
		RuleName: "no-stop",
		Fn: func(t *ValidationTarget) []ValidationWarning {
			if len(t.Params().Stop) == 0 {
				return nil
			}
			return []ValidationWarning{{Code: "STOP_USED", Category: "custom", Severity: SeverityInfo}}
		},
	})

	req := &GenerateRequest{Model: "large", Params: &RequestParams{Stop: []string{"END"}}}
	if got := FilterWarningsByCategory(engine.Validate("p", req), "custom"); len(got) != 1 {
		t.Fatalf("expected custom warning, got %+v", got)
	}

	if !engine.RemoveRule("model") {
		t.Fatal("RemoveRule(model) = false")
	}
	if engine.RemoveRule("model") {
		t.Error("second RemoveRule(model) = true")
	}
	warnings := engine.Validate("p", req)
	if len(FilterWarningsByCode(warnings, WarningCodeModelUnknown)) != 0 {
		t.Errorf("removed rule still ran: %+v", warnings)
	}
	if len(FilterWarningsBySeverity(warnings, SeverityInfo)) != 1 {
		t.Errorf("expected the custom info warning, got %+v", warnings)
	}
}

func TestValidationWarning_String(t *testing.T) {
	w := ValidationWarning{Code: WarningCodeTopPOutOfRange, Message: "too high", Severity: SeverityWarning}
	if got := w.String(); got != "[warning] TOP_P_OUT_OF_RANGE: too high" {
		t.Errorf("String() = %q", got)
	}
}
