package llmprovider

import (
	"errors"
	"testing"
)

func TestConvertEffortToBudget(t *testing.T) {
	registry := GetCapabilityRegistry()

	tests := []struct {
		name     string
		provider string
		model    string
		effort   string
		want     int
		wantErr  bool
	}{
		{"haiku low", "anthropic", "claude-haiku-4-5", "low", 2000, false},
		{"haiku high", "anthropic", "claude-haiku-4-5", "high", 12000, false},
		{"opus medium", "anthropic", "claude-opus-4-1", "medium", 5000, false},
		{"lorem uses its own table", "lorem", "lorem-fast", "medium", 1000, false},
		{"unknown model falls back to defaults", "anthropic", "claude-future-model", "medium", 5000, false},
		{"unknown provider falls back to defaults", "nope", "some-new-model", "low", 2000, false},
		{"model without thinking table falls back", "openrouter", "moonshotai/kimi-k2-thinking", "high", 12000, false},
		{"invalid effort", "anthropic", "claude-haiku-4-5", "ultra", 0, true},
		{"empty effort", "anthropic", "claude-unknown", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget, err := registry.ConvertEffortToBudget(tt.provider, tt.model, tt.effort)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConvertEffortToBudget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if budget != tt.want {
				t.Errorf("budget = %d, want %d", budget, tt.want)
			}
		})
	}
}

func TestCapabilityRegistry_EmbeddedModels(t *testing.T) {
	registry := GetCapabilityRegistry()

	tests := []struct {
		provider   string
		model      string
		known      bool
		thinking   bool
		tools      bool
		contextWin int
		maxOutput  int
	}{
		{"anthropic", "claude-haiku-4-5", true, true, true, 200000, 64000},
		{"anthropic", "claude-3-7-sonnet", true, true, true, 200000, 64000},
		{"anthropic", "claude-unknown-model", false, false, false, 0, 0},
		{"lorem", "lorem-cutoff", true, false, false, 100000, 64},
		{"openrouter", "openai/gpt-4o-mini", true, false, true, 128000, 16384},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			if got := registry.SupportsModel(tt.provider, tt.model); got != tt.known {
				t.Errorf("SupportsModel() = %v, want %v", got, tt.known)
			}
			if got := registry.SupportsThinking(tt.provider, tt.model); got != tt.thinking {
				t.Errorf("SupportsThinking() = %v, want %v", got, tt.thinking)
			}
			if got := registry.SupportsTools(tt.provider, tt.model); got != tt.tools {
				t.Errorf("SupportsTools() = %v, want %v", got, tt.tools)
			}

			modelCap, err := registry.GetModelCapability(tt.provider, tt.model)
			if !tt.known {
				if err == nil {
					t.Error("expected error for unknown model")
				}
				return
			}
			if err != nil {
				t.Fatalf("GetModelCapability() error = %v", err)
			}
			if modelCap.ContextWindow != tt.contextWin || modelCap.MaxOutputTokens != tt.maxOutput {
				t.Errorf("limits = %d/%d, want %d/%d", modelCap.ContextWindow, modelCap.MaxOutputTokens, tt.contextWin, tt.maxOutput)
			}
		})
	}
}

func TestValidateImageRequest_IndependentFlags(t *testing.T) {
	registry := NewCapabilityRegistry(nil)
	registry.RegisterProviderCapabilities("images", &ProviderCapabilities{
		Provider: "images",
		ImageModels: map[string]ImageCapability{
			"both":    {SupportsSize: true, SupportsAspectRatio: true},
			"size":    {SupportsSize: true},
			"aspect":  {SupportsAspectRatio: true},
			"neither": {},
		},
	})

	tests := []struct {
		name      string
		model     string
		size      string
		aspect    string
		wantCodes []WarningCode
	}{
		{"both flags accept both settings", "both", "1024x1024", "16:9", nil},
		{"size-only model rejects aspect ratio", "size", "1024x1024", "16:9", []WarningCode{WarningCodeImageAspectRatioUnsupported}},
		{"aspect-only model rejects size", "aspect", "1024x1024", "16:9", []WarningCode{WarningCodeImageSizeUnsupported}},
		{"neither flag rejects both", "neither", "1024x1024", "16:9", []WarningCode{WarningCodeImageSizeUnsupported, WarningCodeImageAspectRatioUnsupported}},
		{"unset settings are never flagged", "neither", "", "", nil},
		{"unknown model accepts aspect ratio only", "mystery", "512x512", "1:1", []WarningCode{WarningCodeModelUnknown, WarningCodeImageSizeUnsupported}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := registry.ValidateImageRequest("images", ImageRequest{Model: tt.model, Size: tt.size, AspectRatio: tt.aspect})
			if len(warnings) != len(tt.wantCodes) {
				t.Fatalf("expected %d warnings, got %d: %+v", len(tt.wantCodes), len(warnings), warnings)
			}
			for i, w := range warnings {
				if w.Code != tt.wantCodes[i] {
					t.Errorf("warning %d: expected code %s, got %s", i, tt.wantCodes[i], w.Code)
				}
			}
		})
	}
}

func TestValidateImageRequest_EmbeddedFireworks(t *testing.T) {
	warnings := ValidateImageRequest("fireworks", ImageRequest{
		Model:       "accounts/fireworks/models/flux-1-dev-fp8",
		AspectRatio: "16:9",
	})
	if len(warnings) != 0 {
		t.Errorf("expected no warnings for flux aspect ratio, got %+v", warnings)
	}

	warnings = ValidateImageRequest("fireworks", ImageRequest{
		Model: "accounts/fireworks/models/flux-1-dev-fp8",
		Size:  "1024x1024",
	})
	if len(FilterWarningsByCode(warnings, WarningCodeImageSizeUnsupported)) != 1 {
		t.Errorf("expected size warning for flux, got %+v", warnings)
	}
}

func TestCapabilityRegistry_LoadCapabilities(t *testing.T) {
	registry := NewCapabilityRegistry(nil)

	err := registry.LoadCapabilities([]byte(`
provider: custom
models:
  custom-1:
    max_output_tokens: 100
    features: {tools: true}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !registry.SupportsTools("custom", "custom-1") {
		t.Error("expected custom-1 to support tools")
	}

	if err := registry.LoadCapabilities([]byte(`models: {}`)); err == nil {
		t.Error("expected error for document without provider")
	}
}

func TestValidationEngine_Warnings(t *testing.T) {
	registry := NewCapabilityRegistry(nil)
	registry.RegisterProviderCapabilities("p", &ProviderCapabilities{
		Provider: "p",
		Models: map[string]ModelCapability{
			"small": {MaxOutputTokens: 100, Features: ModelFeatures{Tools: true}},
		},
		Constraints: ProviderConstraints{TemperatureMax: 1, TopPMax: 1, TopKMax: 10},
	})
	engine := NewValidationEngine(registry)

	tool, err := NewTool("weather", "Get weather", map[string]any{"type": "object"}, nil)
	if err != nil {
		t.Fatalf("NewTool() error = %v", err)
	}

	tests := []struct {
		name     string
		model    string
		params   *RequestParams
		wantCode WarningCode
	}{
		{"unknown model", "large", nil, WarningCodeModelUnknown},
		{"max tokens above limit", "small", &RequestParams{MaxTokens: ptr(500)}, WarningCodeMaxTokensAboveLimit},
		{"temperature outside provider range", "small", &RequestParams{Temperature: ptr(1.5)}, WarningCodeTemperatureOutOfRange},
		{
			"tool choice names missing tool",
			"small",
			&RequestParams{Tools: []Tool{*tool}, ToolChoice: &ToolChoice{Mode: ToolChoiceModeSpecific, ToolName: ptr("search")}},
			WarningCodeToolChoiceUnknownTool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := engine.Validate("p", &GenerateRequest{Model: tt.model, Params: tt.params})
			if len(FilterWarningsByCode(warnings, tt.wantCode)) != 1 {
				t.Errorf("expected one %s warning, got %+v", tt.wantCode, warnings)
			}
		})
	}

	clean := engine.Validate("p", &GenerateRequest{Model: "small", Params: &RequestParams{MaxTokens: ptr(50)}})
	if len(clean) != 0 {
		t.Errorf("expected no warnings, got %+v", clean)
	}
}

func TestCapabilityRegistry_LookupErrors(t *testing.T) {
	registry := GetCapabilityRegistry()

	_, err := registry.GetModelCapability("anthropic", "claude-unreleased")
	if !errors.Is(err, ErrInvalidModel) || !IsInvalidRequest(err) {
		t.Errorf("unknown model: got %v, want ErrInvalidModel", err)
	}

	_, err = registry.GetProviderCapabilities("nobody")
	if !errors.Is(err, ErrNoSuchProvider) {
		t.Errorf("unknown provider: got %v, want ErrNoSuchProvider", err)
	}

	if _, err := registry.ConvertEffortToBudget("anthropic", "claude-haiku-4-5", "extreme"); !IsInvalidRequest(err) {
		t.Errorf("unknown effort: got %v, want an invalid request error", err)
	}
}
