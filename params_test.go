package llmprovider

import (
	"errors"
	"testing"
)

func TestValidateRequestParams(t *testing.T) {
	validTool, err := NewTool("lookup", "Look something up", map[string]any{"type": "object"}, nil)
	if err != nil {
		t.Fatalf("NewTool() error = %v", err)
	}

	tests := []struct {
		name      string
		params    *RequestParams
		wantField string // empty when valid
	}{
		{"nil params", nil, ""},
		{"empty params", &RequestParams{}, ""},
		{"temperature 0.0", &RequestParams{Temperature: ptr(0.0)}, ""},
		{"temperature 2.0", &RequestParams{Temperature: ptr(2.0)}, ""},
		{"temperature -0.1", &RequestParams{Temperature: ptr(-0.1)}, "temperature"},
		{"temperature 2.1", &RequestParams{Temperature: ptr(2.1)}, "temperature"},
		{"top_p 1.0", &RequestParams{TopP: ptr(1.0)}, ""},
		{"top_p 1.1", &RequestParams{TopP: ptr(1.1)}, "top_p"},
		{"top_k 0", &RequestParams{TopK: ptr(0)}, ""},
		{"top_k -1", &RequestParams{TopK: ptr(-1)}, "top_k"},
		{"max_tokens 1", &RequestParams{MaxTokens: ptr(1)}, ""},
		{"max_tokens 0", &RequestParams{MaxTokens: ptr(0)}, "max_tokens"},
		{"negative thinking budget", &RequestParams{ThinkingBudget: ptr(-1)}, "thinking_budget"},
		{"frequency penalty -2.0", &RequestParams{FrequencyPenalty: ptr(-2.0)}, ""},
		{"presence penalty 2.5", &RequestParams{PresencePenalty: ptr(2.5)}, "presence_penalty"},
		{"min_p 1.5", &RequestParams{MinP: ptr(1.5)}, "min_p"},
		{"top_logprobs 21", &RequestParams{TopLogProbs: ptr(21)}, "top_logprobs"},
		{"known thinking level", &RequestParams{ThinkingLevel: ptr("medium")}, ""},
		{"unknown thinking level", &RequestParams{ThinkingLevel: ptr("extreme")}, "thinking_level"},
		{"empty stop sequence", &RequestParams{Stop: []string{"END", ""}}, "stop"},
		{"valid tool", &RequestParams{Tools: []Tool{*validTool}}, ""},
		{"tool without parameters", &RequestParams{Tools: []Tool{{Type: "function", Function: FunctionDetails{Name: "x"}}}}, "tools"},
		{"specific tool choice without name", &RequestParams{ToolChoice: &ToolChoice{Mode: ToolChoiceModeSpecific}}, "tool_choice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequestParams(tt.params)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateRequestParams() error = %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
			if !IsInvalidRequest(err) {
				t.Error("validation error should be classified as invalid request")
			}
		})
	}
}

func TestValidateRequestParams_Reason(t *testing.T) {
	err := ValidateRequestParams(&RequestParams{Temperature: ptr(3.0)})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Reason != "must be between 0 and 2" || verr.Value != 3.0 {
		t.Errorf("got reason %q value %v", verr.Reason, verr.Value)
	}

	err = ValidateRequestParams(&RequestParams{MaxTokens: ptr(-5)})
	if !errors.As(err, &verr) || verr.Reason != "must be at least 1" {
		t.Errorf("max_tokens error = %v", err)
	}
}

func TestRequestParams_Getters(t *testing.T) {
	tests := []struct {
		name       string
		params     *RequestParams
		wantMax    int
		wantBudget int
	}{
		{"nil params", nil, 1000, 0},
		{"unset", &RequestParams{}, 1000, 0},
		{"zero max tokens is kept", &RequestParams{MaxTokens: ptr(0)}, 0, 0},
		{"explicit max tokens", &RequestParams{MaxTokens: ptr(500)}, 500, 0},
		{"thinking disabled", &RequestParams{ThinkingEnabled: ptr(false)}, 1000, 0},
		{"low level", &RequestParams{ThinkingLevel: ptr("low")}, 1000, 2000},
		{"medium level", &RequestParams{ThinkingLevel: ptr("medium")}, 1000, 5000},
		{"high level", &RequestParams{ThinkingLevel: ptr("high")}, 1000, 12000},
		{"explicit budget wins over level", &RequestParams{ThinkingLevel: ptr("low"), ThinkingBudget: ptr(3000)}, 1000, 3000},
		{"unknown level", &RequestParams{ThinkingLevel: ptr("unknown")}, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.GetMaxTokens(1000); got != tt.wantMax {
				t.Errorf("GetMaxTokens() = %d, want %d", got, tt.wantMax)
			}
			if got := tt.params.GetThinkingBudgetTokens(); got != tt.wantBudget {
				t.Errorf("GetThinkingBudgetTokens() = %d, want %d", got, tt.wantBudget)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Field:  "temperature",
		Value:  1.5,
		Reason: "must be between 0 and 1",
		Err:    ErrInvalidRequest,
	}

	if err.Error() == "" {
		t.Error("error message is empty")
	}
	if !errors.Is(err, ErrInvalidRequest) {
		t.Error("ValidationError should wrap ErrInvalidRequest")
	}
}

func ptr[T any](v T) *T { return &v }
