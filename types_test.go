package llmprovider

import (
	"encoding/json"
	"testing"
)

func TestBlock_ToolAccessors(t *testing.T) {
	use := NewToolUseBlock(0, "toolu_1", "weather", map[string]any{"city": "London"})

	id, ok := use.GetToolUseID()
	if !ok || id != "toolu_1" {
		t.Errorf("GetToolUseID() = %q, %v, want toolu_1, true", id, ok)
	}

	name, ok := use.GetToolName()
	if !ok || name != "weather" {
		t.Errorf("GetToolName() = %q, %v, want weather, true", name, ok)
	}

	input, ok := use.GetToolInput()
	if !ok {
		t.Fatal("GetToolInput() returned false")
	}
	if input.(map[string]any)["city"] != "London" {
		t.Errorf("GetToolInput() = %v", input)
	}

	text := NewTextBlock(1, "hi")
	if _, ok := text.GetToolUseID(); ok {
		t.Error("text block should not report a tool_use_id")
	}
	if _, ok := text.GetToolName(); ok {
		t.Error("text block should not report a tool name")
	}
}

func TestNewToolResultBlock(t *testing.T) {
	tests := []struct {
		name     string
		result   any
		isError  bool
		wantText string
	}{
		{"string result is kept verbatim", "sunny", false, "sunny"},
		{"object result is JSON encoded", map[string]any{"weather": "sunny"}, false, `{"weather":"sunny"}`},
		{"error result", "boom", true, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewToolResultBlock(0, "toolu_1", tt.result, tt.isError)
			if err != nil {
				t.Fatalf("NewToolResultBlock() error = %v", err)
			}
			if b.Text() != tt.wantText {
				t.Errorf("Text() = %q, want %q", b.Text(), tt.wantText)
			}
			if b.IsErrorResult() != tt.isError {
				t.Errorf("IsErrorResult() = %v, want %v", b.IsErrorResult(), tt.isError)
			}
			if id, _ := b.GetToolUseID(); id != "toolu_1" {
				t.Errorf("GetToolUseID() = %q", id)
			}
		})
	}

	if _, err := NewToolResultBlock(0, "toolu_1", func() {}, false); err == nil {
		t.Error("expected error for unencodable result")
	}
}

func TestBlock_ExecutionSide(t *testing.T) {
	b := NewToolUseBlock(0, "id", "name", nil)
	if b.GetExecutionSide() != "" {
		t.Errorf("GetExecutionSide() = %q, want empty", b.GetExecutionSide())
	}
	b.SetExecutionSide(ExecutionSideServer)
	if b.GetExecutionSide() != ExecutionSideServer {
		t.Errorf("GetExecutionSide() = %q, want server", b.GetExecutionSide())
	}
}

func TestResponseCollector(t *testing.T) {
	c := NewResponseCollector()
	parts := []Part{
		ReasoningDelta{Text: "think "},
		ReasoningDelta{Text: "hard"},
		ReasoningSignature{Signature: "sig"},
		TextDelta{Text: "Hello, "},
		TextDelta{Text: "world!"},
		ToolCall{ToolCallID: "t1", ToolName: "weather", Args: json.RawMessage(`{"city":"London"}`)},
		Finish{FinishReason: FinishReasonToolCalls, Usage: NewUsage(10, 5)},
	}
	for _, p := range parts {
		if err := c.Add(p); err != nil {
			t.Fatalf("Add(%T) error = %v", p, err)
		}
	}

	resp := c.Response()
	if len(resp.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(resp.Blocks))
	}

	if resp.Blocks[0].BlockType != BlockTypeThinking || resp.Blocks[0].Text() != "think hard" || resp.Blocks[0].GetSignature() != "sig" {
		t.Errorf("unexpected thinking block: %+v", resp.Blocks[0])
	}
	if resp.Blocks[1].BlockType != BlockTypeText || resp.Blocks[1].Text() != "Hello, world!" {
		t.Errorf("unexpected text block: %+v", resp.Blocks[1])
	}
	if resp.Blocks[2].BlockType != BlockTypeToolUse || resp.Blocks[2].Sequence != 2 {
		t.Errorf("unexpected tool block: %+v", resp.Blocks[2])
	}
	if resp.FinishReason != FinishReasonToolCalls {
		t.Errorf("FinishReason = %q", resp.FinishReason)
	}
	if resp.Usage != (Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}) {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if !c.Finished() {
		t.Error("collector should be finished")
	}
}

func TestResponseCollector_TerminalError(t *testing.T) {
	c := NewResponseCollector()

	if err := c.Add(ErrorPart{Err: ErrToolExecution, ToolCallID: "t1"}); err != nil {
		t.Errorf("tool-local error should not fail the collector: %v", err)
	}
	if err := c.Add(ErrorPart{Err: ErrProviderUnavailable}); err == nil {
		t.Error("terminal error part should be returned")
	}
}

func TestUsage_Add(t *testing.T) {
	got := NewUsage(10, 5).Add(NewUsage(4, 2))
	want := Usage{PromptTokens: 14, CompletionTokens: 7, TotalTokens: 21}
	if got != want {
		t.Errorf("Add() = %+v, want %+v", got, want)
	}
}

func TestMapStopReason(t *testing.T) {
	tests := []struct {
		in   string
		want FinishReason
	}{
		{"end_turn", FinishReasonStop},
		{"stop", FinishReasonStop},
		{"max_tokens", FinishReasonLength},
		{"length", FinishReasonLength},
		{"tool_use", FinishReasonToolCalls},
		{"tool_calls", FinishReasonToolCalls},
		{"content_filter", FinishReasonContentFilter},
		{"", FinishReasonUnknown},
		{"something_new", FinishReasonOther},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := MapStopReason(tt.in); got != tt.want {
				t.Errorf("MapStopReason(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		part Part
		want bool
	}{
		{"finish", Finish{}, true},
		{"stream error", ErrorPart{Err: ErrDecode}, true},
		{"tool error", ErrorPart{Err: ErrToolArguments, ToolCallID: "t"}, false},
		{"text", TextDelta{Text: "x"}, false},
		{"step finish", StepFinish{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminal(tt.part); got != tt.want {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToolChoice(t *testing.T) {
	tests := []struct {
		name       string
		choice     *ToolChoice
		wantErr    bool
		wantForced bool
	}{
		{"nil", nil, false, false},
		{"auto", &ToolChoice{Mode: ToolChoiceModeAuto}, false, false},
		{"none", &ToolChoice{Mode: ToolChoiceModeNone}, false, false},
		{"required", &ToolChoice{Mode: ToolChoiceModeRequired}, false, true},
		{"specific", &ToolChoice{Mode: ToolChoiceModeSpecific, ToolName: ptr("weather")}, false, true},
		{"specific without name", &ToolChoice{Mode: ToolChoiceModeSpecific}, true, true},
		{"specific with empty name", &ToolChoice{Mode: ToolChoiceModeSpecific, ToolName: ptr("")}, true, true},
		{"auto with name", &ToolChoice{Mode: ToolChoiceModeAuto, ToolName: ptr("weather")}, true, false},
		{"unknown mode", &ToolChoice{Mode: "sometimes"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.choice != nil {
				if err := tt.choice.Validate(); (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			}
			if got := tt.choice.Forced(); got != tt.wantForced {
				t.Errorf("Forced() = %v, want %v", got, tt.wantForced)
			}
		})
	}

	if _, err := NewToolChoice(ToolChoiceModeSpecific); err == nil {
		t.Error("NewToolChoice(specific) should require a tool name")
	}
	tc, err := NewSpecificToolChoice("weather")
	if err != nil || *tc.ToolName != "weather" {
		t.Errorf("NewSpecificToolChoice() = %+v, %v", tc, err)
	}
}
