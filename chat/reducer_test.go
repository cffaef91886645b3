package chat

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

func TestStepReducer_ToolCallArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     string
		wantArgs any
		wantErr  bool
	}{
		{"object", `{"a":1}`, map[string]any{"a": float64(1)}, false},
		{"empty", ``, map[string]any{}, false},
		{"null", `null`, map[string]any{}, false},
		{"string of raw text", `"{\"a\":"`, `{"a":`, true},
		{"array", `[1]`, `[1]`, true},
		{"invalid JSON", `{"a":`, `{"a":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStepReducer(0)
			change, err := r.Reduce(llmprovider.ToolCall{ToolCallID: "t1", ToolName: "w", Args: json.RawMessage(tt.args)})
			if err != nil {
				t.Fatalf("Reduce() error = %v", err)
			}
			if !reflect.DeepEqual(change.Tool.Args, tt.wantArgs) {
				t.Errorf("Args = %#v, want %#v", change.Tool.Args, tt.wantArgs)
			}
			if got := change.Tool.Err != nil; got != tt.wantErr {
				t.Fatalf("Err = %v, wantErr %v", change.Tool.Err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(change.Tool.Err, llmprovider.ErrToolArguments) {
				t.Errorf("Err = %v, want ErrToolArguments", change.Tool.Err)
			}
		})
	}
}

func TestStepReducer_FoldsStep(t *testing.T) {
	r := NewStepReducer(2)
	if !r.IsEmpty() {
		t.Error("new reducer not empty")
	}

	parts := []llmprovider.Part{
		llmprovider.ReasoningDelta{Text: "think"},
		llmprovider.TextDelta{Text: "Hel"},
		llmprovider.ToolCallDelta{ToolCallID: "t1", ToolName: "w", ArgsTextDelta: `{"q":"x`},
		llmprovider.TextDelta{Text: "lo"},
		llmprovider.ToolCall{ToolCallID: "t1", ToolName: "w", Args: json.RawMessage(`{"q":"xy"}`)},
		llmprovider.SourcePart{},
		llmprovider.StepFinish{FinishReason: llmprovider.FinishReasonLength, Usage: llmprovider.NewUsage(1, 2), IsContinued: true},
	}
	for _, p := range parts {
		if _, err := r.Reduce(p); err != nil {
			t.Fatalf("Reduce(%T) error = %v", p, err)
		}
	}

	if r.Index() != 2 || r.Text() != "Hello" || r.Reasoning() != "think" {
		t.Errorf("index %d text %q reasoning %q", r.Index(), r.Text(), r.Reasoning())
	}
	calls := r.ToolCalls()
	if len(calls) != 1 || !calls[0].Complete || !reflect.DeepEqual(calls[0].Args, map[string]any{"q": "xy"}) {
		t.Errorf("ToolCalls() = %#v", calls)
	}
	if !r.Finished() || r.FinishReason() != llmprovider.FinishReasonLength || !r.IsContinued() || r.Usage() != llmprovider.NewUsage(1, 2) {
		t.Error("step finish not recorded")
	}

	if _, err := r.Reduce(llmprovider.TextDelta{Text: "late"}); !llmprovider.IsProtocolViolation(err) {
		t.Errorf("part after finish: got %v", err)
	}
}

func TestStepReducer_DeltaWithoutStart(t *testing.T) {
	r := NewStepReducer(0)

	change, err := r.Reduce(llmprovider.ToolCallDelta{ToolCallID: "t1", ArgsTextDelta: `{"a":`})
	if err != nil {
		t.Fatalf("Reduce(delta) error = %v", err)
	}
	if change.Tool == nil || change.Tool.ToolName != "" || change.Tool.Complete {
		t.Fatalf("seeded call = %#v, want an unnamed partial call", change.Tool)
	}

	change, err = r.Reduce(llmprovider.ToolCall{ToolCallID: "t1", ToolName: "calc", Args: json.RawMessage(`{"a":1}`)})
	if err != nil {
		t.Fatalf("Reduce(call) error = %v", err)
	}
	if change.Tool.ToolName != "calc" || !change.Tool.Complete || !reflect.DeepEqual(change.Tool.Args, map[string]any{"a": float64(1)}) {
		t.Errorf("completed call = %#v", change.Tool)
	}
	if calls := r.ToolCalls(); len(calls) != 1 {
		t.Errorf("ToolCalls() = %#v, want one entry", calls)
	}
}

func TestStepReducer_Violations(t *testing.T) {
	tests := []struct {
		name  string
		parts []llmprovider.Part
	}{
		{"duplicate start", []llmprovider.Part{
			llmprovider.ToolCallStreamingStart{ToolCallID: "t1", ToolName: "w"},
			llmprovider.ToolCallStreamingStart{ToolCallID: "t1", ToolName: "w"},
		}},
		{"delta after call", []llmprovider.Part{
			llmprovider.ToolCall{ToolCallID: "t1", ToolName: "w"},
			llmprovider.ToolCallDelta{ToolCallID: "t1", ArgsTextDelta: "{"},
		}},
		{"duplicate call", []llmprovider.Part{
			llmprovider.ToolCall{ToolCallID: "t1", ToolName: "w"},
			llmprovider.ToolCall{ToolCallID: "t1", ToolName: "w"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStepReducer(0)
			var err error
			for _, p := range tt.parts {
				if _, err = r.Reduce(p); err != nil {
					break
				}
			}
			if !llmprovider.IsProtocolViolation(err) {
				t.Errorf("expected protocol violation, got %v", err)
			}
		})
	}
}

func TestAssembler_ToolLocalError(t *testing.T) {
	a := NewAssembler(AssemblerOptions{GenerateID: llmprovider.SequentialIDs("m")})
	if _, err := a.Apply(llmprovider.ToolCall{ToolCallID: "t1", ToolName: "w", Args: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}

	snap, err := a.Apply(llmprovider.ErrorPart{ToolCallID: "t1", Err: errors.New("execution failed")})
	if err != nil {
		t.Fatalf("tool-local error should not be fatal: %v", err)
	}
	if snap.ToolInvocations[0].Err != "execution failed" {
		t.Errorf("invocation error = %q", snap.ToolInvocations[0].Err)
	}

	boom := errors.New("boom")
	if _, err := a.Apply(llmprovider.ErrorPart{Err: boom}); err != boom {
		t.Errorf("stream error = %v, want %v", err, boom)
	}
}

func TestAssembler_FinishWithoutParts(t *testing.T) {
	a := NewAssembler(AssemblerOptions{GenerateID: llmprovider.SequentialIDs("m")})
	info := a.Finish()
	if info.Message.ID != "m-0" || info.FinishReason != llmprovider.FinishReasonUnknown {
		t.Errorf("Finish() = %+v", info)
	}
}
