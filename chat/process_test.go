package chat

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

var testTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type recorder struct {
	updates  []Snapshot
	finishes []FinishInfo
}

func process(t *testing.T, wire string, last *Message) (*recorder, error) {
	t.Helper()
	rec := &recorder{}
	_, err := ProcessResponse(context.Background(), strings.NewReader(wire), ProcessOptions{
		AssemblerOptions: AssemblerOptions{
			GenerateID:  llmprovider.SequentialIDs("id"),
			Clock:       llmprovider.FixedClock{T: testTime},
			LastMessage: last,
		},
		OnUpdate: func(s Snapshot) { rec.updates = append(rec.updates, s) },
		OnFinish: func(f FinishInfo) { rec.finishes = append(rec.finishes, f) },
	})
	return rec, err
}

func frames(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func step(i int) *int { return &i }

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func assistant(id string, rev int64, content string) *Message {
	return &Message{
		ID:         id,
		RevisionID: rev,
		Role:       llmprovider.RoleAssistant,
		Content:    content,
		CreatedAt:  testTime,
	}
}

func checkUpdates(t *testing.T, got []Snapshot, want []*Message) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d updates, got %d", len(want), len(got))
	}
	for i := range want {
		if !reflect.DeepEqual(got[i].Message, want[i]) {
			t.Errorf("update %d:\n got  %#v\n want %#v", i, got[i].Message, want[i])
		}
	}
}

func checkFinish(t *testing.T, rec *recorder, want FinishInfo) {
	t.Helper()
	if len(rec.finishes) != 1 {
		t.Fatalf("expected 1 finish call, got %d", len(rec.finishes))
	}
	if !reflect.DeepEqual(rec.finishes[0], want) {
		t.Errorf("finish:\n got  %#v\n want %#v", rec.finishes[0], want)
	}
}

func TestProcessResponse_SimpleText(t *testing.T) {
	rec, err := process(t, frames(
		`0:"Hello, "`,
		`0:"world!"`,
		`e:{"finishReason":"stop","usage":{"promptTokens":10,"completionTokens":5},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":10,"completionTokens":5}}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checkUpdates(t, rec.updates, []*Message{
		assistant("id-0", 1, "Hello, "),
		assistant("id-0", 2, "Hello, world!"),
	})
	checkFinish(t, rec, FinishInfo{
		Message:      assistant("id-0", 2, "Hello, world!"),
		FinishReason: llmprovider.FinishReasonStop,
		Usage:        llmprovider.NewUsage(10, 5),
	})
}

func TestProcessResponse_ServerSideToolRoundtrip(t *testing.T) {
	rec, err := process(t, frames(
		`9:{"toolCallId":"tool-call-id","toolName":"tool-name","args":{"city":"London"}}`,
		`a:{"toolCallId":"tool-call-id","result":{"weather":"sunny"}}`,
		`e:{"finishReason":"tool-calls","usage":{"promptTokens":10,"completionTokens":5},"isContinued":false}`,
		`0:"The weather in London is sunny."`,
		`e:{"finishReason":"stop","usage":{"promptTokens":2,"completionTokens":4},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":12,"completionTokens":9}}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := ToolInvocation{
		State:      ToolStateCall,
		ToolCallID: "tool-call-id",
		ToolName:   "tool-name",
		Args:       map[string]any{"city": "London"},
		Step:       step(0),
	}
	result := call
	result.State = ToolStateResult
	result.Result = map[string]any{"weather": "sunny"}

	m1 := assistant("id-0", 1, "")
	m1.ToolInvocations = []ToolInvocation{call}
	m2 := assistant("id-0", 2, "")
	m2.ToolInvocations = []ToolInvocation{result}
	m3 := assistant("id-0", 3, "The weather in London is sunny.")
	m3.ToolInvocations = []ToolInvocation{result}

	checkUpdates(t, rec.updates, []*Message{m1, m2, m3})
	checkFinish(t, rec, FinishInfo{
		Message:      m3,
		FinishReason: llmprovider.FinishReasonStop,
		Usage:        llmprovider.NewUsage(12, 9),
	})
}

func TestProcessResponse_ExistingAssistantMessage(t *testing.T) {
	earlier := ToolInvocation{
		State:      ToolStateResult,
		ToolCallID: "tool-call-id-original",
		ToolName:   "tool-name-original",
		Args:       map[string]any{},
		Result:     "original-result",
		Step:       step(0),
	}
	created := testTime.Add(-time.Hour)
	last := &Message{
		ID:              "original-id",
		Role:            llmprovider.RoleAssistant,
		ToolInvocations: []ToolInvocation{earlier},
		CreatedAt:       created,
	}

	rec, err := process(t, frames(
		`f:{"messageId":"step_123"}`,
		`9:{"toolCallId":"tool-call-id","toolName":"tool-name","args":{"city":"London"}}`,
		`a:{"toolCallId":"tool-call-id","result":{"weather":"sunny"}}`,
		`e:{"finishReason":"tool-calls","usage":{"promptTokens":10,"completionTokens":5},"isContinued":false}`,
		`0:"The weather in London is sunny."`,
		`e:{"finishReason":"stop","usage":{"promptTokens":2,"completionTokens":4},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":12,"completionTokens":9}}`,
	), last)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, u := range rec.updates {
		if !u.ReplaceLastMessage {
			t.Errorf("update %d: ReplaceLastMessage = false", i)
		}
		if u.Message.ID != "original-id" || !u.Message.CreatedAt.Equal(created) {
			t.Errorf("update %d: id %q created %v, want original", i, u.Message.ID, u.Message.CreatedAt)
		}
	}

	if len(rec.finishes) != 1 {
		t.Fatalf("expected 1 finish call, got %d", len(rec.finishes))
	}
	final := rec.finishes[0].Message
	if final.Content != "The weather in London is sunny." {
		t.Errorf("Content = %q", final.Content)
	}
	if len(final.ToolInvocations) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(final.ToolInvocations))
	}
	if !reflect.DeepEqual(final.ToolInvocations[0], earlier) {
		t.Errorf("earlier invocation changed: %#v", final.ToolInvocations[0])
	}
	if s := final.ToolInvocations[1].Step; s == nil || *s != 1 {
		t.Errorf("new invocation step = %v, want 1", s)
	}
	if last.Content != "" || len(last.ToolInvocations) != 1 {
		t.Error("caller's last message was mutated")
	}
}

func TestProcessResponse_ContinueRoundtrip(t *testing.T) {
	rec, err := process(t, frames(
		`0:"The weather in London "`,
		`e:{"finishReason":"length","usage":{"promptTokens":10,"completionTokens":5},"isContinued":true}`,
		`0:"is sunny."`,
		`e:{"finishReason":"stop","usage":{"promptTokens":2,"completionTokens":4},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":12,"completionTokens":9}}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checkUpdates(t, rec.updates, []*Message{
		assistant("id-0", 1, "The weather in London "),
		assistant("id-0", 2, "The weather in London is sunny."),
	})
	checkFinish(t, rec, FinishInfo{
		Message:      assistant("id-0", 2, "The weather in London is sunny."),
		FinishReason: llmprovider.FinishReasonStop,
		Usage:        llmprovider.NewUsage(12, 9),
	})
}

func TestProcessResponse_DelayedAnnotations(t *testing.T) {
	rec, err := process(t, frames(
		`0:"text"`,
		`e:{"finishReason":"stop","usage":{"promptTokens":10,"completionTokens":5},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":10,"completionTokens":5}}`,
		`8:[{"example":"annotation"}]`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	annotated := assistant("id-0", 2, "text")
	annotated.Annotations = []json.RawMessage{raw(`{"example":"annotation"}`)}

	checkUpdates(t, rec.updates, []*Message{assistant("id-0", 1, "text"), annotated})
	checkFinish(t, rec, FinishInfo{
		Message:      annotated,
		FinishReason: llmprovider.FinishReasonStop,
		Usage:        llmprovider.NewUsage(10, 5),
	})
}

func TestProcessResponse_AnnotationsInChunks(t *testing.T) {
	rec, err := process(t, frames(
		`8:["annotation1"]`,
		`0:"t1"`,
		`8:["annotation2"]`,
		`0:"t2"`,
		`e:{"finishReason":"stop","usage":{"promptTokens":10,"completionTokens":5},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":10,"completionTokens":5}}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	one := []json.RawMessage{raw(`"annotation1"`)}
	both := []json.RawMessage{raw(`"annotation1"`), raw(`"annotation2"`)}
	m1 := assistant("id-0", 1, "")
	m1.Annotations = one
	m2 := assistant("id-0", 2, "t1")
	m2.Annotations = one
	m3 := assistant("id-0", 3, "t1")
	m3.Annotations = both
	m4 := assistant("id-0", 4, "t1t2")
	m4.Annotations = both

	checkUpdates(t, rec.updates, []*Message{m1, m2, m3, m4})
}

func TestProcessResponse_ToolCallStreaming(t *testing.T) {
	rec, err := process(t, frames(
		`b:{"toolCallId":"tool-call-0","toolName":"test-tool"}`,
		`c:{"toolCallId":"tool-call-0","argsTextDelta":"{\"testArg\":\"t"}`,
		`c:{"toolCallId":"tool-call-0","argsTextDelta":"est-value\"}"}`,
		`9:{"toolCallId":"tool-call-0","toolName":"test-tool","args":{"testArg":"test-value"}}`,
		`a:{"toolCallId":"tool-call-0","result":"test-result"}`,
		`e:{"finishReason":"tool-calls","usage":{"promptTokens":10,"completionTokens":5},"isContinued":false}`,
		`d:{"finishReason":"tool-calls","usage":{"promptTokens":10,"completionTokens":5}}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	with := func(rev int64, inv ToolInvocation) *Message {
		m := assistant("id-0", rev, "")
		m.ToolInvocations = []ToolInvocation{inv}
		return m
	}
	base := ToolInvocation{State: ToolStatePartialCall, ToolCallID: "tool-call-0", ToolName: "test-tool"}
	partial1 := base
	partial1.Args = map[string]any{"testArg": "t"}
	partial2 := base
	partial2.Args = map[string]any{"testArg": "test-value"}
	call := partial2
	call.State = ToolStateCall
	call.Step = step(0)
	result := call
	result.State = ToolStateResult
	result.Result = "test-result"

	checkUpdates(t, rec.updates, []*Message{
		with(1, base),
		with(2, partial1),
		with(3, partial2),
		with(4, call),
		with(5, result),
	})
	checkFinish(t, rec, FinishInfo{
		Message:      with(5, result),
		FinishReason: llmprovider.FinishReasonToolCalls,
		Usage:        llmprovider.NewUsage(10, 5),
	})
}

func TestProcessResponse_ServerProvidesMessageID(t *testing.T) {
	rec, err := process(t, frames(
		`f:{"messageId":"step_123"}`,
		`0:"Hello, "`,
		`0:"world!"`,
		`e:{"finishReason":"stop","usage":{"promptTokens":10,"completionTokens":5},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":10,"completionTokens":5}}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checkUpdates(t, rec.updates, []*Message{
		assistant("step_123", 1, "Hello, "),
		assistant("step_123", 2, "Hello, world!"),
	})
}

func TestProcessResponse_Reasoning(t *testing.T) {
	rec, err := process(t, frames(
		`g:"I will open the conversation"`,
		`g:" with witty banter."`,
		`j:{"signature":"1234567890"}`,
		`i:{"data":"redacted-data"}`,
		`g:"Then ask a question."`,
		`0:"Hello!"`,
		`e:{"finishReason":"stop","isContinued":false}`,
		`d:{"finishReason":"stop"}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final := rec.finishes[0].Message
	if final.Reasoning != "I will open the conversation with witty banter.Then ask a question." {
		t.Errorf("Reasoning = %q", final.Reasoning)
	}
	want := []ReasoningDetail{
		{Type: ReasoningTypeText, Text: "I will open the conversation with witty banter.", Signature: "1234567890"},
		{Type: ReasoningTypeRedacted, Data: "redacted-data"},
		{Type: ReasoningTypeText, Text: "Then ask a question."},
	}
	if !reflect.DeepEqual(final.ReasoningDetails, want) {
		t.Errorf("ReasoningDetails = %#v", final.ReasoningDetails)
	}
	if len(rec.updates) != 6 {
		t.Errorf("expected 6 updates, got %d", len(rec.updates))
	}
}

func TestProcessResponse_Sources(t *testing.T) {
	rec, err := process(t, frames(
		`h:{"sourceType":"url","id":"s1","url":"https://example.com","title":"Example"}`,
		`d:{"finishReason":"stop"}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []llmprovider.Source{{SourceType: "url", ID: "s1", URL: "https://example.com", Title: "Example"}}
	if !reflect.DeepEqual(rec.finishes[0].Message.Sources, want) {
		t.Errorf("Sources = %#v", rec.finishes[0].Message.Sources)
	}
}

func TestProcessResponse_Data(t *testing.T) {
	rec, err := process(t, frames(
		`2:[{"progress":1}]`,
		`2:[{"progress":2}]`,
		`d:{"finishReason":"stop"}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(rec.updates))
	}
	if got := rec.updates[0].Data; len(got) != 1 {
		t.Errorf("first snapshot data = %s, want one value", got)
	}
	want := []json.RawMessage{raw(`{"progress":1}`), raw(`{"progress":2}`)}
	if !reflect.DeepEqual(rec.updates[1].Data, want) {
		t.Errorf("second snapshot data = %s", rec.updates[1].Data)
	}
}

func TestProcessResponse_UsageFallsBackToFinish(t *testing.T) {
	rec, err := process(t, frames(
		`0:"x"`,
		`d:{"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":4}}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.finishes[0].Usage; got != llmprovider.NewUsage(3, 4) {
		t.Errorf("Usage = %+v", got)
	}
}

func TestProcessResponse_InvalidToolArgsAreLocal(t *testing.T) {
	rec, err := process(t, frames(
		`9:{"toolCallId":"t1","toolName":"w","args":"{\"city\":"}`,
		`0:"continuing"`,
		`d:{"finishReason":"stop"}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	final := rec.finishes[0].Message
	inv := final.ToolInvocations[0]
	if inv.State != ToolStateCall || inv.Err == "" {
		t.Errorf("invocation = %#v, want call state with error", inv)
	}
	if inv.Args != `{"city":` {
		t.Errorf("Args = %#v, want raw text", inv.Args)
	}
	if final.Content != "continuing" {
		t.Errorf("Content = %q", final.Content)
	}
}

func TestProcessResponse_Failures(t *testing.T) {
	tests := []struct {
		name    string
		wire    string
		isError func(error) bool
	}{
		{
			"result for unknown tool call",
			frames(`a:{"toolCallId":"nope","result":1}`),
			llmprovider.IsProtocolViolation,
		},
		{
			"result for partial call",
			frames(
				`c:{"toolCallId":"t1","argsTextDelta":"{\"a\":1}"}`,
				`a:{"toolCallId":"t1","result":1}`,
			),
			llmprovider.IsProtocolViolation,
		},
		{
			"duplicate finish",
			frames(`d:{"finishReason":"stop"}`, `d:{"finishReason":"stop"}`),
			llmprovider.IsProtocolViolation,
		},
		{
			"text after finish",
			frames(`d:{"finishReason":"stop"}`, `0:"late"`),
			llmprovider.IsProtocolViolation,
		},
		{
			"duplicate tool call",
			frames(
				`9:{"toolCallId":"t1","toolName":"w","args":{}}`,
				`9:{"toolCallId":"t1","toolName":"w","args":{}}`,
			),
			llmprovider.IsProtocolViolation,
		},
		{
			"delta after complete call",
			frames(
				`9:{"toolCallId":"t1","toolName":"w","args":{}}`,
				`c:{"toolCallId":"t1","argsTextDelta":"x"}`,
			),
			llmprovider.IsProtocolViolation,
		},
		{
			"malformed frame",
			frames(`0:"ok"`, `0:nope`),
			llmprovider.IsDecodeError,
		},
		{
			"error frame",
			frames(`0:"ok"`, `3:"upstream failed"`),
			func(err error) bool {
				var remote *llmprovider.RemoteError
				return errors.As(err, &remote) && remote.Message == "upstream failed"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := process(t, tt.wire, nil)
			if err == nil || !tt.isError(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if len(rec.finishes) != 0 {
				t.Error("OnFinish called after failure")
			}
		})
	}
}

func TestProcessResponse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	finished := false
	_, err := ProcessResponse(ctx, strings.NewReader(frames(`0:"x"`)), ProcessOptions{
		OnFinish: func(FinishInfo) { finished = true },
	})
	if !llmprovider.IsAborted(err) {
		t.Errorf("expected aborted error, got %v", err)
	}
	if finished {
		t.Error("OnFinish called after cancellation")
	}
}

func TestProcessResponse_RevisionsIncrease(t *testing.T) {
	rec, err := process(t, frames(
		`0:"a"`, `g:"b"`, `8:[1]`, `0:"c"`, `2:[2]`,
		`e:{"finishReason":"stop","isContinued":false}`,
		`8:[3]`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var prev int64
	for i, u := range rec.updates {
		if u.Message.RevisionID <= prev {
			t.Errorf("update %d: revision %d not after %d", i, u.Message.RevisionID, prev)
		}
		prev = u.Message.RevisionID
	}
	if len(rec.updates) != 6 {
		t.Errorf("expected 6 updates, got %d", len(rec.updates))
	}
}

func TestProcessResponse_ContinuedMessageKeepsRevisionOrder(t *testing.T) {
	first, err := process(t, frames(`0:"Hello"`, `d:{"finishReason":"length"}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored := first.finishes[0].Message
	if stored.RevisionID != 1 {
		t.Fatalf("stored revision = %d, want 1", stored.RevisionID)
	}

	second, err := process(t, frames(`0:", world"`, `0:"!"`, `d:{"finishReason":"stop"}`), stored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{2, 3}
	if len(second.updates) != len(want) {
		t.Fatalf("expected %d updates, got %d", len(want), len(second.updates))
	}
	for i, u := range second.updates {
		if u.Message.ID != stored.ID || u.Message.RevisionID != want[i] {
			t.Errorf("update %d: id %q revision %d, want %q revision %d", i, u.Message.ID, u.Message.RevisionID, stored.ID, want[i])
		}
	}
	if got := second.finishes[0].Message.Content; got != "Hello, world!" {
		t.Errorf("Content = %q", got)
	}
}

func TestProcessResponse_ToolCallDeltaWithoutStart(t *testing.T) {
	rec, err := process(t, frames(
		`c:{"toolCallId":"t1","argsTextDelta":"{\"a\":"}`,
		`c:{"toolCallId":"t1","argsTextDelta":"1}"}`,
		`9:{"toolCallId":"t1","toolName":"calc","args":{"a":1}}`,
		`d:{"finishReason":"tool-calls"}`,
	), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	partial := rec.updates[0].Message.ToolInvocations
	if len(partial) != 1 || partial[0].State != ToolStatePartialCall || partial[0].ToolName != "" || partial[0].Step != nil {
		t.Errorf("first update invocations = %#v, want one unnamed partial call", partial)
	}
	final := rec.finishes[0].Message.ToolInvocations
	if len(final) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(final))
	}
	inv := final[0]
	if inv.State != ToolStateCall || inv.ToolName != "calc" || !reflect.DeepEqual(inv.Args, map[string]any{"a": float64(1)}) {
		t.Errorf("final invocation = %#v", inv)
	}
}
