package partialjson

import (
	"reflect"
	"testing"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"complete object", `{"a":1}`, `{"a":1}`},
		{"open string value", `{"testArg":"t`, `{"testArg":"t"}`},
		{"open key", `{"test`, `{}`},
		{"dangling colon", `{"a": `, `{}`},
		{"dangling comma", `{"a": 1, `, `{"a": 1}`},
		{"nested", `{"a":{"b":[1,2`, `{"a":{"b":[1,2]}}`},
		{"partial literal", `{"ok":tr`, `{"ok":true}`},
		{"partial null in array", `[nu`, `[null]`},
		{"partial number", `{"n":12.`, `{"n":12}`},
		{"lone minus", `-`, ``},
		{"escape at end", `{"s":"a\`, `{"s":"a"}`},
		{"trailing content after value", `{"testArg":"test-value"}}`, `{"testArg":"test-value"}`},
		{"second root value is dropped", `[1] [2]`, `[1]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Repair(tt.input); got != tt.want {
				t.Errorf("Repair(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      any
		wantState State
	}{
		{"blank", "  ", nil, StateUndefined},
		{"valid", `{"a":"b"}`, map[string]any{"a": "b"}, StateSuccessful},
		{"truncated", `{"testArg":"t`, map[string]any{"testArg": "t"}, StateRepaired},
		{"concatenated overshoot", `{"testArg":"test-value"}}`, map[string]any{"testArg": "test-value"}, StateRepaired},
		{"malformed before the cut", `[1 2]`, nil, StateFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, state := Parse(tt.input)
			if state != tt.wantState {
				t.Fatalf("Parse(%q) state = %s, want %s", tt.input, state, tt.wantState)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestUnmarshal(t *testing.T) {
	var dst struct {
		Name  string   `json:"name"`
		Items []string `json:"items"`
	}

	state, err := Unmarshal(`{"name":"list","items":["a","b`, &dst)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if state != StateRepaired {
		t.Errorf("state = %s, want repaired-parse", state)
	}
	if dst.Name != "list" || !reflect.DeepEqual(dst.Items, []string{"a", "b"}) {
		t.Errorf("unexpected result: %+v", dst)
	}
}
