package streamtext

import (
	"context"
	"reflect"
	"testing"
	"time"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

func runTransform(t *testing.T, tr Transform, parts ...llmprovider.Part) []llmprovider.Part {
	t.Helper()
	in := make(chan llmprovider.Part, len(parts))
	for _, p := range parts {
		in <- p
	}
	close(in)

	var out []llmprovider.Part
	for p := range tr(context.Background(), in) {
		out = append(out, p)
	}
	return out
}

func TestSmoothStream(t *testing.T) {
	smooth := SmoothStream(SmoothOptions{Delay: 10 * time.Millisecond, Clock: llmprovider.FixedClock{T: testTime}})
	stop := finish(llmprovider.FinishReasonStop, 1, 1)

	tests := []struct {
		name string
		in   []llmprovider.Part
		want []llmprovider.Part
	}{
		{
			name: "splits into words",
			in: []llmprovider.Part{
				llmprovider.TextDelta{Text: "Hel"},
				llmprovider.TextDelta{Text: "lo wor"},
				llmprovider.TextDelta{Text: "ld! How are you?"},
				stop,
			},
			want: []llmprovider.Part{
				llmprovider.TextDelta{Text: "Hello "},
				llmprovider.TextDelta{Text: "world! "},
				llmprovider.TextDelta{Text: "How "},
				llmprovider.TextDelta{Text: "are "},
				llmprovider.TextDelta{Text: "you?"},
				stop,
			},
		},
		{
			name: "flushes before other parts only when terminal",
			in: []llmprovider.Part{
				llmprovider.TextDelta{Text: "Hi th"},
				llmprovider.ReasoningDelta{Text: "r"},
				llmprovider.TextDelta{Text: "ere"},
				stop,
			},
			want: []llmprovider.Part{
				llmprovider.TextDelta{Text: "Hi "},
				llmprovider.ReasoningDelta{Text: "r"},
				llmprovider.TextDelta{Text: "there"},
				stop,
			},
		},
		{
			name: "keeps leading whitespace with the word",
			in: []llmprovider.Part{
				llmprovider.TextDelta{Text: "  indented line\n"},
				stop,
			},
			want: []llmprovider.Part{
				llmprovider.TextDelta{Text: "  indented "},
				llmprovider.TextDelta{Text: "line\n"},
				stop,
			},
		},
		{
			name: "flushes on closed input",
			in:   []llmprovider.Part{llmprovider.TextDelta{Text: "tail"}},
			want: []llmprovider.Part{llmprovider.TextDelta{Text: "tail"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runTransform(t, smooth, tt.in...)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v\nwant %#v", got, tt.want)
			}
		})
	}
}

func TestStream_AppliesTransforms(t *testing.T) {
	provider := &scriptedProvider{steps: [][]llmprovider.Part{{
		llmprovider.TextDelta{Text: "one tw"},
		llmprovider.TextDelta{Text: "o three"},
		finish(llmprovider.FinishReasonStop, 1, 1),
	}}}
	opts := testOptions(provider)
	opts.Transforms = []Transform{SmoothStream(SmoothOptions{})}

	result, err := Stream(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	text := result.TextStream()
	var deltas []string
	for {
		d, err := text.Next()
		if err != nil {
			break
		}
		deltas = append(deltas, d)
	}
	if want := []string{"one ", "two ", "three"}; !reflect.DeepEqual(deltas, want) {
		t.Errorf("deltas = %q, want %q", deltas, want)
	}
	if got, _ := result.Text(context.Background()); got != "one two three" {
		t.Errorf("Text() = %q", got)
	}
}
