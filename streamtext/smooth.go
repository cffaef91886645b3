package streamtext

import (
	"context"
	"regexp"
	"time"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// Transform rewrites the parts of one step. It must close its output after
// in is closed and stop early when ctx is done.
type Transform func(ctx context.Context, in <-chan llmprovider.Part) <-chan llmprovider.Part

// SmoothOptions configures SmoothStream.
type SmoothOptions struct {
	// Delay between emitted words. Zero emits without pausing.
	Delay time.Duration

	// Clock paces the delay. Defaults to llmprovider.RealClock().
	Clock llmprovider.Clock
}

// A complete word with optional leading and required trailing whitespace.
var wordPattern = regexp.MustCompile(`^\s*\S+\s+`)

// SmoothStream re-chunks text deltas into whole words, pausing between them.
// Text still buffered when the step ends is emitted before the step's finish.
func SmoothStream(opts SmoothOptions) Transform {
	if opts.Clock == nil {
		opts.Clock = llmprovider.RealClock()
	}

	return func(ctx context.Context, in <-chan llmprovider.Part) <-chan llmprovider.Part {
		out := make(chan llmprovider.Part)
		go func() {
			defer close(out)
			var buffer string

			flush := func() bool {
				if buffer == "" {
					return true
				}
				text := buffer
				buffer = ""
				return llmprovider.Send(ctx, out, llmprovider.TextDelta{Text: text})
			}

			for p := range in {
				delta, isText := p.(llmprovider.TextDelta)
				if !isText {
					if llmprovider.IsTerminal(p) && !flush() {
						return
					}
					if !llmprovider.Send(ctx, out, p) {
						return
					}
					continue
				}

				buffer += delta.Text
				for {
					loc := wordPattern.FindStringIndex(buffer)
					if loc == nil {
						break
					}
					word := buffer[:loc[1]]
					buffer = buffer[loc[1]:]
					if !llmprovider.Send(ctx, out, llmprovider.TextDelta{Text: word}) {
						return
					}
					if opts.Delay > 0 {
						select {
						case <-opts.Clock.After(opts.Delay):
						case <-ctx.Done():
							return
						}
					}
				}
			}
			flush()
		}()
		return out
	}
}
