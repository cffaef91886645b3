package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	llmprovider "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/datastream"
)

// Snapshot is one observable state of the assembled message.
type Snapshot struct {
	Message *Message
	Data    []json.RawMessage

	// ReplaceLastMessage is set when Message continues the caller's last
	// message instead of following it.
	ReplaceLastMessage bool
}

// ProcessOptions configures ProcessResponse.
type ProcessOptions struct {
	AssemblerOptions

	// OnUpdate is called with every snapshot, in order.
	OnUpdate func(Snapshot)

	// OnFinish is called once when the stream ends normally. It is not called
	// on error or cancellation.
	OnFinish func(FinishInfo)
}

// ProcessResponse decodes a data stream from r and assembles it into one
// assistant message.
//
// Cancellation of ctx is observed between frames; callers whose reader can
// block indefinitely should close it on cancellation. A cancelled run returns
// an error matching llmprovider.ErrAborted and skips OnFinish.
func ProcessResponse(ctx context.Context, r io.Reader, opts ProcessOptions) (*FinishInfo, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	asm := NewAssembler(opts.AssemblerOptions)
	dec := datastream.NewDecoder(r)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", llmprovider.ErrAborted, err)
		}

		part, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", llmprovider.ErrAborted, ctxErr)
			}
			return nil, err
		}

		msg, err := asm.Apply(part)
		if err != nil {
			var argsErr *llmprovider.ToolArgumentsError
			if !errors.As(err, &argsErr) {
				opts.Logger.Error("data stream processing failed",
					"line", dec.Line(),
					"part", part.Type(),
					"error", err)
				return nil, err
			}
		}
		if msg != nil && opts.OnUpdate != nil {
			opts.OnUpdate(Snapshot{
				Message:            msg,
				Data:               slices.Clone(asm.Data()),
				ReplaceLastMessage: asm.ReplaceLastMessage(),
			})
		}
	}

	info := asm.Finish()
	opts.Logger.Debug("data stream processed",
		"message_id", info.Message.ID,
		"finish_reason", info.FinishReason,
		"total_tokens", info.Usage.TotalTokens)
	if opts.OnFinish != nil {
		opts.OnFinish(info)
	}
	return &info, nil
}
