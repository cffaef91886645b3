package streamtext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	llmprovider "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/internal/partialjson"
)

// ErrNoObjectGenerated is returned when the generated text is not a valid
// object of the requested type.
var ErrNoObjectGenerated = errors.New("streamtext: no object generated")

// GenerateText runs a generation to the end and returns its response.
func GenerateText(ctx context.Context, opts Options) (*Response, error) {
	result, err := Stream(ctx, opts)
	if err != nil {
		return nil, err
	}
	return result.Wait(ctx)
}

// GenerateObject runs a generation in JSON mode and decodes its text into T.
// The response is returned with decode failures so the text can be inspected.
func GenerateObject[T any](ctx context.Context, opts Options) (T, *Response, error) {
	var obj T
	resp, err := GenerateText(ctx, withJSONFormat(opts))
	if err != nil {
		return obj, nil, err
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &obj); err != nil {
		return obj, resp, fmt.Errorf("%w: %w", ErrNoObjectGenerated, err)
	}
	return obj, resp, nil
}

func withJSONFormat(opts Options) Options {
	if opts.Request == nil {
		return opts
	}
	req := opts.Request.Clone()
	params := llmprovider.RequestParams{}
	if req.Params != nil {
		params = *req.Params
	}
	if params.ResponseFormat == nil {
		params.ResponseFormat = &llmprovider.ResponseFormat{Type: "json_object"}
	}
	req.Params = &params
	opts.Request = req
	return opts
}

// extractJSON strips a surrounding markdown code fence.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

// ObjectStream yields the partial objects of a JSON generation.
type ObjectStream struct {
	result *Result
	text   *TextStream
	buffer strings.Builder
	last   any
}

// StreamObject starts a generation in JSON mode whose text is parsed as it
// arrives.
func StreamObject(ctx context.Context, opts Options) (*ObjectStream, error) {
	result, err := Stream(ctx, withJSONFormat(opts))
	if err != nil {
		return nil, err
	}
	return &ObjectStream{result: result, text: result.TextStream()}, nil
}

// Next returns the next distinct partial object. It returns io.EOF after the
// last one of a successful generation.
func (s *ObjectStream) Next() (any, error) {
	for {
		delta, err := s.text.Next()
		if err != nil {
			return nil, err
		}
		s.buffer.WriteString(delta)

		value, state := partialjson.Parse(extractJSON(s.buffer.String()))
		if state != partialjson.StateSuccessful && state != partialjson.StateRepaired {
			continue
		}
		if reflect.DeepEqual(value, s.last) {
			continue
		}
		s.last = value
		return value, nil
	}
}

// Object waits for the generation and decodes the complete text into dst.
func (s *ObjectStream) Object(ctx context.Context, dst any) error {
	for {
		if _, err := s.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
	}
	if err := json.Unmarshal([]byte(extractJSON(s.buffer.String())), dst); err != nil {
		return fmt.Errorf("%w: %w", ErrNoObjectGenerated, err)
	}
	_, err := s.result.Wait(ctx)
	return err
}

// Result returns the underlying generation.
func (s *ObjectStream) Result() *Result {
	return s.result
}

// Close detaches the stream from the generation.
func (s *ObjectStream) Close() {
	s.text.Close()
}
