// Package streamtext runs multi-step generations against a provider and fans
// the resulting part stream out to any number of consumers.
//
// A generation is one assistant turn. Each step sends a request to the
// provider; when a step ends in tool calls whose results are all available, or
// is cut off by the token limit and continuation is enabled, another step is
// requested with the step's output appended to the conversation. The parts of
// every step are merged into one stream:
//
//	step-start, model parts, tool results, step-finish, ..., finish
//
// Stream returns a Result whose views (text, full part stream, wire data
// stream, message snapshots) and futures (text, usage, steps, ...) are fed by a
// single pass over that stream.
package streamtext

import (
	"log/slog"

	llmprovider "github.com/haowjy/meridian-stream-go"
)

// Options configures a generation.
type Options struct {
	// Provider serves each step. Required.
	Provider llmprovider.Provider

	// Request holds the model, the conversation so far and the request
	// parameters. Required. It is not modified.
	Request *llmprovider.GenerateRequest

	// Tools are the tools the model may call. Tools with an Execute function
	// run between steps; calls to other tools stay pending for the caller.
	// When set and Request.Params carries no tools, their definitions are
	// added to every step request.
	Tools *llmprovider.ToolSet

	// MaxSteps bounds the number of steps. Zero means 1.
	MaxSteps int

	// ContinueSteps requests another step when a step stops on the token
	// limit. The continuation's text extends the same message.
	ContinueSteps bool

	// Transforms rewrite the parts of each step before they are emitted,
	// in order.
	Transforms []Transform

	// GenerateID creates the message id. Defaults to llmprovider.NewIDGenerator("msg").
	GenerateID llmprovider.IDGenerator

	// Clock stamps the assembled message. Defaults to llmprovider.RealClock().
	Clock llmprovider.Clock

	// Validation checks each step request. Defaults to the global engine.
	Validation *llmprovider.ValidationEngine

	Logger *slog.Logger

	// OnStepFinish is called after each step, from the stream goroutine.
	OnStepFinish func(StepResult)

	// OnFinish is called once when the generation completes, from the stream
	// goroutine before the views end. It must not wait on the Result. It is
	// not called on error or cancellation.
	OnFinish func(*Response)
}

func (o Options) withDefaults() (Options, error) {
	if o.Provider == nil {
		return o, &llmprovider.ValidationError{Field: "provider", Reason: "is required", Err: llmprovider.ErrInvalidRequest}
	}
	if o.Request == nil {
		return o, &llmprovider.ValidationError{Field: "request", Reason: "is required", Err: llmprovider.ErrInvalidRequest}
	}
	if o.MaxSteps == 0 {
		o.MaxSteps = 1
	}
	if o.MaxSteps < 1 {
		return o, &llmprovider.ValidationError{Field: "max_steps", Value: o.MaxSteps, Reason: "must be at least 1", Err: llmprovider.ErrInvalidRequest}
	}
	if err := llmprovider.ValidateRequestParams(o.Request.Params); err != nil {
		return o, err
	}
	if o.GenerateID == nil {
		o.GenerateID = llmprovider.NewIDGenerator("msg")
	}
	if o.Clock == nil {
		o.Clock = llmprovider.RealClock()
	}
	if o.Validation == nil {
		o.Validation = llmprovider.GetValidationEngine()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o, nil
}
