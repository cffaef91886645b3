package llmprovider

import (
	"context"
	"errors"
	"fmt"
)

// Request and provider failures. Match with errors.Is.
var (
	ErrInvalidModel        = errors.New("llmprovider: model not supported")
	ErrInvalidAPIKey       = errors.New("llmprovider: missing or rejected API key")
	ErrRateLimited         = errors.New("llmprovider: rate limited")
	ErrUnsupportedFeature  = errors.New("llmprovider: feature not supported by model")
	ErrInvalidRequest      = errors.New("llmprovider: bad request")
	ErrProviderUnavailable = errors.New("llmprovider: provider unreachable")
)

// Stream failures. Decode and protocol errors end the stream; tool errors are
// local to one tool call.
var (
	// ErrDecode indicates a malformed data stream frame. Fatal to the stream.
	ErrDecode = errors.New("llmprovider: malformed stream frame")

	// ErrProtocolViolation indicates a well-formed stream whose parts break the
	// protocol (result for an unknown tool call, duplicate finish, ...). Fatal to the stream.
	ErrProtocolViolation = errors.New("llmprovider: stream protocol violation")

	// ErrToolArguments indicates tool call arguments that could not be parsed or validated.
	// Local to the affected tool call.
	ErrToolArguments = errors.New("llmprovider: invalid tool arguments")

	// ErrNoSuchTool indicates a tool call for a tool that is not available.
	// Local to the affected tool call.
	ErrNoSuchTool = errors.New("llmprovider: no such tool")

	// ErrToolExecution indicates a tool's execute function failed.
	// Local to the affected tool call.
	ErrToolExecution = errors.New("llmprovider: tool execution failed")

	// ErrAborted indicates the caller cancelled the generation.
	// Not a failure: the finish callback is suppressed.
	ErrAborted = errors.New("llmprovider: generation aborted")

	// ErrNoSuchProvider indicates a registry lookup for an unknown provider.
	ErrNoSuchProvider = errors.New("llmprovider: no such provider")
)

// ModelError reports a model the provider or the capability registry does
// not know, or a feature the model lacks. Model is empty for provider-level
// failures.
type ModelError struct {
	Model    string
	Provider string
	Reason   string
	Err      error // ErrInvalidModel, ErrUnsupportedFeature or ErrNoSuchProvider
}

func (e *ModelError) Error() string {
	msg := fmt.Sprintf("provider '%s'", e.Provider)
	if e.Model != "" {
		msg = fmt.Sprintf("model '%s' for %s", e.Model, msg)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *ModelError) Unwrap() error { return e.Err }

// ValidationError reports a request field with an out-of-range or malformed value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
	Err    error // usually ErrInvalidRequest
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProviderError is a failed call to a provider API. Retryable is decided by
// the adapter from the status code and takes precedence over Err in
// IsRetryable.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when the failure was not an HTTP response
	Message    string
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("provider '%s' error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("provider '%s' error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DecodeError reports a data stream frame that could not be decoded.
type DecodeError struct {
	Line  int    // 1-based line number of the frame
	Code  string // Type code of the frame, if one was read
	Frame string // The offending frame, truncated
	Err   error  // Underlying cause
}

func (e *DecodeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("decode frame %d (code %q): %v", e.Line, e.Code, e.Err)
	}
	return fmt.Sprintf("decode frame %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// ProtocolError reports a stream whose parts violate the protocol.
type ProtocolError struct {
	Reason     string
	ToolCallID string // Set when the violation concerns a tool call
}

func (e *ProtocolError) Error() string {
	if e.ToolCallID != "" {
		return fmt.Sprintf("protocol violation: %s (tool call %s)", e.Reason, e.ToolCallID)
	}
	return "protocol violation: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolViolation
}

// ToolArgumentsError reports tool call arguments that failed to parse or validate.
type ToolArgumentsError struct {
	ToolCallID string
	ToolName   string
	Args       string // Raw argument text
	Err        error
}

func (e *ToolArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s (call %s): %v", e.ToolName, e.ToolCallID, e.Err)
}

func (e *ToolArgumentsError) Unwrap() []error {
	return []error{ErrToolArguments, e.Err}
}

// NoSuchToolError reports a tool call for a tool that is not in the tool set.
type NoSuchToolError struct {
	ToolCallID     string
	ToolName       string
	AvailableTools []string
}

func (e *NoSuchToolError) Error() string {
	if len(e.AvailableTools) == 0 {
		return fmt.Sprintf("model tried to call unavailable tool '%s', no tools are available", e.ToolName)
	}
	return fmt.Sprintf("model tried to call unavailable tool '%s', available tools: %v", e.ToolName, e.AvailableTools)
}

func (e *NoSuchToolError) Unwrap() error {
	return ErrNoSuchTool
}

// ToolExecutionError wraps an error returned by a tool's execute function.
type ToolExecutionError struct {
	ToolCallID string
	ToolName   string
	Err        error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.ToolName, e.ToolCallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() []error {
	return []error{ErrToolExecution, e.Err}
}

// RemoteError is an error reported by the producer of a data stream
// (an error frame). Only its message crosses the wire.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// IsRetryable reports whether repeating the request may succeed.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrProviderUnavailable)
}

// IsInvalidRequest reports whether the request itself must change before
// it can succeed.
func IsInvalidRequest(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidModel) ||
		errors.Is(err, ErrUnsupportedFeature)
}

// IsAuthError reports a missing or rejected credential.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrInvalidAPIKey) {
		return true
	}
	var pe *ProviderError
	return errors.As(err, &pe) && (pe.StatusCode == 401 || pe.StatusCode == 403)
}

// IsDecodeError checks if an error came from a malformed stream frame.
func IsDecodeError(err error) bool {
	return errors.Is(err, ErrDecode)
}

// IsProtocolViolation checks if an error is a stream protocol violation.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}

// IsToolError checks if an error is local to a single tool call
// (bad arguments, unknown tool, failed execution).
func IsToolError(err error) bool {
	return errors.Is(err, ErrToolArguments) ||
		errors.Is(err, ErrNoSuchTool) ||
		errors.Is(err, ErrToolExecution)
}

// IsAborted checks if an error is a caller cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}
