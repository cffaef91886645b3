package streamtext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	llmprovider "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/chat"
)

// sink receives everything a generation produces, in order.
type sink interface {
	part(ctx context.Context, p llmprovider.Part) error
	snapshot(ctx context.Context, s chat.Snapshot) error
}

// run is one pass of the orchestrator. It is used by a single goroutine.
type run struct {
	opts   Options
	logger *slog.Logger
	sink   sink

	state State
	asm   *chat.Assembler
}

func newRun(opts Options, s sink) *run {
	return &run{
		opts:   opts,
		logger: opts.Logger,
		sink:   s,
		state:  StateAwaitingStep,
		asm: chat.NewAssembler(chat.AssemblerOptions{
			GenerateID: opts.GenerateID,
			Clock:      opts.Clock,
			Logger:     opts.Logger,
		}),
	}
}

func (r *run) transition(next State) {
	if !r.state.CanTransition(next) {
		// Unreachable unless the step loop below is wrong.
		panic(fmt.Sprintf("streamtext: invalid transition %s -> %s", r.state, next))
	}
	r.logger.Debug("generation state", "from", r.state, "to", next)
	r.state = next
}

func (r *run) fail(err error) error {
	if r.state != StateError {
		r.transition(StateError)
	}
	return err
}

func aborted(err error) error {
	return fmt.Errorf("%w: %w", llmprovider.ErrAborted, err)
}

// emit sends p downstream and folds it into the assembled message.
func (r *run) emit(ctx context.Context, p llmprovider.Part) error {
	if err := r.sink.part(ctx, p); err != nil {
		return err
	}
	msg, err := r.asm.Apply(p)
	var argsErr *llmprovider.ToolArgumentsError
	if err != nil && !errors.As(err, &argsErr) {
		return err
	}
	if msg == nil {
		return nil
	}
	return r.sink.snapshot(ctx, chat.Snapshot{
		Message:            msg,
		Data:               slices.Clone(r.asm.Data()),
		ReplaceLastMessage: r.asm.ReplaceLastMessage(),
	})
}

type continuation int

const (
	continueNone continuation = iota
	continueLength
	continueTools
)

func (r *run) decide(step *StepResult) continuation {
	switch {
	case step.FinishReason == llmprovider.FinishReasonLength && r.opts.ContinueSteps:
		return continueLength
	case step.hasAllToolResults():
		return continueTools
	default:
		return continueNone
	}
}

// execute runs the steps of the generation and returns its response.
func (r *run) execute(ctx context.Context) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messageID := r.opts.GenerateID()
	conversation := slices.Clone(r.opts.Request.Messages)
	var (
		steps        []StepResult
		response     []llmprovider.Message
		usage        llmprovider.Usage
		finishReason llmprovider.FinishReason
		merge        bool
	)

	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(aborted(err))
		}
		r.transition(StateStepInFlight)

		req := r.stepRequest(append(slices.Clone(conversation), response...))
		warnings := r.opts.Validation.Validate(string(r.opts.Provider.Name()), req)
		for _, w := range warnings {
			r.logger.Warn("request validation warning",
				"step", index,
				"code", w.Code,
				"field", w.Field,
				"message", w.Message)
		}
		if err := r.emit(ctx, llmprovider.StepStart{MessageID: messageID, Request: req, Warnings: warnings}); err != nil {
			return nil, r.fail(r.classify(ctx, err))
		}

		step, err := r.runStep(ctx, index, req)
		if err != nil {
			return nil, r.fail(r.classify(ctx, err))
		}
		step.Request = req
		step.Warnings = warnings

		next := r.decide(step)
		budget := index+1 < r.opts.MaxSteps
		step.IsContinued = next == continueLength && budget
		usage = usage.Add(step.Usage)

		if err := r.emit(ctx, llmprovider.StepFinish{
			FinishReason: step.FinishReason,
			Usage:        step.Usage,
			IsContinued:  step.IsContinued,
		}); err != nil {
			return nil, r.fail(r.classify(ctx, err))
		}

		response, err = appendStepMessages(response, step, merge)
		if err != nil {
			return nil, r.fail(err)
		}
		merge = step.IsContinued
		steps = append(steps, *step)

		r.logger.Debug("step finished",
			"step", index,
			"finish_reason", step.FinishReason,
			"tool_calls", len(step.ToolCalls),
			"tool_results", len(step.ToolResults),
			"is_continued", step.IsContinued)
		if r.opts.OnStepFinish != nil {
			r.opts.OnStepFinish(*step)
		}

		if next != continueNone && budget {
			r.transition(StateStepFinishedContinue)
			r.transition(StateAwaitingStep)
			continue
		}

		r.transition(StateStepFinishedTerminal)
		finishReason = step.FinishReason
		if next != continueNone {
			finishReason = llmprovider.FinishReasonMaxSteps
			r.logger.Info("step budget exhausted", "max_steps", r.opts.MaxSteps)
		}
		break
	}

	last := steps[len(steps)-1]
	if err := r.emit(ctx, llmprovider.Finish{
		FinishReason:     finishReason,
		Usage:            usage,
		ProviderMetadata: last.ProviderMetadata,
	}); err != nil {
		return nil, r.classify(ctx, err)
	}

	info := r.asm.Finish()
	resp := &Response{
		Text:             info.Message.Content,
		Reasoning:        info.Message.Reasoning,
		Usage:            usage,
		FinishReason:     finishReason,
		Steps:            steps,
		Warnings:         steps[0].Warnings,
		Message:          info.Message,
		ResponseMessages: response,
	}
	for _, s := range steps {
		resp.ToolCalls = append(resp.ToolCalls, s.ToolCalls...)
		resp.ToolResults = append(resp.ToolResults, s.ToolResults...)
		resp.Sources = append(resp.Sources, s.Sources...)
	}
	return resp, nil
}

// classify turns errors caused by cancellation into ErrAborted.
func (r *run) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, llmprovider.ErrAborted) {
		return aborted(ctxErr)
	}
	return err
}

func (r *run) stepRequest(messages []llmprovider.Message) *llmprovider.GenerateRequest {
	req := r.opts.Request.Clone()
	req.Messages = messages
	if r.opts.Tools.Len() > 0 && (req.Params == nil || len(req.Params.Tools) == 0) {
		params := llmprovider.RequestParams{}
		if req.Params != nil {
			params = *req.Params
		}
		params.Tools = r.opts.Tools.Definitions()
		req.Params = &params
	}
	return req
}

type pendingCall struct {
	call llmprovider.ToolCall
	tool *llmprovider.Tool
	args []byte
}

// runStep streams one step from the provider and executes its tool calls.
func (r *run) runStep(ctx context.Context, index int, req *llmprovider.GenerateRequest) (*StepResult, error) {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	parts, err := r.opts.Provider.StreamResponse(stepCtx, req)
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", index, err)
	}
	for _, t := range r.opts.Transforms {
		parts = t(stepCtx, parts)
	}

	before := len(r.asm.Message().ReasoningDetails)
	reducer := chat.NewStepReducer(index)
	step := &StepResult{Index: index}
	var (
		finish  *llmprovider.Finish
		pending []pendingCall
	)

	for finish == nil {
		var (
			p  llmprovider.Part
			ok bool
		)
		select {
		case p, ok = <-parts:
		case <-ctx.Done():
			return nil, aborted(ctx.Err())
		}
		if !ok {
			break
		}

		switch p := p.(type) {
		case llmprovider.Finish:
			finish = &p
			continue

		case llmprovider.ErrorPart:
			if p.ToolCallID == "" {
				return nil, p.Err
			}

		case llmprovider.SourcePart:
			step.Sources = append(step.Sources, p.Source)

		case llmprovider.ToolCall:
			step.ToolCalls = append(step.ToolCalls, p)
			if err := r.emit(ctx, p); err != nil {
				return nil, err
			}
			if _, err := reducer.Reduce(p); err != nil {
				return nil, err
			}
			tool, args, err := r.opts.Tools.ParseToolCall(p)
			if err != nil {
				r.logger.Warn("tool call rejected", "tool_call_id", p.ToolCallID, "tool_name", p.ToolName, "error", err)
				if err := r.emit(ctx, llmprovider.ErrorPart{Err: err, ToolCallID: p.ToolCallID}); err != nil {
					return nil, err
				}
				continue
			}
			if tool.Execute != nil {
				pending = append(pending, pendingCall{call: p, tool: tool, args: args})
			}
			continue

		case llmprovider.StepStart, llmprovider.StepFinish, llmprovider.ToolResult:
			return nil, &llmprovider.ProtocolError{Reason: "provider emitted " + string(p.Type())}
		}

		if _, err := reducer.Reduce(p); err != nil {
			return nil, err
		}
		if err := r.emit(ctx, p); err != nil {
			return nil, err
		}
	}

	if finish == nil {
		if err := ctx.Err(); err != nil {
			return nil, aborted(err)
		}
		return nil, &llmprovider.ProtocolError{Reason: "provider stream ended without finish"}
	}

	step.Text = reducer.Text()
	step.Reasoning = reducer.Reasoning()
	step.FinishReason = finish.FinishReason
	step.Usage = finish.Usage
	step.ProviderMetadata = finish.ProviderMetadata
	if details := r.asm.Message().ReasoningDetails; len(details) > before {
		step.ReasoningDetails = details[before:]
	}

	results, err := r.executeTools(ctx, pending)
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		if res.err != nil {
			if err := r.emit(ctx, llmprovider.ErrorPart{Err: res.err, ToolCallID: res.call.ToolCallID}); err != nil {
				return nil, err
			}
			continue
		}
		result := llmprovider.ToolResult{
			ToolCallID: res.call.ToolCallID,
			ToolName:   res.call.ToolName,
			Args:       res.call.Args,
			Result:     res.output,
		}
		step.ToolResults = append(step.ToolResults, result)
		if err := r.emit(ctx, result); err != nil {
			return nil, err
		}
	}
	return step, nil
}

type toolOutcome struct {
	call   llmprovider.ToolCall
	output any
	err    error
}

// executeTools runs the calls concurrently and returns their outcomes in
// call order. Tool failures are recorded per call.
func (r *run) executeTools(ctx context.Context, pending []pendingCall) ([]toolOutcome, error) {
	if len(pending) == 0 {
		return nil, nil
	}
	outcomes := make([]toolOutcome, len(pending))
	var g errgroup.Group
	for i, pc := range pending {
		outcomes[i].call = pc.call
		g.Go(func() error {
			output, err := pc.tool.Execute(ctx, pc.call.ToolCallID, pc.args)
			if err != nil {
				r.logger.Warn("tool execution failed",
					"tool_call_id", pc.call.ToolCallID,
					"tool_name", pc.call.ToolName,
					"error", err)
				outcomes[i].err = &llmprovider.ToolExecutionError{
					ToolCallID: pc.call.ToolCallID,
					ToolName:   pc.call.ToolName,
					Err:        err,
				}
				return nil
			}
			outcomes[i].output = output
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, aborted(err)
	}
	return outcomes, nil
}
