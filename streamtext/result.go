package streamtext

import (
	"context"
	"errors"
	"io"
	"sync"

	llmprovider "github.com/haowjy/meridian-stream-go"
	"github.com/haowjy/meridian-stream-go/chat"
	"github.com/haowjy/meridian-stream-go/datastream"
)

// ErrStreamStarted is returned by views created after the stream began.
var ErrStreamStarted = errors.New("streamtext: view registered after the stream started")

// ErrViewClosed is returned by a view that was closed by its reader.
var ErrViewClosed = errors.New("streamtext: view closed")

// subscriber is one consumer of the stream. Its channel is unbuffered: the
// stream waits for every open subscriber to take each item.
type subscriber[T any] struct {
	ch        chan T
	closed    chan struct{}
	closeOnce sync.Once
	err       error // set when the subscriber was never attached
}

func newSubscriber[T any]() *subscriber[T] {
	return &subscriber[T]{ch: make(chan T), closed: make(chan struct{})}
}

func (s *subscriber[T]) deliver(ctx context.Context, v T) error {
	select {
	case s.ch <- v:
		return nil
	case <-s.closed:
		return nil
	case <-ctx.Done():
		return aborted(ctx.Err())
	}
}

func (s *subscriber[T]) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *subscriber[T]) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Result is a running generation. Its views and futures share a single pass
// over the part stream, started lazily by the first read, future or Consume.
//
// Views must be created before the pass starts and read to the end or
// closed; an unread view stalls the pass.
type Result struct {
	ctx  context.Context
	opts Options

	mu        sync.Mutex
	started   bool
	parts     []*subscriber[llmprovider.Part]
	snapshots []*subscriber[chat.Snapshot]

	done chan struct{}
	resp *Response
	err  error
}

// Stream validates opts and prepares a generation. Nothing is requested from
// the provider until the result is read.
func Stream(ctx context.Context, opts Options) (*Result, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Result{ctx: ctx, opts: opts, done: make(chan struct{})}, nil
}

func (r *Result) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.pass(r.parts, r.snapshots)
}

func (r *Result) pass(parts []*subscriber[llmprovider.Part], snapshots []*subscriber[chat.Snapshot]) {
	fan := &fanout{parts: parts, snapshots: snapshots}
	resp, err := newRun(r.opts, fan).execute(r.ctx)

	if err != nil {
		if llmprovider.IsAborted(err) {
			r.opts.Logger.Info("generation aborted")
		} else {
			r.opts.Logger.Error("generation failed", "error", err)
		}
	}

	if err == nil && r.opts.OnFinish != nil {
		r.opts.OnFinish(resp)
	}

	r.resp, r.err = resp, err
	for _, s := range parts {
		close(s.ch)
	}
	for _, s := range snapshots {
		close(s.ch)
	}
	close(r.done)
}

type fanout struct {
	parts     []*subscriber[llmprovider.Part]
	snapshots []*subscriber[chat.Snapshot]
}

func (f *fanout) part(ctx context.Context, p llmprovider.Part) error {
	for _, s := range f.parts {
		if err := s.deliver(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanout) snapshot(ctx context.Context, snap chat.Snapshot) error {
	for _, s := range f.snapshots {
		if err := s.deliver(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

func subscribe[T any](r *Result, list *[]*subscriber[T]) *subscriber[T] {
	s := newSubscriber[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		s.err = ErrStreamStarted
		close(s.ch)
		return s
	}
	*list = append(*list, s)
	return s
}

// terminal returns the error a view reports after its last item.
func (r *Result) terminal() error {
	if r.err != nil {
		return r.err
	}
	return io.EOF
}

func next[T any](r *Result, s *subscriber[T]) (T, error) {
	var zero T
	if s.err != nil {
		return zero, s.err
	}
	if s.isClosed() {
		return zero, ErrViewClosed
	}
	r.start()
	v, ok := <-s.ch
	if !ok {
		return zero, r.terminal()
	}
	return v, nil
}

// TextStream yields the text deltas of the generation.
type TextStream struct {
	r   *Result
	sub *subscriber[llmprovider.Part]
}

// TextStream registers a text view.
func (r *Result) TextStream() *TextStream {
	return &TextStream{r: r, sub: subscribe(r, &r.parts)}
}

// Next returns the next text delta. It returns io.EOF after the last delta of
// a successful generation, and the generation's error otherwise.
func (t *TextStream) Next() (string, error) {
	for {
		p, err := next(t.r, t.sub)
		if err != nil {
			return "", err
		}
		if d, ok := p.(llmprovider.TextDelta); ok && d.Text != "" {
			return d.Text, nil
		}
	}
}

// Close detaches the view.
func (t *TextStream) Close() { t.sub.close() }

// FullStream yields every part of the generation, ending with the aggregate
// Finish.
type FullStream struct {
	r   *Result
	sub *subscriber[llmprovider.Part]
}

// FullStream registers a part view.
func (r *Result) FullStream() *FullStream {
	return &FullStream{r: r, sub: subscribe(r, &r.parts)}
}

// Next returns the next part. It returns io.EOF after the Finish of a
// successful generation, and the generation's error otherwise.
func (f *FullStream) Next() (llmprovider.Part, error) {
	return next(f.r, f.sub)
}

// Close detaches the view.
func (f *FullStream) Close() { f.sub.close() }

// SnapshotStream yields the assembled message after every change.
type SnapshotStream struct {
	r   *Result
	sub *subscriber[chat.Snapshot]
}

// Snapshots registers a message snapshot view.
func (r *Result) Snapshots() *SnapshotStream {
	return &SnapshotStream{r: r, sub: subscribe(r, &r.snapshots)}
}

// Next returns the next snapshot, io.EOF at the end of a successful
// generation, and the generation's error otherwise.
func (s *SnapshotStream) Next() (chat.Snapshot, error) {
	return next(s.r, s.sub)
}

// Close detaches the view.
func (s *SnapshotStream) Close() { s.sub.close() }

// DataStreamOptions configures the wire view.
type DataStreamOptions = datastream.Options

// WriteDataStream registers a wire view and writes the generation to w in
// data stream framing until it ends. A failed generation ends with an error
// frame; a cancelled one ends without. The returned error is the write error
// or the generation's error.
func (r *Result) WriteDataStream(w io.Writer, opts DataStreamOptions) error {
	return r.writeData(subscribe(r, &r.parts), w, opts)
}

func (r *Result) writeData(sub *subscriber[llmprovider.Part], w io.Writer, opts DataStreamOptions) error {
	defer sub.close()
	enc := datastream.NewEncoder(w, opts)
	for {
		p, err := next(r, sub)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if !isFrameError(err) {
				return err
			}
			if encErr := enc.EncodeError(err); encErr != nil {
				return encErr
			}
			return err
		}
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
}

// DataStreamReader registers a wire view and returns its bytes as a reader.
// Closing the reader detaches the view.
func (r *Result) DataStreamReader(opts DataStreamOptions) io.ReadCloser {
	sub := subscribe(r, &r.parts)
	pr, pw := io.Pipe()
	go func() {
		err := r.writeData(sub, pw, opts)
		if err != nil && !isFrameError(err) {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	return &pipeReader{PipeReader: pr, sub: sub}
}

// isFrameError reports whether err ends the wire view with an error frame.
func isFrameError(err error) bool {
	return !errors.Is(err, ErrStreamStarted) && !errors.Is(err, ErrViewClosed) && !llmprovider.IsAborted(err)
}

type pipeReader struct {
	*io.PipeReader
	sub *subscriber[llmprovider.Part]
}

func (p *pipeReader) Close() error {
	p.sub.close()
	return p.PipeReader.Close()
}

// Consume runs the generation to the end without a reader. It is safe to call
// more than once.
func (r *Result) Consume(ctx context.Context) error {
	_, err := r.Wait(ctx)
	return err
}

// Wait starts the generation if needed and blocks until it ends or ctx is
// done.
func (r *Result) Wait(ctx context.Context) (*Response, error) {
	r.start()
	select {
	case <-r.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Text waits for the generation and returns its text.
func (r *Result) Text(ctx context.Context) (string, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Reasoning waits for the generation and returns its reasoning text.
func (r *Result) Reasoning(ctx context.Context) (string, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return "", err
	}
	return resp.Reasoning, nil
}

// Usage waits for the generation and returns the summed usage of its steps.
func (r *Result) Usage(ctx context.Context) (llmprovider.Usage, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return llmprovider.Usage{}, err
	}
	return resp.Usage, nil
}

// FinishReason waits for the generation and returns its finish reason.
func (r *Result) FinishReason(ctx context.Context) (llmprovider.FinishReason, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return "", err
	}
	return resp.FinishReason, nil
}

// Steps waits for the generation and returns its steps.
func (r *Result) Steps(ctx context.Context) ([]StepResult, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Steps, nil
}

// ToolCalls waits for the generation and returns the tool calls of every step.
func (r *Result) ToolCalls(ctx context.Context) ([]llmprovider.ToolCall, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.ToolCalls, nil
}

// ToolResults waits for the generation and returns the tool results of every step.
func (r *Result) ToolResults(ctx context.Context) ([]llmprovider.ToolResult, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.ToolResults, nil
}

// Sources waits for the generation and returns the sources of every step.
func (r *Result) Sources(ctx context.Context) ([]llmprovider.Source, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// Warnings waits for the generation and returns the validation warnings of
// its first request.
func (r *Result) Warnings(ctx context.Context) ([]llmprovider.ValidationWarning, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Warnings, nil
}

// Message waits for the generation and returns the assembled message.
func (r *Result) Message(ctx context.Context) (*chat.Message, error) {
	resp, err := r.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}
