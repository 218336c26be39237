package docker

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/jguan/dockman/pkg/infra/logger"
)

// State is the lifecycle position of a streamed operation.
type State string

const (
	StateIdle      State = "idle"
	StateStarted   State = "started"
	StateReceiving State = "receiving"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further records can be produced.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// stream is the state machine shared by pull and log operations. It owns
// the response body; release closes it exactly once.
type stream struct {
	id string
	op string

	mu    sync.Mutex
	state State
	err   error

	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser

	stopWatch   func() bool
	releaseOnce sync.Once
	onRelease   func()
}

func newStream(op string) *stream {
	return &stream{id: uuid.NewString(), op: op, state: StateIdle}
}

// begin attaches an opened body. Cancelling ctx from now on acts as Close.
func (s *stream) begin(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser) {
	s.mu.Lock()
	s.ctx = ctx
	s.cancel = cancel
	s.body = body
	s.state = StateStarted
	s.stopWatch = context.AfterFunc(ctx, func() { _ = s.Close() })
	s.mu.Unlock()

	logger.ForCall(ctx).Debug("stream started", "stream_id", s.id)
}

// ID uniquely identifies the operation.
func (s *stream) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure that ended the operation, if it failed.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close aborts the operation if it is still running and releases its
// connection. It is safe to call from any goroutine and more than once.
func (s *stream) Close() error {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = StateCancelled
	}
	s.mu.Unlock()
	s.release()
	return nil
}

// check returns the error a read must report once the stream is terminal,
// or nil while records may still arrive.
func (s *stream) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalErrLocked()
}

func (s *stream) terminalErrLocked() error {
	switch s.state {
	case StateCompleted:
		return io.EOF
	case StateFailed:
		return s.err
	case StateCancelled:
		return s.closedError()
	case StateIdle:
		return &Error{Kind: KindUnknown, Op: s.op, Detail: "operation not started"}
	}
	return nil
}

func (s *stream) closedError() error {
	return &Error{Kind: KindStreamInterrupted, Op: s.op, Detail: ErrOperationClosed.Error(), Cause: ErrOperationClosed}
}

func (s *stream) receiving() {
	s.mu.Lock()
	if s.state == StateStarted {
		s.state = StateReceiving
	}
	s.mu.Unlock()
}

// finish records a clean end of stream.
func (s *stream) finish() error {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = StateCompleted
	}
	err := s.terminalErrLocked()
	s.mu.Unlock()
	s.release()
	return err
}

// fail records err as the reason the operation ended. A stream already
// cancelled keeps reporting the closed error.
func (s *stream) fail(err error) error {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = StateFailed
		s.err = err
	}
	err = s.terminalErrLocked()
	s.mu.Unlock()
	s.release()
	return err
}

// interrupted handles a read failure. A failure caused by our own
// cancellation is reported as a closed operation, not as an interruption.
func (s *stream) interrupted(err error) error {
	if s.ctx != nil && s.ctx.Err() != nil {
		_ = s.Close()
		return s.check()
	}
	return s.fail(classifyStream(s.op, err))
}

func (s *stream) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		stop, cancel, body, ctx, state := s.stopWatch, s.cancel, s.body, s.ctx, s.state
		s.mu.Unlock()

		if stop != nil {
			stop()
		}
		if cancel != nil {
			cancel()
		}
		if body != nil {
			_ = body.Close()
		}
		if s.onRelease != nil {
			s.onRelease()
		}
		if ctx != nil {
			logger.ForCall(ctx).Debug("stream released", "stream_id", s.id, "state", state)
		}
	})
}
