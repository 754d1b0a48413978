package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/httpsession/packages/http"
	"github.com/abdul-hamid-achik/httpsession/packages/metrics"
	"github.com/google/uuid"
)

// ProgressFunc receives the response bytes received so far and the expected
// total, which is -1 when the server did not announce a length.
type ProgressFunc func(doneBytes, totalBytes int64)

// CanceledFunc is called when a task is canceled before it finishes.
type CanceledFunc func()

// CompletionFunc is called when a task finishes without being canceled.
// resp is nil when err is a transport error. Non-2xx responses are
// delivered with a nil error.
type CompletionFunc func(resp *http.Response, body []byte, err error)

// TaskState is the lifecycle state of a Task
type TaskState int

const (
	// Pending tasks are waiting for the rate limiter or a concurrency slot
	Pending TaskState = iota
	// Running tasks are on the wire
	Running
	// Completed tasks received a response
	Completed
	// Canceled tasks were canceled before finishing
	Canceled
	// Failed tasks ended with a transport error
	Failed
)

func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Canceled:
		return "canceled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s TaskState) IsTerminal() bool {
	return s == Completed || s == Canceled || s == Failed
}

// Task is the handle for one request submitted to a Session.
type Task struct {
	id        string
	req       *http.Request
	session   *Session
	submitted time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	onProgress   ProgressFunc
	onCanceled   CanceledFunc
	onCompletion CompletionFunc

	mu       sync.Mutex
	state    TaskState
	resp     *http.Response
	err      error
	finished time.Time
	done     chan struct{}
}

func newTask(ctx context.Context, s *Session, req *http.Request, progress ProgressFunc, canceled CanceledFunc, completion CompletionFunc) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	tctx, cancel := context.WithCancelCause(ctx)
	return &Task{
		id:           uuid.NewString(),
		req:          req,
		session:      s,
		submitted:    time.Now(),
		ctx:          tctx,
		cancel:       cancel,
		onProgress:   progress,
		onCanceled:   canceled,
		onCompletion: completion,
		state:        Pending,
		done:         make(chan struct{}),
	}
}

// ID returns the unique task identifier
func (t *Task) ID() string { return t.id }

// Request returns the submitted request
func (t *Task) Request() *http.Request { return t.req }

// SubmittedAt returns when the task was submitted
func (t *Task) SubmittedAt() time.Time { return t.submitted }

// State returns the current state
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed after the terminal callback has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finished and its terminal callback returned.
func (t *Task) Wait() { <-t.done }

// Response returns the response once the task completed, or nil.
func (t *Task) Response() *http.Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resp
}

// Err returns the terminal error. Canceled tasks report an error matching
// ErrCanceled.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Duration returns the time from submission to finish, or the elapsed time
// so far for unfinished tasks.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished.IsZero() {
		return time.Since(t.submitted)
	}
	return t.finished.Sub(t.submitted)
}

// Cancel cancels the task. It is a no-op once the task finished.
func (t *Task) Cancel() {
	if t.State().IsTerminal() {
		return
	}
	t.cancel(ErrCanceled)
}

func (t *Task) markRunning() {
	t.mu.Lock()
	t.state = Running
	t.mu.Unlock()
}

// canceled reports whether the task context was canceled, either through
// Cancel or by the caller's context. Deadlines are not cancellations.
func (t *Task) canceled() bool {
	return errors.Is(t.ctx.Err(), context.Canceled)
}

// finish settles the outcome, unregisters the task and runs exactly one
// terminal callback.
func (t *Task) finish(resp *http.Response, err error, registered bool) {
	var state TaskState
	switch {
	case err == nil:
		state = Completed
	case t.canceled():
		state = Canceled
		if cause := context.Cause(t.ctx); cause != nil && !errors.Is(cause, ErrCanceled) {
			err = fmt.Errorf("%w: %w", ErrCanceled, cause)
		} else {
			err = ErrCanceled
		}
	default:
		state = Failed
	}

	t.mu.Lock()
	t.state = state
	t.resp = resp
	t.err = err
	t.finished = time.Now()
	t.mu.Unlock()

	// Release the context; the outcome is already settled.
	t.cancel(nil)

	s := t.session
	if registered {
		s.unregister(t)
	}
	s.record(t, state, registered)

	defer close(t.done)

	if state == Canceled && t.onCanceled != nil {
		s.safeCall(t, "canceled", func() { t.onCanceled() })
		return
	}
	if t.onCompletion != nil {
		var body []byte
		if resp != nil {
			body = resp.Body
		}
		s.safeCall(t, "completion", func() { t.onCompletion(resp, body, err) })
	}
}

func outcomeLabel(state TaskState) string {
	switch state {
	case Completed:
		return metrics.OutcomeCompleted
	case Canceled:
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeFailed
	}
}
