package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/httpsession/packages/http"
	"github.com/abdul-hamid-achik/httpsession/packages/logger"
	"github.com/abdul-hamid-achik/httpsession/packages/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	sharedOnce sync.Once
	shared     *Session
)

// Shared returns the process-wide session, creating it on first use with
// default options and the shared logger. Closing it affects every user.
func Shared() *Session {
	sharedOnce.Do(func() {
		shared = New(WithLogger(*logger.Get()))
	})
	return shared
}

// Session executes requests asynchronously and tracks them until they
// finish.
type Session struct {
	client           *http.Client
	maxConcurrent    int
	rate             float64
	burst            int
	defaultTimeout   time.Duration
	progressInterval time.Duration
	log              zerolog.Logger
	metrics          *metrics.Manager
	stats            *Stats

	limiter *rate.Limiter
	sem     chan struct{}

	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool
	wg     sync.WaitGroup
}

// New creates a Session. Without options it sends requests with a default
// http.Client, has no concurrency or rate limits and does not log.
func New(opts ...Option) *Session {
	s := &Session{
		log:   zerolog.Nop(),
		stats: NewStats(),
		tasks: make(map[string]*Task),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		s.client = http.NewClient()
	}

	if s.rate > 0 {
		burst := s.burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(s.rate), burst)
	}

	if s.maxConcurrent > 0 {
		s.sem = make(chan struct{}, s.maxConcurrent)
	}

	return s
}

// Execute submits req and returns immediately. progress, canceled and
// completion may each be nil. Callbacks run on the task's goroutine.
func (s *Session) Execute(req *http.Request, progress ProgressFunc, canceled CanceledFunc, completion CompletionFunc) *Task {
	return s.ExecuteContext(context.Background(), req, progress, canceled, completion)
}

// ExecuteContext is like Execute, but the task is also canceled when ctx is
// canceled. A ctx deadline is reported to completion as a timeout.
func (s *Session) ExecuteContext(ctx context.Context, req *http.Request, progress ProgressFunc, canceled CanceledFunc, completion CompletionFunc) *Task {
	t := newTask(ctx, s, req, progress, canceled, completion)
	s.stats.recordSubmitted()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		go t.finish(nil, ErrSessionClosed, false)
		return t
	}
	s.tasks[t.id] = t
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.TaskSubmitted()
	go s.run(t)

	return t
}

// Do sends req and waits for the result.
func (s *Session) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error
	t := s.ExecuteContext(ctx, req, nil, nil, func(r *http.Response, _ []byte, e error) {
		resp, err = r, e
	})
	t.Wait()
	return resp, err
}

// Cancel cancels the task with the given ID. It reports whether the task
// was still registered.
func (s *Session) Cancel(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()

	if ok {
		t.Cancel()
	}
	return ok
}

// CancelAll cancels every task registered at the time of the call. The
// session stays usable.
func (s *Session) CancelAll() {
	tasks := s.Tasks()
	if len(tasks) > 0 {
		s.log.Debug().Int("tasks", len(tasks)).Msg("canceling all tasks")
	}
	for _, t := range tasks {
		t.Cancel()
	}
}

// Tasks returns a snapshot of the registered tasks
func (s *Session) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		result = append(result, t)
	}
	return result
}

// InFlight returns the number of registered tasks
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stats returns a summary of all tasks submitted so far
func (s *Session) Stats() *Summary {
	return s.stats.Summary()
}

// Close cancels all tasks and rejects later submissions with
// ErrSessionClosed. It does not wait; use Wait for that.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.CancelAll()
	s.client.CloseIdleConnections()
	s.log.Info().Msg("session closed")
}

// Wait blocks until every registered task has run its terminal callback.
// It must not be called from a callback, and it must not run concurrently
// with Execute while no task is registered: submit first, then Wait.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) run(t *Task) {
	defer s.wg.Done()

	if t.req == nil {
		t.finish(nil, ErrNilRequest, true)
		return
	}

	if err := s.acquire(t.ctx); err != nil {
		t.finish(nil, err, true)
		return
	}

	t.markRunning()
	s.metrics.TaskStarted()

	s.log.Debug().
		Str("task_id", t.id).
		Str("method", t.req.Method).
		Str("url", t.req.URL).
		Msg("task started")

	resp, err := s.client.Send(t.ctx, s.prepare(t.req), s.progressFor(t))

	// Free the slot before callbacks so they may submit more work.
	s.release()
	t.finish(resp, err, true)
}

// prepare applies session defaults without mutating the caller's request.
func (s *Session) prepare(req *http.Request) *http.Request {
	if (req.Timeout > 0 || s.defaultTimeout <= 0) && (req.ProgressInterval > 0 || s.progressInterval <= 0) {
		return req
	}

	r := req.Clone()
	if r.Timeout <= 0 {
		r.Timeout = s.defaultTimeout
	}
	if r.ProgressInterval <= 0 {
		r.ProgressInterval = s.progressInterval
	}
	return r
}

func (s *Session) progressFor(t *Task) http.ProgressFunc {
	if t.onProgress == nil {
		return nil
	}
	return func(done, total int64) {
		s.safeCall(t, "progress", func() { t.onProgress(done, total) })
	}
}

func (s *Session) acquire(ctx context.Context) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// Wait fails early when the next token lies past the deadline
			return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
	}
	if s.sem == nil {
		return ctx.Err()
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	if s.sem != nil {
		<-s.sem
	}
}

func (s *Session) unregister(t *Task) {
	s.mu.Lock()
	delete(s.tasks, t.id)
	s.mu.Unlock()
}

func (s *Session) record(t *Task, state TaskState, registered bool) {
	duration := t.Duration()
	resp := t.Response()

	bodyLen := 0
	if resp != nil {
		bodyLen = len(resp.Body)
		s.metrics.ResponseReceived(resp.StatusCode, bodyLen)
	}
	s.stats.record(state, duration, bodyLen)
	if registered {
		s.metrics.TaskFinished(outcomeLabel(state), duration)
	}

	var event *zerolog.Event
	switch state {
	case Failed:
		event = s.log.Warn().Err(t.Err())
	default:
		event = s.log.Debug()
	}
	event = event.Str("task_id", t.id).Str("state", state.String()).Dur("duration", duration)
	if t.req != nil {
		event = event.Str("method", t.req.Method).Str("url", t.req.URL)
	}
	if resp != nil {
		event = event.Int("status", resp.StatusCode).Int("bytes", bodyLen)
	}
	event.Msg("task finished")
}

// safeCall runs a caller-supplied callback, logging instead of crashing the
// session goroutine if it panics.
func (s *Session) safeCall(t *Task, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("task_id", t.id).
				Str("callback", name).
				Interface("panic", r).
				Msg("callback panicked")
		}
	}()
	fn()
}
