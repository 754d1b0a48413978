package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	shttp "github.com/abdul-hamid-achik/httpsession/packages/http"
	"github.com/abdul-hamid-achik/httpsession/packages/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingServer holds every request until release is closed or the client
// goes away. Each request announces itself on arrived.
func blockingServer(t *testing.T) (*httptest.Server, chan struct{}, chan struct{}) {
	t.Helper()

	arrived := make(chan struct{}, 100)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-release:
			_, _ = w.Write([]byte("released"))
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	return server, arrived, release
}

func waitArrivals(t *testing.T, arrived chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d requests arrived", i, n)
		}
	}
}

func waitTask(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("task %s did not finish", task.ID())
	}
}

func TestShared_ReturnsSameInstance(t *testing.T) {
	a := Shared()
	b := Shared()
	require.NotNil(t, a)
	assert.Same(t, a, b)
}

func TestExecute_Completion(t *testing.T) {
	payload := strings.Repeat("x", 256*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	s := New(WithProgressInterval(time.Nanosecond))

	var progress [][2]int64
	var canceledCalls, completionCalls int
	var gotResp *shttp.Response
	var gotBody []byte
	var gotErr error

	task := s.Execute(shttp.NewRequest("GET", server.URL),
		func(done, total int64) {
			progress = append(progress, [2]int64{done, total})
		},
		func() { canceledCalls++ },
		func(resp *shttp.Response, body []byte, err error) {
			completionCalls++
			gotResp, gotBody, gotErr = resp, body, err
		},
	)
	waitTask(t, task)

	require.NoError(t, gotErr)
	require.NotNil(t, gotResp)
	assert.Equal(t, 200, gotResp.StatusCode)
	assert.Len(t, gotBody, len(payload))
	assert.Equal(t, 1, completionCalls)
	assert.Equal(t, 0, canceledCalls)
	assert.Equal(t, Completed, task.State())
	assert.NoError(t, task.Err())
	assert.Same(t, gotResp, task.Response())

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i][0], progress[i-1][0])
	}
	last := progress[len(progress)-1]
	assert.Equal(t, int64(len(payload)), last[0])
	assert.Equal(t, int64(len(payload)), last[1])
	assert.Equal(t, 0, s.InFlight())
}

func TestExecute_UnknownLengthReportsMinusOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("chunk-one"))
		flusher.Flush()
		_, _ = w.Write([]byte("chunk-two"))
	}))
	defer server.Close()

	var totals []int64
	task := New().Execute(shttp.NewRequest("GET", server.URL),
		func(done, total int64) { totals = append(totals, total) },
		nil, nil,
	)
	waitTask(t, task)

	require.NotEmpty(t, totals)
	for _, total := range totals {
		assert.Equal(t, int64(-1), total)
	}
}

func TestExecute_Non2xxIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer server.Close()

	resp, err := New().Do(context.Background(), shttp.NewRequest("GET", server.URL))

	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "missing", resp.BodyString())
}

func TestExecute_TransportErrorIsRelayed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var gotErr error
	var gotResp *shttp.Response
	task := New().Execute(shttp.NewRequest("GET", url), nil, nil,
		func(resp *shttp.Response, body []byte, err error) {
			gotResp, gotErr = resp, err
			assert.Nil(t, body)
		})
	waitTask(t, task)

	require.Error(t, gotErr)
	assert.Nil(t, gotResp)
	assert.False(t, errors.Is(gotErr, ErrCanceled))
	assert.Equal(t, Failed, task.State())
}

func TestExecute_InvalidURL(t *testing.T) {
	_, err := New().Do(context.Background(), shttp.NewRequest("GET", "ftp://example.com/file"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported URL scheme")
}

func TestExecute_NilRequest(t *testing.T) {
	var gotErr error
	task := New().Execute(nil, nil, nil, func(resp *shttp.Response, body []byte, err error) {
		gotErr = err
	})
	waitTask(t, task)

	assert.ErrorIs(t, gotErr, ErrNilRequest)
	assert.Equal(t, Failed, task.State())
}

func TestExecute_AllCallbacksNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	task := New().Execute(shttp.NewRequest("GET", server.URL), nil, nil, nil)
	waitTask(t, task)

	assert.Equal(t, Completed, task.State())
	assert.Equal(t, "ok", task.Response().BodyString())
}

func TestTask_Cancel(t *testing.T) {
	server, arrived, _ := blockingServer(t)
	s := New()

	var canceledCalls, completionCalls atomic.Int32
	task := s.Execute(shttp.NewRequest("GET", server.URL), nil,
		func() { canceledCalls.Add(1) },
		func(*shttp.Response, []byte, error) { completionCalls.Add(1) },
	)
	waitArrivals(t, arrived, 1)
	assert.Equal(t, Running, task.State())

	task.Cancel()
	task.Cancel()
	waitTask(t, task)

	assert.Equal(t, int32(1), canceledCalls.Load())
	assert.Equal(t, int32(0), completionCalls.Load())
	assert.Equal(t, Canceled, task.State())
	assert.ErrorIs(t, task.Err(), ErrCanceled)
	assert.Equal(t, 0, s.InFlight())
}

func TestTask_CancelWithoutCanceledCallback(t *testing.T) {
	server, arrived, _ := blockingServer(t)

	var gotErr error
	task := New().Execute(shttp.NewRequest("GET", server.URL), nil, nil,
		func(resp *shttp.Response, body []byte, err error) {
			gotErr = err
		})
	waitArrivals(t, arrived, 1)
	task.Cancel()
	waitTask(t, task)

	assert.ErrorIs(t, gotErr, ErrCanceled)
}

func TestTask_CancelAfterFinishIsNoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	canceled := false
	task := New().Execute(shttp.NewRequest("GET", server.URL), nil, func() { canceled = true }, nil)
	waitTask(t, task)

	task.Cancel()
	assert.False(t, canceled)
	assert.Equal(t, Completed, task.State())
}

func TestSession_CancelAll(t *testing.T) {
	server, arrived, _ := blockingServer(t)
	s := New()

	const n = 5
	var canceledCalls, completionCalls atomic.Int32
	tasks := make([]*Task, n)
	for i := 0; i < n; i++ {
		tasks[i] = s.Execute(shttp.NewRequest("GET", server.URL), nil,
			func() { canceledCalls.Add(1) },
			func(*shttp.Response, []byte, error) { completionCalls.Add(1) },
		)
	}
	waitArrivals(t, arrived, n)
	assert.Equal(t, n, s.InFlight())

	s.CancelAll()
	for _, task := range tasks {
		waitTask(t, task)
		assert.Equal(t, Canceled, task.State())
	}

	assert.Equal(t, int32(n), canceledCalls.Load())
	assert.Equal(t, int32(0), completionCalls.Load())
	assert.Equal(t, 0, s.InFlight())

	// The session keeps working after CancelAll.
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("after"))
	}))
	defer ok.Close()

	resp, err := s.Do(context.Background(), shttp.NewRequest("GET", ok.URL))
	require.NoError(t, err)
	assert.Equal(t, "after", resp.BodyString())
}

func TestSession_CancelAllWithNoTasks(t *testing.T) {
	s := New()
	assert.NotPanics(t, s.CancelAll)
	assert.Equal(t, 0, s.InFlight())
}

func TestSession_CancelByID(t *testing.T) {
	server, arrived, _ := blockingServer(t)
	s := New()

	task := s.Execute(shttp.NewRequest("GET", server.URL), nil, nil, nil)
	waitArrivals(t, arrived, 1)

	assert.False(t, s.Cancel("no-such-task"))
	assert.True(t, s.Cancel(task.ID()))
	waitTask(t, task)

	assert.Equal(t, Canceled, task.State())
	assert.False(t, s.Cancel(task.ID()))
}

func TestSession_CancelPendingTaskSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
	}))
	defer server.Close()

	s := New(WithMaxConcurrent(1))
	first := s.Execute(shttp.NewRequest("GET", server.URL), nil, nil, nil)

	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	canceled := make(chan struct{})
	second := s.Execute(shttp.NewRequest("GET", server.URL), nil, func() { close(canceled) }, nil)
	assert.Equal(t, Pending, second.State())

	second.Cancel()
	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("pending task was not canceled")
	}
	waitTask(t, second)
	assert.Equal(t, Canceled, second.State())

	close(release)
	waitTask(t, first)
	assert.Equal(t, Completed, first.State())
	assert.Equal(t, int32(1), hits.Load())
}

func TestSession_MaxConcurrent(t *testing.T) {
	var current, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
	}))
	defer server.Close()

	s := New(WithMaxConcurrent(2))
	tasks := make([]*Task, 6)
	for i := range tasks {
		tasks[i] = s.Execute(shttp.NewRequest("GET", server.URL), nil, nil, nil)
	}
	s.Wait()

	for _, task := range tasks {
		assert.Equal(t, Completed, task.State())
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSession_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	s := New(WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		s.Execute(shttp.NewRequest("GET", server.URL), nil, nil, nil)
	}
	s.Wait()

	// 20 req/s with burst 1: the third request starts no earlier than ~100ms.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestSession_DefaultTimeout(t *testing.T) {
	server, _, _ := blockingServer(t)

	canceled := false
	var gotErr error
	task := New(WithDefaultTimeout(50*time.Millisecond)).Execute(shttp.NewRequest("GET", server.URL), nil,
		func() { canceled = true },
		func(resp *shttp.Response, body []byte, err error) { gotErr = err },
	)
	waitTask(t, task)

	assert.False(t, canceled)
	assert.ErrorIs(t, gotErr, context.DeadlineExceeded)
	assert.Equal(t, Failed, task.State())
}

func TestSession_RequestTimeoutOverridesDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(80 * time.Millisecond)
	}))
	defer server.Close()

	s := New(WithDefaultTimeout(20 * time.Millisecond))
	req := shttp.NewRequest("GET", server.URL).SetTimeout(2 * time.Second)

	_, err := s.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(2*time.Second), req.Timeout)
}

func TestSession_ExecuteContextCallerCancel(t *testing.T) {
	server, arrived, _ := blockingServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	canceled := make(chan struct{})
	task := New().ExecuteContext(ctx, shttp.NewRequest("GET", server.URL), nil, func() { close(canceled) }, nil)
	waitArrivals(t, arrived, 1)

	cancel()
	waitTask(t, task)

	assert.Equal(t, Canceled, task.State())
	select {
	case <-canceled:
	default:
		t.Fatal("canceled callback not called")
	}
}

func TestSession_ExecuteContextDeadlineIsTimeout(t *testing.T) {
	server, _, _ := blockingServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New().Do(ctx, shttp.NewRequest("GET", server.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrCanceled))
}

func TestSession_DeadlineWhileRateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	// One token every two seconds: the first request takes it.
	s := New(WithRateLimit(0.5, 1))
	_, err := s.Do(context.Background(), shttp.NewRequest("GET", server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	canceled := false
	var gotErr error
	task := s.ExecuteContext(ctx, shttp.NewRequest("GET", server.URL), nil,
		func() { canceled = true },
		func(resp *shttp.Response, body []byte, err error) { gotErr = err },
	)
	waitTask(t, task)

	assert.False(t, canceled)
	assert.ErrorIs(t, gotErr, context.DeadlineExceeded)
	assert.False(t, errors.Is(gotErr, ErrCanceled))
	assert.Equal(t, Failed, task.State())
	assert.Equal(t, int32(1), hits.Load())
}

func TestSession_CancelWhileRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	s := New(WithRateLimit(0.1, 1))
	_, err := s.Do(context.Background(), shttp.NewRequest("GET", server.URL))
	require.NoError(t, err)

	canceled := make(chan struct{})
	task := s.Execute(shttp.NewRequest("GET", server.URL), nil, func() { close(canceled) }, nil)
	assert.Equal(t, Pending, task.State())

	task.Cancel()
	waitTask(t, task)

	assert.Equal(t, Canceled, task.State())
	assert.ErrorIs(t, task.Err(), ErrCanceled)
}

func TestSession_Close(t *testing.T) {
	server, arrived, _ := blockingServer(t)
	s := New()

	inflight := s.Execute(shttp.NewRequest("GET", server.URL), nil, nil, nil)
	waitArrivals(t, arrived, 1)

	s.Close()
	s.Close()
	waitTask(t, inflight)
	assert.Equal(t, Canceled, inflight.State())

	var gotErr error
	late := s.Execute(shttp.NewRequest("GET", server.URL), nil, nil,
		func(resp *shttp.Response, body []byte, err error) { gotErr = err })
	waitTask(t, late)

	assert.ErrorIs(t, gotErr, ErrSessionClosed)
	assert.Equal(t, Failed, late.State())
	s.Wait()
}

func TestSession_InFlightExcludesFinishingTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	s := New()
	inside := -1
	task := s.Execute(shttp.NewRequest("GET", server.URL), nil, nil,
		func(*shttp.Response, []byte, error) { inside = s.InFlight() })
	waitTask(t, task)

	assert.Equal(t, 0, inside)
}

func TestSession_CallbackCanSubmitWork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer server.Close()

	s := New(WithMaxConcurrent(1))
	var second *shttp.Response
	task := s.Execute(shttp.NewRequest("GET", server.URL+"/first"), nil, nil,
		func(*shttp.Response, []byte, error) {
			second, _ = s.Do(context.Background(), shttp.NewRequest("GET", server.URL+"/second"))
		})
	waitTask(t, task)

	require.NotNil(t, second)
	assert.Equal(t, "/second", second.BodyString())
}

func TestSession_PanickingCallbackIsRecovered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	s := New()
	task := s.Execute(shttp.NewRequest("GET", server.URL), nil, nil,
		func(*shttp.Response, []byte, error) { panic("boom") })
	waitTask(t, task)

	assert.Equal(t, Completed, task.State())
	assert.Equal(t, 0, s.InFlight())
}

func TestSession_ConcurrentExecuteAndCancelAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
	}))
	defer server.Close()

	s := New()
	var terminal atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.Execute(shttp.NewRequest("GET", server.URL), nil,
					func() { terminal.Add(1) },
					func(*shttp.Response, []byte, error) { terminal.Add(1) },
				)
				if j%3 == 0 {
					s.CancelAll()
				}
			}
		}()
	}
	wg.Wait()
	s.Wait()

	assert.Equal(t, int32(40), terminal.Load())
	assert.Equal(t, 0, s.InFlight())
	assert.Equal(t, int64(40), s.Stats().Finished())
}

func TestSession_StatsAndMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	s := New(WithMetrics(metrics.NewManager(metrics.WithPrometheusRegistry(reg))))

	for i := 0; i < 3; i++ {
		_, err := s.Do(context.Background(), shttp.NewRequest("GET", server.URL))
		require.NoError(t, err)
	}

	summary := s.Stats()
	assert.Equal(t, int64(3), summary.Submitted)
	assert.Equal(t, int64(3), summary.Completed)
	assert.Equal(t, int64(15), summary.BytesReceived)
	assert.Greater(t, summary.Max, time.Duration(0))
	assert.LessOrEqual(t, summary.P50, summary.Max)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["httpsession_session_tasks_finished_total"])
	assert.Equal(t, 15.0, values["httpsession_session_bytes_received_total"])
	assert.Equal(t, 0.0, values["httpsession_session_tasks_in_flight"])
}

func TestTaskState_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "canceled", Canceled.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "TaskState(42)", TaskState(42).String())
	assert.True(t, Canceled.IsTerminal())
	assert.False(t, Running.IsTerminal())
}
