package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// latency histogram range in microseconds: 1us to 10m
	minLatencyUs = 1
	maxLatencyUs = 600_000_000
)

// Stats aggregates task outcomes and latencies for a session
type Stats struct {
	submitted atomic.Int64
	completed atomic.Int64
	canceled  atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64

	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
}

// Summary is a point-in-time view of Stats
type Summary struct {
	Submitted     int64
	Completed     int64
	Canceled      int64
	Failed        int64
	BytesReceived int64

	// Latency percentiles of completed tasks
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// NewStats creates an empty Stats collector
func NewStats() *Stats {
	return &Stats{
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
	}
}

func (s *Stats) recordSubmitted() {
	s.submitted.Add(1)
}

func (s *Stats) record(state TaskState, d time.Duration, bytes int) {
	switch state {
	case Completed:
		s.completed.Add(1)
		s.bytes.Add(int64(bytes))

		latencyUs := d.Microseconds()
		if latencyUs < minLatencyUs {
			latencyUs = minLatencyUs
		}
		if latencyUs > maxLatencyUs {
			latencyUs = maxLatencyUs
		}

		s.mu.Lock()
		_ = s.histogram.RecordValue(latencyUs)
		s.mu.Unlock()
	case Canceled:
		s.canceled.Add(1)
	case Failed:
		s.failed.Add(1)
	}
}

// Summary returns the current counters and latency percentiles
func (s *Stats) Summary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }

	return &Summary{
		Submitted:     s.submitted.Load(),
		Completed:     s.completed.Load(),
		Canceled:      s.canceled.Load(),
		Failed:        s.failed.Load(),
		BytesReceived: s.bytes.Load(),
		P50:           us(s.histogram.ValueAtQuantile(50)),
		P95:           us(s.histogram.ValueAtQuantile(95)),
		P99:           us(s.histogram.ValueAtQuantile(99)),
		Min:           us(s.histogram.Min()),
		Max:           us(s.histogram.Max()),
		Mean:          time.Duration(s.histogram.Mean() * float64(time.Microsecond)),
	}
}

// Finished returns the number of tasks that reached a terminal state
func (s *Summary) Finished() int64 {
	return s.Completed + s.Canceled + s.Failed
}
