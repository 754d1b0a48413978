package http

import (
	"io"
	"time"
)

// DefaultProgressInterval bounds how often a ProgressReader reports.
const DefaultProgressInterval = 100 * time.Millisecond

// ProgressFunc receives the number of bytes read so far and the expected
// total. total is -1 when the size is unknown.
type ProgressFunc func(done, total int64)

// ProgressReader wraps a reader and reports transferred bytes.
type ProgressReader struct {
	Reader   io.Reader
	Total    int64
	OnUpdate ProgressFunc
	Interval time.Duration

	done         int64
	reported     int64
	lastReport   time.Time
	reportedOnce bool
}

// NewProgressReader returns a ProgressReader. A non-positive interval
// selects DefaultProgressInterval and any negative total becomes -1.
func NewProgressReader(r io.Reader, total int64, fn ProgressFunc, interval time.Duration) *ProgressReader {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	if total < 0 {
		total = -1
	}
	return &ProgressReader{
		Reader:   r,
		Total:    total,
		OnUpdate: fn,
		Interval: interval,
	}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.Reader.Read(b)
	if n > 0 {
		p.done += int64(n)
		if time.Since(p.lastReport) >= p.Interval {
			p.report()
		}
	}
	return n, err
}

// Done returns the number of bytes read so far.
func (p *ProgressReader) Done() int64 {
	return p.done
}

// Finish emits a final report unless the last report already covered every
// byte read.
func (p *ProgressReader) Finish() {
	if p.reportedOnce && p.reported == p.done {
		return
	}
	p.report()
}

func (p *ProgressReader) report() {
	p.reported = p.done
	p.reportedOnce = true
	p.lastReport = time.Now()
	if p.OnUpdate != nil {
		p.OnUpdate(p.done, p.Total)
	}
}
