package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/httpsession/packages/session"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary  `json:"summary"`
	Requests []JSONResult `json:"requests"`
	Duration float64      `json:"duration"`
	Time     string       `json:"time"`
}

// JSONSummary represents the session summary
type JSONSummary struct {
	Total     int64        `json:"total"`
	Completed int64        `json:"completed"`
	Failed    int64        `json:"failed"`
	Canceled  int64        `json:"canceled"`
	Bytes     int64        `json:"bytes"`
	Latency   *JSONLatency `json:"latency,omitempty"`
}

// JSONLatency holds latency percentiles in milliseconds
type JSONLatency struct {
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// JSONResult represents a single task result
type JSONResult struct {
	ID         string  `json:"id"`
	Method     string  `json:"method"`
	URL        string  `json:"url"`
	State      string  `json:"state"`
	Passed     bool    `json:"passed"`
	StatusCode int     `json:"statusCode,omitempty"`
	Status     string  `json:"status,omitempty"`
	Bytes      int     `json:"bytes"`
	Duration   float64 `json:"duration"`
	Error      string  `json:"error,omitempty"`
	Path       string  `json:"path,omitempty"`
	PathValue  any     `json:"pathValue,omitempty"`
	SchemaErr  string  `json:"schemaError,omitempty"`
	SavedTo    string  `json:"savedTo,omitempty"`
}

// JSONFormatter accumulates results and writes them as one JSON document
// on Flush
type JSONFormatter struct {
	writer io.Writer

	mu      sync.Mutex
	results []JSONResult
	errors  []string
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:  os.Stdout,
		results: make([]JSONResult, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

func (f *JSONFormatter) FormatProgress(url string, done, total int64) {
	// Progress is not part of JSON output
}

func (f *JSONFormatter) FormatResult(r *Result) {
	res := JSONResult{
		ID:         r.ID,
		Method:     r.Method,
		URL:        r.URL,
		State:      r.State.String(),
		Passed:     r.Passed(),
		StatusCode: r.StatusCode,
		Status:     r.Status,
		Bytes:      r.Bytes,
		Duration:   ms(r.Duration),
		Path:       r.Path,
		SavedTo:    r.SavedTo,
	}
	if r.Err != nil {
		res.Error = r.Err.Error()
	}
	if r.PathFound {
		res.PathValue = r.PathValue
	}
	if r.SchemaErr != nil {
		res.SchemaErr = r.SchemaErr.Error()
	}

	f.mu.Lock()
	f.results = append(f.results, res)
	f.mu.Unlock()
}

func (f *JSONFormatter) FormatError(err error) {
	f.mu.Lock()
	f.errors = append(f.errors, err.Error())
	f.mu.Unlock()
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(summary *session.Summary, totalDuration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := JSONOutput{
		Summary: JSONSummary{
			Total:     summary.Submitted,
			Completed: summary.Completed,
			Failed:    summary.Failed,
			Canceled:  summary.Canceled,
			Bytes:     summary.BytesReceived,
		},
		Requests: f.results,
		Duration: ms(totalDuration),
		Time:     time.Now().Format(time.RFC3339),
	}
	if summary.Completed > 0 {
		out.Summary.Latency = &JSONLatency{
			P50:  ms(summary.P50),
			P95:  ms(summary.P95),
			P99:  ms(summary.P99),
			Min:  ms(summary.Min),
			Max:  ms(summary.Max),
			Mean: ms(summary.Mean),
		}
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
