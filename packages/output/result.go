package output

import (
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/httpsession/packages/session"
)

// Result is the outcome of one task as shown to the user
type Result struct {
	ID         string
	Method     string
	URL        string
	State      session.TaskState
	StatusCode int
	Status     string
	Bytes      int
	Duration   time.Duration
	Err        error

	// Path extraction (--path)
	Path      string
	PathValue any
	PathFound bool

	// Schema validation (--schema); SchemaChecked is false when no schema was given
	SchemaChecked bool
	SchemaErr     error

	// File the body was written to, if any
	SavedTo string
}

// Passed reports whether the task completed with a 2xx/3xx status and
// passed schema validation when one was requested.
func (r *Result) Passed() bool {
	if r.State != session.Completed || r.Err != nil {
		return false
	}
	if r.StatusCode >= 400 {
		return false
	}
	return !r.SchemaChecked || r.SchemaErr == nil
}

// Formatter renders task progress, results and the final summary
type Formatter interface {
	FormatHeader(version string)
	FormatProgress(url string, done, total int64)
	FormatResult(result *Result)
	FormatError(err error)
	Flush(summary *session.Summary, totalDuration time.Duration) error
}

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

// formatLatency formats latency for display
func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// formatBytes formats a byte count with a binary unit
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatNumber formats a number with commas
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	s := fmt.Sprintf("%d", n)
	result := make([]byte, 0, len(s)+(len(s)-1)/3)

	start := len(s) % 3
	if start == 0 {
		start = 3
	}

	result = append(result, s[:start]...)
	for i := start; i < len(s); i += 3 {
		result = append(result, ',')
		result = append(result, s[i:i+3]...)
	}

	return string(result)
}
