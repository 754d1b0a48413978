package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/httpsession/packages/session"
	"github.com/fatih/color"
)

// ConsoleFormatter prints colored, human readable output. It is safe for
// use from concurrent task callbacks.
type ConsoleFormatter struct {
	writer     io.Writer
	verbose    bool
	noColor    bool
	noProgress bool

	mu           sync.Mutex
	progressLine bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}

	f.green = color.New(color.FgGreen)
	f.red = color.New(color.FgRed)
	f.yellow = color.New(color.FgYellow)
	f.cyan = color.New(color.FgCyan)
	f.bold = color.New(color.Bold)
	f.dim = color.New(color.Faint)

	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// WithNoProgress disables the live download line
func WithNoProgress(np bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noProgress = np
	}
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bold.Fprintf(f.writer, "httpsession %s\n\n", version)
}

func (f *ConsoleFormatter) FormatProgress(url string, done, total int64) {
	if f.noProgress {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fmt.Fprint(f.writer, "\r\033[K")
	if total > 0 {
		pct := float64(done) / float64(total)
		if pct > 1 {
			pct = 1
		}
		barWidth := 20
		filled := int(pct * float64(barWidth))
		bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)
		fmt.Fprintf(f.writer, "  %s %s %3.0f%% %s / %s",
			f.cyan.Sprint("↓"), bar, pct*100, formatBytes(done), formatBytes(total))
	} else {
		fmt.Fprintf(f.writer, "  %s %s", f.cyan.Sprint("↓"), formatBytes(done))
	}
	fmt.Fprintf(f.writer, " %s", f.dim.Sprint(url))
	f.progressLine = true
}

func (f *ConsoleFormatter) clearProgress() {
	if f.progressLine {
		fmt.Fprint(f.writer, "\r\033[K")
		f.progressLine = false
	}
}

func (f *ConsoleFormatter) FormatResult(r *Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearProgress()

	switch {
	case r.State == session.Canceled:
		fmt.Fprintf(f.writer, "  %s %s %s %s\n", f.yellow.Sprint("-"), r.Method, r.URL, f.yellow.Sprint("(canceled)"))
		return
	case r.Err != nil:
		fmt.Fprintf(f.writer, "  %s %s %s %s\n", f.red.Sprint("x"), r.Method, r.URL, f.red.Sprintf("(%v)", r.Err))
		return
	}

	symbol := f.green.Sprint("✓")
	status := f.green.Sprint(r.StatusCode)
	if !r.Passed() {
		symbol = f.red.Sprint("✗")
	}
	if r.StatusCode >= 400 {
		status = f.red.Sprint(r.StatusCode)
	} else if r.StatusCode >= 300 {
		status = f.yellow.Sprint(r.StatusCode)
	}

	fmt.Fprintf(f.writer, "  %s %s %s %s %s %s\n", symbol, status, r.Method, r.URL,
		f.cyan.Sprintf("(%s)", formatLatency(r.Duration)),
		f.dim.Sprint(formatBytes(int64(r.Bytes))))

	if r.Path != "" {
		if r.PathFound {
			fmt.Fprintf(f.writer, "    %s = %s\n", r.Path, formatValue(r.PathValue, 200))
		} else {
			fmt.Fprintf(f.writer, "    %s %s not found\n", f.yellow.Sprint("→"), r.Path)
		}
	}

	if r.SchemaChecked {
		if r.SchemaErr != nil {
			fmt.Fprintf(f.writer, "    %s %v\n", f.red.Sprint("→"), r.SchemaErr)
		} else if f.verbose {
			fmt.Fprintf(f.writer, "    %s schema valid\n", f.green.Sprint("→"))
		}
	}

	if r.SavedTo != "" && f.verbose {
		fmt.Fprintf(f.writer, "    saved to %s\n", r.SavedTo)
	}

	if f.verbose {
		fmt.Fprintf(f.writer, "    %s\n", f.dim.Sprintf("task %s", r.ID))
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearProgress()
	fmt.Fprintf(f.writer, "%s %v\n", f.red.Sprint("Error:"), err)
}

func (f *ConsoleFormatter) Flush(summary *session.Summary, totalDuration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearProgress()

	fmt.Fprintln(f.writer)
	fmt.Fprintf(f.writer, "Requests: ")
	if summary.Completed > 0 {
		fmt.Fprintf(f.writer, "%s, ", f.green.Sprintf("%s completed", formatNumber(summary.Completed)))
	}
	if summary.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", f.red.Sprintf("%s failed", formatNumber(summary.Failed)))
	}
	if summary.Canceled > 0 {
		fmt.Fprintf(f.writer, "%s, ", f.yellow.Sprintf("%s canceled", formatNumber(summary.Canceled)))
	}
	fmt.Fprintf(f.writer, "%s total\n", formatNumber(summary.Submitted))
	fmt.Fprintf(f.writer, "Received: %s\n", formatBytes(summary.BytesReceived))
	if summary.Completed > 0 {
		fmt.Fprintf(f.writer, "Latency:  p50: %s | p95: %s | p99: %s | max: %s\n",
			formatLatency(summary.P50),
			formatLatency(summary.P95),
			formatLatency(summary.P99),
			formatLatency(summary.Max))
	}
	fmt.Fprintf(f.writer, "Time:     %s\n", formatLatency(totalDuration))
	return nil
}
