package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/httpsession/packages/core/config"
	"github.com/abdul-hamid-achik/httpsession/packages/http"
	"github.com/abdul-hamid-achik/httpsession/packages/logger"
	"github.com/abdul-hamid-achik/httpsession/packages/metrics"
	"github.com/abdul-hamid-achik/httpsession/packages/output"
	"github.com/abdul-hamid-achik/httpsession/packages/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <url> [url...]",
	Short: "Fetch one or more URLs through a shared session",
	Long: `Fetch URLs concurrently through one session, showing download progress
and a summary. Ctrl-C cancels every request still in flight.

Examples:
  httpsession get https://example.com
  httpsession get https://api.example.com/users -H "Accept: application/json" --path "0.name"
  httpsession get https://a.example.com https://b.example.com -c 2 --rate 5 -o ./downloads
  httpsession get https://api.example.com/items --schema item.schema.json --json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         getCommand,
}

var (
	methodFlag       string
	headerFlags      []string
	dataFlag         string
	outputDirFlag    string
	concurrencyFlag  int
	rateFlag         float64
	timeoutFlag      string
	insecureFlag     bool
	proxyFlag        string
	noRedirectsFlag  bool
	maxRedirectsFlag int
	pathFlag         string
	schemaFlag       string
	jsonFlag         bool
	noColorFlag      bool
	noProgressFlag   bool
	verboseFlag      bool
	metricsAddrFlag  string
	configFlag       string
	logLevelFlag     string
)

func init() {
	getCmd.Flags().StringVarP(&methodFlag, "method", "X", "GET", "HTTP method")
	getCmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, `Request header "Name: value" (repeatable)`)
	getCmd.Flags().StringVarP(&dataFlag, "data", "d", "", "Request body; @file reads it from a file")
	getCmd.Flags().StringVarP(&outputDirFlag, "output-dir", "o", getEnvString("HTTPSESSION_OUTPUT_DIR", ""), "Write response bodies to this directory (env: HTTPSESSION_OUTPUT_DIR)")
	getCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "c", getEnvInt("HTTPSESSION_CONCURRENCY", 0), "Maximum concurrent requests, 0 for unlimited (env: HTTPSESSION_CONCURRENCY)")
	getCmd.Flags().Float64VarP(&rateFlag, "rate", "r", 0, "Maximum requests started per second, 0 for unlimited")
	getCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("HTTPSESSION_TIMEOUT", ""), "Request timeout (e.g., 30s, 1m) (env: HTTPSESSION_TIMEOUT)")
	getCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("HTTPSESSION_INSECURE", false), "Disable SSL certificate validation (env: HTTPSESSION_INSECURE)")
	getCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("HTTPSESSION_PROXY", ""), "Proxy URL for HTTP requests (env: HTTPSESSION_PROXY)")
	getCmd.Flags().BoolVar(&noRedirectsFlag, "no-redirects", false, "Do not follow redirects")
	getCmd.Flags().IntVar(&maxRedirectsFlag, "max-redirects", 0, "Maximum redirects to follow; 0 disables redirects like --no-redirects")
	getCmd.Flags().StringVar(&pathFlag, "path", "", "Extract a value from JSON responses (gjson syntax)")
	getCmd.Flags().StringVar(&schemaFlag, "schema", "", "Validate JSON responses against this JSON schema file")
	getCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")
	getCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("HTTPSESSION_NO_COLOR", false), "Disable colored output (env: HTTPSESSION_NO_COLOR)")
	getCmd.Flags().BoolVar(&noProgressFlag, "no-progress", false, "Disable the live download indicator")
	getCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")
	getCmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", getEnvString("HTTPSESSION_METRICS_ADDR", ""), "Serve Prometheus metrics on this address, e.g. :9090 (env: HTTPSESSION_METRICS_ADDR)")
	getCmd.Flags().StringVar(&configFlag, "config", getEnvString("HTTPSESSION_CONFIG", ""), "Path to config file (env: HTTPSESSION_CONFIG)")
	getCmd.Flags().StringVar(&logLevelFlag, "log-level", getEnvString("LOG_LEVEL", ""), "Log level: debug, info, warn, error (env: LOG_LEVEL)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getCommand(cmd *cobra.Command, args []string) error {
	// Load config from file (if present) and apply CLI overrides
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	flagConfig, err := configFromFlags(cmd)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	cfg := fileConfig.Merge(flagConfig)
	if err := cfg.Validate(); err != nil {
		return exitWith(ExitUsageError, err)
	}

	headers, err := parseHeaders(headerFlags)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	body, err := readData(dataFlag)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	var schema []byte
	if schemaFlag != "" {
		if schema, err = os.ReadFile(schemaFlag); err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("cannot read schema: %w", err))
		}
	}
	for _, target := range args {
		if err := http.ValidateURL(target); err != nil {
			return exitWith(ExitUsageError, err)
		}
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("cannot create output directory: %w", err))
		}
	}

	out := cmd.OutOrStdout()
	var formatter output.Formatter
	if jsonFlag {
		formatter = output.NewJSONFormatter(output.JSONWithWriter(out))
	} else {
		formatter = output.NewConsoleFormatter(
			output.WithWriter(out),
			output.WithVerbose(verboseFlag),
			output.WithNoColor(cfg.GetNoColor()),
			output.WithNoProgress(noProgressFlag || len(args) > 1),
		)
	}
	formatter.FormatHeader(version)

	log := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)

	registry := prometheus.NewRegistry()
	metricsManager := metrics.NewManager(metrics.WithPrometheusRegistry(registry))
	if metricsAddrFlag != "" {
		server := serveMetrics(metricsAddrFlag, registry, cmd.ErrOrStderr())
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
	}

	// The session owns the deadline; the client timeout stays off so a
	// timeout always surfaces as context.DeadlineExceeded.
	client := http.NewClient(
		http.WithTimeout(0),
		http.WithFollowRedirects(cfg.GetFollowRedirects()),
		http.WithMaxRedirects(cfg.MaxRedirects),
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithProxy(cfg.Proxy),
		http.WithDefaultHeaders(cfg.Headers),
	)

	s := session.New(
		session.WithClient(client),
		session.WithMaxConcurrent(cfg.MaxConcurrent),
		session.WithRateLimit(cfg.RateLimit, 1),
		session.WithDefaultTimeout(cfg.TimeoutDuration()),
		session.WithProgressInterval(cfg.ProgressIntervalDuration()),
		session.WithLogger(log),
		session.WithMetrics(metricsManager),
	)
	defer s.Close()

	// Ctrl-C cancels every in-flight request instead of killing the process
	var interrupted atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		if _, ok := <-sigCh; ok {
			interrupted.Store(true)
			fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt, canceling requests...")
			s.CancelAll()
		}
	}()

	start := time.Now()
	results := make([]*output.Result, len(args))
	tasks := make([]*session.Task, len(args))

	for i, target := range args {
		req := http.NewRequest(methodFlag, target)
		for k, v := range headers {
			req.SetHeader(k, v)
		}
		if len(body) > 0 {
			req.SetBody(body)
		}

		result := &output.Result{Method: req.Method, URL: target, Path: pathFlag}
		results[i] = result

		tasks[i] = s.Execute(req,
			func(done, total int64) {
				formatter.FormatProgress(target, done, total)
			},
			func() {
				result.State = session.Canceled
				result.Err = session.ErrCanceled
			},
			func(resp *http.Response, respBody []byte, err error) {
				fillResult(result, resp, err, schema)
				if err == nil && cfg.OutputDir != "" {
					saveBody(result, cfg.OutputDir, i, target, respBody)
				}
			},
		)
	}

	s.Wait()

	exitCode := ExitSuccess
	for i, result := range results {
		result.ID = tasks[i].ID()
		result.Duration = tasks[i].Duration()
		formatter.FormatResult(result)

		switch {
		case result.State == session.Canceled:
			exitCode = max(exitCode, ExitCanceled)
		case result.State == session.Failed:
			exitCode = max(exitCode, ExitNetworkError)
		case !result.Passed():
			exitCode = max(exitCode, ExitRequestFailure)
		}
	}

	if err := formatter.Flush(s.Stats(), time.Since(start)); err != nil {
		return fmt.Errorf("error writing output: %w", err)
	}

	if interrupted.Load() {
		exitCode = ExitCanceled
	}
	if exitCode != ExitSuccess {
		return exitWith(exitCode, nil)
	}
	return nil
}

// configFromFlags returns a config holding only the flags the user set, so
// Merge leaves file values alone for everything else.
func configFromFlags(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg := &config.Config{
		Proxy:         proxyFlag,
		MaxConcurrent: concurrencyFlag,
		RateLimit:     rateFlag,
		MaxRedirects:  maxRedirectsFlag,
		LogLevel:      logLevelFlag,
		OutputDir:     outputDirFlag,
	}

	if timeoutFlag != "" {
		timeout, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("timeout must be positive: %s", timeoutFlag)
		}
		cfg.Timeout = int(timeout.Milliseconds())
	}
	if concurrencyFlag < 0 {
		return nil, fmt.Errorf("concurrency must not be negative: %d", concurrencyFlag)
	}
	if rateFlag < 0 {
		return nil, fmt.Errorf("rate must not be negative: %g", rateFlag)
	}

	if insecureFlag {
		cfg.ValidateSSL = config.BoolPtr(false)
	}
	if maxRedirectsFlag < 0 {
		return nil, fmt.Errorf("max-redirects must not be negative: %d", maxRedirectsFlag)
	}
	// Merge ignores a zero MaxRedirects, so an explicit 0 turns redirects off
	if noRedirectsFlag || (flags.Changed("max-redirects") && maxRedirectsFlag == 0) {
		cfg.FollowRedirects = config.BoolPtr(false)
	}
	if flags.Changed("no-color") || noColorFlag {
		cfg.NoColor = config.BoolPtr(noColorFlag)
	}

	return cfg, nil
}

// parseHeaders turns "Name: value" pairs into a map
func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// readData returns the request body; a leading @ names a file
func readData(data string) ([]byte, error) {
	if file, ok := strings.CutPrefix(data, "@"); ok {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("cannot read data file: %w", err)
		}
		return b, nil
	}
	return []byte(data), nil
}

func fillResult(result *output.Result, resp *http.Response, err error, schema []byte) {
	result.State = session.Completed
	if err != nil {
		result.State = session.Failed
		result.Err = err
		return
	}

	result.StatusCode = resp.StatusCode
	result.Status = resp.Status
	result.Bytes = len(resp.Body)

	if result.Path != "" {
		result.PathValue, result.PathFound = resp.JSONPath(result.Path)
	}
	if len(schema) > 0 {
		result.SchemaChecked = true
		result.SchemaErr = resp.ValidateSchema(schema)
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// outputFilename derives a file name from the URL path, prefixed with the
// argument index so two URLs never write the same file.
func outputFilename(index int, rawURL string) string {
	name := "index"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." && base != "" {
			name = base
		} else if u.Hostname() != "" {
			name = u.Hostname()
		}
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	return fmt.Sprintf("%03d-%s", index+1, name)
}

func saveBody(result *output.Result, dir string, index int, target string, body []byte) {
	dest := filepath.Join(dir, outputFilename(index, target))
	if err := os.WriteFile(dest, body, 0644); err != nil {
		result.Err = fmt.Errorf("cannot write %s: %w", dest, err)
		result.State = session.Failed
		return
	}
	result.SavedTo = dest
}

func serveMetrics(addr string, registry *prometheus.Registry, errOut io.Writer) *nethttp.Server {
	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &nethttp.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			fmt.Fprintf(errOut, "warning: metrics server stopped: %v\n", err)
		}
	}()
	return server
}
