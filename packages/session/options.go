package session

import (
	"time"

	"github.com/abdul-hamid-achik/httpsession/packages/http"
	"github.com/abdul-hamid-achik/httpsession/packages/metrics"
	"github.com/rs/zerolog"
)

// Option configures a Session
type Option func(*Session)

// WithClient sets the transport client used to send requests
func WithClient(client *http.Client) Option {
	return func(s *Session) {
		if client != nil {
			s.client = client
		}
	}
}

// WithMaxConcurrent bounds the number of requests on the wire at once.
// Tasks beyond the limit wait in the Pending state. Zero means unlimited.
func WithMaxConcurrent(n int) Option {
	return func(s *Session) {
		s.maxConcurrent = n
	}
}

// WithRateLimit limits how many requests start per second
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Session) {
		s.rate = perSecond
		s.burst = burst
	}
}

// WithLogger sets the structured logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithMetrics sets the Prometheus metrics manager
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithDefaultTimeout applies a timeout to requests that do not set one
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.defaultTimeout = d
	}
}

// WithProgressInterval sets the minimum interval between progress callbacks
// for requests that do not set one
func WithProgressInterval(d time.Duration) Option {
	return func(s *Session) {
		s.progressInterval = d
	}
}
