package tipsplit

import (
	"time"

	"github.com/vitwit/tipsplit/logger"
	"github.com/vitwit/tipsplit/metrics"
	"github.com/vitwit/tipsplit/settlement"
)

type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Session) {
		s.metrics = r
	}
}

// WithTimeout bounds each payment's validation and balance read. Transfers
// already under way are never cut off by it.
func WithTimeout(t time.Duration) Option {
	return func(s *Session) {
		s.timeout = t
	}
}

// WithSender connects a wallet address at construction time.
func WithSender(address string) Option {
	return func(s *Session) {
		s.sender = address
	}
}

// WithTrackerTiming overrides the configured confirmation retry delay and
// poll interval.
func WithTrackerTiming(retryDelay, pollInterval time.Duration) Option {
	return func(s *Session) {
		s.retryDelay = retryDelay
		s.pollInterval = pollInterval
	}
}

// WithExecutor replaces the default payment executor.
func WithExecutor(e settlement.Executor) Option {
	return func(s *Session) {
		s.executor = e
	}
}
