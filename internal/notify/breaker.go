package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kingrea/raga-review/internal/review"
)

// BreakerSettings tunes the circuit breaker around a remote sink.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerSettings returns conservative breaker thresholds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// BreakerSink stops calling a failing sink until its timeout elapses.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSink wraps next in a circuit breaker named after it.
func NewBreakerSink(next Sink, settings BreakerSettings, logger *zap.Logger) *BreakerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultBreakerSettings()
	if settings.MinRequests == 0 {
		settings.MinRequests = defaults.MinRequests
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = defaults.FailureThreshold
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notify: circuit breaker state changed",
				zap.String("sink", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerSink{next: next, cb: cb}
}

// Name implements Sink.
func (s *BreakerSink) Name() string { return s.next.Name() }

// State reports the breaker state.
func (s *BreakerSink) State() gobreaker.State { return s.cb.State() }

// Deliver implements Sink. It fails fast with gobreaker.ErrOpenState while open.
func (s *BreakerSink) Deliver(ctx context.Context, evt review.Event) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Deliver(ctx, evt)
	})
	return err
}
