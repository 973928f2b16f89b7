package datasource

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

// sourceBreaker owns one source's closed/open/half-open state machine. Every
// outcome goes through Execute, so gobreaker's counters are the only failure
// count; the mutex guards the timestamps reported in snapshots.
type sourceBreaker struct {
	name     string
	cb       *gobreaker.CircuitBreaker
	coolDown time.Duration
	now      func() time.Time

	mu          sync.Mutex
	lastFailure time.Time
	openedAt    time.Time
}

func newSourceBreaker(name string, cfg Config, now func() time.Time, logger *logrus.Entry, m *metrics.Manager) *sourceBreaker {
	b := &sourceBreaker{
		name:     name,
		coolDown: cfg.CoolDown,
		now:      now,
	}
	threshold := uint32(cfg.FailureThreshold)

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.FailureWindow,
		Timeout:     cfg.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !isSourceFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.mu.Lock()
				b.openedAt = b.now()
				b.mu.Unlock()
			}
			logger.WithFields(logrus.Fields{
				"source": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Circuit breaker state changed")
			m.RecordBreakerTransition(name, from.String(), to.String(), stateCode(to))
		},
	})
	return b
}

func (b *sourceBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.cb.Execute(fn)
	if err != nil && err != gobreaker.ErrOpenState && err != gobreaker.ErrTooManyRequests && isSourceFault(err) {
		b.mu.Lock()
		b.lastFailure = b.now()
		b.mu.Unlock()
	}
	return v, err
}

// rejected reports whether err means the breaker refused to run the call.
func rejected(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

func (b *sourceBreaker) Snapshot() models.CircuitBreakerState {
	state := b.cb.State()
	counts := b.cb.Counts()

	b.mu.Lock()
	defer b.mu.Unlock()
	s := models.CircuitBreakerState{
		Source:      b.name,
		State:       state.String(),
		Failures:    counts.ConsecutiveFailures,
		LastFailure: b.lastFailure,
	}
	if state == gobreaker.StateOpen {
		s.NextRetryAt = b.openedAt.Add(b.coolDown)
	}
	return s
}

func stateCode(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
