// Package breaker gates publishing under sustained failure.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/unclebandit/autoposter/internal/logging"
)

const (
	DefaultThreshold    = 5
	DefaultResetTimeout = 30 * time.Minute
)

// State is the logical breaker state derived from the counters and the clock.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	Threshold    int
	ResetTimeout time.Duration
	KillSwitch   KillSwitch
	Logger       logging.Logger
	Now          func() time.Time
	// OnStateChange is called outside the lock with the new state.
	OnStateChange func(State)
}

// CircuitBreaker holds the process-wide failure state. All mutation goes through
// RecordFailure and RecordSuccess.
type CircuitBreaker struct {
	mu              sync.Mutex
	failureCount    int
	lastFailureTime time.Time
	open            bool

	threshold     int
	resetTimeout  time.Duration
	killSwitch    KillSwitch
	logger        logging.Logger
	now           func() time.Time
	onStateChange func(State)
}

func New(cfg Config) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.KillSwitch == nil {
		cfg.KillSwitch = NewStaticKillSwitch(false)
	}
	return &CircuitBreaker{
		threshold:     cfg.Threshold,
		resetTimeout:  cfg.ResetTimeout,
		killSwitch:    cfg.KillSwitch,
		logger:        cfg.Logger.WithField("component", "breaker"),
		now:           cfg.Now,
		onStateChange: cfg.OnStateChange,
	}
}

// RecordFailure counts one failure. A failure arriving after a quiet period longer
// than the reset timeout starts a fresh count.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	now := cb.now()
	if now.Sub(cb.lastFailureTime) > cb.resetTimeout {
		cb.failureCount = 0
	}
	cb.failureCount++
	cb.lastFailureTime = now
	count := cb.failureCount

	tripped := false
	if cb.failureCount >= cb.threshold && !cb.open {
		cb.open = true
		tripped = true
	}
	cb.mu.Unlock()

	cb.logger.WithField("failure_count", count).Warn("Circuit breaker failure recorded")
	if tripped {
		cb.logger.WithField("pause", cb.resetTimeout.String()).Error("Circuit breaker tripped, posting paused")
		cb.notify(StateOpen)
	}
}

// RecordSuccess closes the breaker and clears the counter unconditionally.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	wasOpen := cb.open
	cb.open = false
	cb.failureCount = 0
	cb.mu.Unlock()

	if wasOpen {
		cb.logger.Info("Circuit breaker reset after successful trial")
		cb.notify(StateClosed)
	}
}

// IsOpen reports whether publishing is blocked. The kill switch wins over internal
// state. Once the reset timeout has passed since the last failure an open breaker
// answers false (half-open) without touching the counter.
func (cb *CircuitBreaker) IsOpen(ctx context.Context) bool {
	if cb.killSwitch.Enabled(ctx) {
		return true
	}
	return cb.State() == StateOpen
}

// State derives the logical state without mutating anything.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() State {
	if !cb.open {
		return StateClosed
	}
	if cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout {
		return StateHalfOpen
	}
	return StateOpen
}

// Snapshot is a read-only view for the admin surface.
type Snapshot struct {
	State           string     `json:"state"`
	FailureCount    int        `json:"failure_count"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
	KillSwitch      bool       `json:"kill_switch"`
}

func (cb *CircuitBreaker) Snapshot(ctx context.Context) Snapshot {
	cb.mu.Lock()
	s := Snapshot{
		State:        cb.stateLocked().String(),
		FailureCount: cb.failureCount,
	}
	if !cb.lastFailureTime.IsZero() {
		t := cb.lastFailureTime
		s.LastFailureTime = &t
	}
	cb.mu.Unlock()
	s.KillSwitch = cb.killSwitch.Enabled(ctx)
	return s
}

func (cb *CircuitBreaker) notify(s State) {
	if cb.onStateChange != nil {
		cb.onStateChange(s)
	}
}
