package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen lets trial requests through to probe whether the dependency recovered.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs the given request if the circuit breaker is closed or half-open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
}

// Option configures a breaker.
type Option func(*breaker)

// WithStateChange registers a callback invoked (outside the lock) after each transition.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *breaker) {
		b.onStateChange = fn
	}
}

// WithClock overrides time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) {
		b.now = now
	}
}

type breaker struct {
	failureThreshold     uint32        // Number of failures to trip the circuit.
	successThreshold     uint32        // Number of successes in HalfOpen state to close the circuit.
	timeout              time.Duration // Duration to wait in Open state before transitioning to HalfOpen.
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
	state                State
	onStateChange        func(from, to State)
	now                  func() time.Time
	mutex                sync.Mutex
}

// New creates a circuit breaker.
// failureThreshold: consecutive failures required to open the circuit.
// successThreshold: consecutive half-open successes required to close it again.
// timeout: how long the circuit stays open before allowing a trial request.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state of the circuit breaker.
func (b *breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// Execute wraps the execution of a function with the circuit breaker logic.
func (b *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	b.mutex.Lock()
	var transition func()
	if b.state == Open && b.now().Sub(b.openedAt) > b.timeout {
		transition = b.setState(HalfOpen)
		b.consecutiveSuccesses = 0
	}
	state := b.state
	b.mutex.Unlock()
	if transition != nil {
		transition()
	}

	if state == Open {
		return nil, ErrCircuitOpen
	}

	res, err := req()
	if err != nil {
		b.record(false)
		return nil, err
	}
	b.record(true)
	return res, nil
}

func (b *breaker) record(success bool) {
	b.mutex.Lock()
	var transition func()
	switch b.state {
	case HalfOpen:
		if !success {
			transition = b.trip()
			break
		}
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.successThreshold {
			transition = b.setState(Closed)
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	case Closed:
		if success {
			b.consecutiveFailures = 0
			break
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			transition = b.trip()
		}
	}
	b.mutex.Unlock()
	if transition != nil {
		transition()
	}
}

// trip opens the circuit. Caller holds the lock.
func (b *breaker) trip() func() {
	b.openedAt = b.now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	return b.setState(Open)
}

// setState changes state and returns the notification to run after unlocking.
func (b *breaker) setState(to State) func() {
	from := b.state
	b.state = to
	if b.onStateChange == nil || from == to {
		return nil
	}
	cb := b.onStateChange
	return func() { cb(from, to) }
}
