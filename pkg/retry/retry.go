package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stanchionhq/stanchion/pkg/faults"
)

// Policy configures retry behavior. A Policy is an immutable value; build
// one with NewPolicy or validate a literal with Validate before use.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first.
	// A value of 1 means no retry ever occurs.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps every backoff delay. Must be at least InitialDelay.
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay grows after each failed
	// attempt. Must be at least 1.
	Multiplier float64

	// RetryOn whitelists the fault kinds that may be retried. Kinds are
	// matched through the taxonomy's refinement edge, so whitelisting
	// faults.KindAuth also retries token failures. Failures of any other
	// kind propagate immediately.
	RetryOn []faults.Kind
}

// DefaultPolicy returns the standard policy: 3 attempts, 1s initial delay
// doubling up to 60s.
func DefaultPolicy(kinds ...faults.Kind) Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
		RetryOn:      kinds,
	}
}

// NewPolicy builds and validates a policy.
func NewPolicy(maxAttempts int, initialDelay, maxDelay time.Duration, multiplier float64, kinds ...faults.Kind) (Policy, error) {
	p := Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   multiplier,
		RetryOn:      kinds,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy invariants. Zero delays are legal so tests
// can retry without real waiting.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return faults.NewConfigError("max attempts must be at least 1", nil).WithField("MaxAttempts")
	}
	if p.InitialDelay < 0 {
		return faults.NewConfigError("initial delay must not be negative", nil).WithField("InitialDelay")
	}
	if p.MaxDelay < p.InitialDelay {
		return faults.NewConfigError("max delay must be at least the initial delay", nil).WithField("MaxDelay")
	}
	if p.Multiplier < 1 {
		return faults.NewConfigError("backoff multiplier must be at least 1", nil).WithField("Multiplier")
	}
	return nil
}

func (p Policy) retryable(err error) bool {
	for _, kind := range p.RetryOn {
		if faults.HasKind(err, kind) {
			return true
		}
	}
	return false
}

// Attempt records a single invocation for observation and logging.
// Attempts are ephemeral, nothing persists them.
type Attempt struct {
	// Number is the 1-based attempt index.
	Number int

	// Delay is the backoff slept before this attempt. Zero on the first.
	Delay time.Duration

	// Err is the failure observed by this attempt, nil on success.
	Err error
}

// Observer receives attempt records as they complete.
type Observer interface {
	ObserveAttempt(a Attempt)
}

// Sleeper suspends for the given duration, returning early with the
// context's error if it is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type executor struct {
	sleep    Sleeper
	observer Observer
	logger   zerolog.Logger
}

// Option customizes a single Execute call.
type Option func(*executor)

// WithSleeper replaces the backoff sleep function, for deterministic tests.
func WithSleeper(s Sleeper) Option {
	return func(e *executor) { e.sleep = s }
}

// WithObserver registers an observer for attempt records.
func WithObserver(o Observer) Option {
	return func(e *executor) { e.observer = o }
}

// WithLogger sets the logging collaborator. Without it, attempts are not
// logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *executor) { e.logger = logger }
}

// Execute invokes op under the policy. On success the result is returned
// immediately with no further attempts. A failure whose kind is not
// whitelisted by the policy propagates at once, regardless of remaining
// attempts. Retryable failures are reattempted after an exponential
// backoff of InitialDelay, InitialDelay*Multiplier, ... each capped at
// MaxDelay, until MaxAttempts is reached, at which point the last observed
// error propagates unchanged in kind.
//
// Cancellation is checked before each sleep and before each attempt; an
// in-flight op invocation is not preempted.
func Execute[T any](ctx context.Context, policy Policy, op func() (T, error), opts ...Option) (T, error) {
	var zero T

	if err := policy.Validate(); err != nil {
		return zero, err
	}

	e := executor{sleep: defaultSleeper, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&e)
	}

	delay := policy.InitialDelay
	slept := time.Duration(0)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op()
		e.observe(Attempt{Number: attempt, Delay: slept, Err: err})
		if err == nil {
			return result, nil
		}

		if !policy.retryable(err) {
			e.logger.Debug().
				Str("kind", string(faults.KindOf(err))).
				Int("attempt", attempt).
				Msg("Failure kind not retryable, propagating")
			return zero, err
		}

		if attempt == policy.MaxAttempts {
			e.logger.Error().
				Err(err).
				Int("attempts", attempt).
				Msg("All attempts failed")
			return zero, err
		}

		wait := delay
		if wait > policy.MaxDelay {
			wait = policy.MaxDelay
		}

		e.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Dur("delay", wait).
			Msg("Attempt failed, retrying")

		if err := e.sleep(ctx, wait); err != nil {
			return zero, err
		}

		slept = wait
		delay = time.Duration(float64(delay) * policy.Multiplier)
	}
}

func (e *executor) observe(a Attempt) {
	if e.observer != nil {
		e.observer.ObserveAttempt(a)
	}
}
