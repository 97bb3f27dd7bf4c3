package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	transient = ErrorClassification{Retryable: true, RecordFailure: true}
	permanent = ErrorClassification{RecordFailure: true}
	ignored   = ErrorClassification{}
)

// ClassifyCommon settles the cases every capability shares: caller
// cancellation is ignored and an open circuit is transient. ok is false when
// the adapter has to decide.
func ClassifyCommon(err error) (class ErrorClassification, ok bool) {
	switch {
	case err == nil:
		return ignored, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ignored, true
	case IsCircuitOpen(err):
		return transient, true
	}
	return ErrorClassification{}, false
}

// Executor guards outbound capability calls with retries and one circuit
// breaker per service and operation.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// Call runs fn for service/op. Errors classify considers transient come back
// wrapped in domain.ErrTemporary. A nil executor runs fn once.
func (e *Executor) Call(
	ctx context.Context,
	service string,
	op Operation,
	fn func(context.Context) error,
	classify ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: %s %s: nil call", service, op)
	}
	if classify == nil {
		classify = func(err error) ErrorClassification {
			if class, ok := ClassifyCommon(err); ok {
				return class
			}
			return permanent
		}
	}

	var err error
	switch {
	case e == nil:
		err = fn(ctx)
	case !e.cfg.BreakerEnabled:
		err = e.retry(ctx, service, op, fn, classify)
	default:
		_, err = e.breaker(service, op, classify).Execute(func() (struct{}, error) {
			return struct{}{}, e.retry(ctx, service, op, fn, classify)
		})
	}
	return WrapTemporary(fmt.Sprintf("%s %s", service, op), err, classify)
}

func (e *Executor) retry(
	ctx context.Context,
	service string,
	op Operation,
	fn func(context.Context) error,
	classify ErrorClassifier,
) error {
	attempts := e.cfg.attemptsFor(op)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || !classify(err).Retryable {
			return err
		}

		wait := e.backoff(attempt)
		slog.Warn("capability_retry",
			"service", service,
			"operation", string(op),
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

// backoff grows geometrically from the initial delay and stops at the cap.
func (e *Executor) backoff(attempt int) time.Duration {
	wait := float64(e.cfg.RetryInitialBackoff) * math.Pow(e.cfg.RetryMultiplier, float64(attempt-1))
	if wait > float64(e.cfg.RetryMaxBackoff) {
		return e.cfg.RetryMaxBackoff
	}
	return time.Duration(wait)
}

func (e *Executor) breaker(service string, op Operation, classify ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	name := service + "." + string(op)

	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[name] = cb
	return cb
}

func (e *Executor) breakerState(service string, op Operation) gobreaker.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb, ok := e.breakers[service+"."+string(op)]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// WrapTemporary marks errors the classifier considers transient with
// domain.ErrTemporary so callers can tell "try later" from "broken".
func WrapTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || (classify != nil && classify(err).Retryable) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
