// Package probe implements the bounded-retry connectivity check used to
// decide whether a signal traverses the proxied path end to end.
//
// The retry budget exists to absorb the nondeterministic startup ordering of
// the proxy, the downstream emitter and the upstream listener; there is no
// readiness protocol between them. Injection and observation are checked
// together inside one attempt: the observer consumes its sink, so a message
// left over from an earlier attempt can never be mistaken for fresh delivery.
package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Injector produces the test signal at the ingress side of the path.
type Injector interface {
	Inject(ctx context.Context, message string) error
}

// Observer drains the egress sink, returning whatever arrived since the
// previous call.
type Observer interface {
	Drain(ctx context.Context) (string, error)
}

// Result records the outcome of one probe run.
type Result struct {
	Attempts  uint
	Delivered bool
}

// Probe is a bounded-retry delivery check over an Injector/Observer pair.
type Probe struct {
	injector    Injector
	observer    Observer
	maxAttempts uint
	interval    time.Duration
}

func New(injector Injector, observer Observer, maxAttempts uint, interval time.Duration) *Probe {
	return &Probe{
		injector:    injector,
		observer:    observer,
		maxAttempts: maxAttempts,
		interval:    interval,
	}
}

// Run injects message and checks delivery, retrying on a fixed interval. It
// short-circuits on the first successful attempt; on budget exhaustion the
// returned Result carries the attempts used and Delivered stays false.
func (p *Probe) Run(ctx context.Context, message string) (Result, error) {
	var attempt uint

	operation := func() (Result, error) {
		attempt++

		if err := p.injector.Inject(ctx, message); err != nil {
			return Result{}, fmt.Errorf("attempt %d: injecting %q: %w", attempt, message, err)
		}

		observed, err := p.observer.Drain(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("attempt %d: draining sink: %w", attempt, err)
		}

		if !strings.Contains(observed, message) {
			return Result{}, fmt.Errorf("attempt %d: %q not observed", attempt, message)
		}

		return Result{Attempts: attempt, Delivered: true}, nil
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.interval)),
		backoff.WithMaxTries(p.maxAttempts),
	)
	if err != nil {
		return Result{Attempts: attempt}, err
	}

	zap.S().Infow("signal delivered", "message", message, "attempt", result.Attempts)
	return result, nil
}
