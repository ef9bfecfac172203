package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DialFunc opens one live subscription and returns its event channel. The
// channel must be closed by the dialer when the underlying connection drops.
type DialFunc[T any] func(ctx context.Context) (<-chan T, error)

// SupervisorOptions control the reconnect policy of Resubscribe.
type SupervisorOptions struct {
	Name          string
	RetryInterval time.Duration // fixed delay between attempts, default 1s
	MaxAttempts   int           // consecutive failed dials before giving up, default 30
	Logger        *zap.SugaredLogger
}

func (o *SupervisorOptions) defaults() {
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 30
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
}

// Resubscribe wraps a feed subscription with reconnection. Events flow into
// the returned stable channel; when the inner subscription's channel closes
// the dialer is called again after the retry interval. A successful dial that
// delivers at least one event resets the attempt counter. The returned
// channel closes only when the context ends or MaxAttempts consecutive dials
// fail, which the consumer must treat as a dead feed.
//
// Engine state is deliberately untouched here: a broken feed does not
// invalidate exchange-side truth, so position and order tracking survive the
// outage and duplicate fills delivered after resubscription are filtered by
// the engine's de-duplication set.
func Resubscribe[T any](ctx context.Context, opts SupervisorOptions, dial DialFunc[T]) <-chan T {
	opts.defaults()
	out := make(chan T, 256)

	go func() {
		defer close(out)
		failures := 0
		for {
			if ctx.Err() != nil {
				return
			}

			inner, err := dial(ctx)
			if err != nil {
				failures++
				opts.Logger.Warnf("%s: subscribe failed (attempt %d/%d): %v",
					opts.Name, failures, opts.MaxAttempts, err)
				if failures >= opts.MaxAttempts {
					opts.Logger.Errorf("%s: reconnection attempts exhausted, feed is down", opts.Name)
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(opts.RetryInterval):
				}
				continue
			}

			delivered := false
		read:
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-inner:
					if !ok {
						break read
					}
					if !delivered {
						delivered = true
						failures = 0
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}

			if ctx.Err() != nil {
				return
			}
			if !delivered {
				// Connected but dropped before any event: counts as a
				// failed attempt, otherwise a flapping endpoint loops forever.
				failures++
				if failures >= opts.MaxAttempts {
					opts.Logger.Errorf("%s: reconnection attempts exhausted, feed is down", opts.Name)
					return
				}
			}
			opts.Logger.Warnf("%s: connection closed, reconnecting...", opts.Name)
			select {
			case <-ctx.Done():
				return
			case <-time.After(opts.RetryInterval):
			}
		}
	}()

	return out
}
