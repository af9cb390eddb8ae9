package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ympact/typesense-sync/internal/kv"
	"github.com/ympact/typesense-sync/internal/metrics"
	"github.com/ympact/typesense-sync/internal/model"
)

const leasePrefix = "typesense_migrating."

var errLeaseHeld = errors.New("lease held")

// ErrLeaseLost aborts a run whose lease expired and may now belong to
// another process.
var ErrLeaseLost = errors.New("migration lease lost")

// lease is a per-alias mutual exclusion entry in the shared state store.
// It expires on its own if the holder dies; a live holder renews it.
type lease struct {
	store kv.Store
	key   string
	owner string
	ttl   time.Duration
}

// LeaseKey is the state store key guarding migrations of alias.
func LeaseKey(alias string) string { return leasePrefix + alias }

func (m *Manager) acquire(ctx context.Context, alias string) (*lease, error) {
	l := &lease{store: m.leases, key: LeaseKey(alias), owner: uuid.NewString(), ttl: m.opts.LockTTL}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if m.opts.LockWait > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 100 * time.Millisecond
		exp.MaxInterval = 2 * time.Second
		exp.MaxElapsedTime = m.opts.LockWait
		exp.Reset()
		policy = exp
	}

	err := backoff.Retry(func() error {
		ok, err := l.store.PutIfAbsent(ctx, l.key, l.owner, l.ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLeaseHeld
		}
		return nil
	}, backoff.WithContext(policy, ctx))

	switch {
	case err == nil:
		m.log.Debug().Str("alias", alias).Str("owner", l.owner).Msg("migration lease acquired")
		return l, nil
	case errors.Is(err, errLeaseHeld):
		metrics.LeaseContendedTotal.WithLabelValues(alias).Inc()
		return nil, fmt.Errorf("%w: alias %q", model.ErrMigrationInProgress, alias)
	default:
		return nil, fmt.Errorf("acquire migration lease for %q: %w", alias, err)
	}
}

// release drops the lease only if this run still owns it.
func (l *lease) release(ctx context.Context) error {
	_, err := l.store.DeleteIf(context.WithoutCancel(ctx), l.key, l.owner)
	return err
}

// renew pushes the expiry out by another ttl.
func (l *lease) renew(ctx context.Context) error {
	ok, err := l.store.Extend(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("renew migration lease %q: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
	}
	return nil
}

// keepAlive renews the lease every third of its ttl until the returned stop
// is called. A lease found lost cancels ctx with ErrLeaseLost; store errors
// are logged and retried on the next tick.
func (l *lease) keepAlive(ctx context.Context, log zerolog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(l.ttl / 3)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				err := l.renew(ctx)
				switch {
				case err == nil:
				case errors.Is(err, ErrLeaseLost):
					log.Error().Err(err).Str("owner", l.owner).Msg("migration lease lost")
					cancel(err)
					return
				default:
					log.Warn().Err(err).Str("owner", l.owner).Msg("migration lease renewal failed")
				}
			}
		}
	}()
	return ctx, func() {
		cancel(nil)
		<-done
	}
}
