package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"planharvest/internal/components/telemetry"
	"planharvest/internal/scrapers/planbuild"
)

const report_harvest_session = "harvest.session"

// sessionKeeper owns the session of a run. Callers read a snapshot together with its
// generation, and a rejected generation is replaced at most once no matter how many callers
// observed the rejection.
type sessionKeeper struct {
	portal Portal
	tel    telemetry.API

	mu         sync.Mutex
	session    planbuild.Session
	generation int
}

// start discards any previous session and acquires a fresh one.
func (k *sessionKeeper) start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.generation = 0
	k.session = planbuild.Session{}
	return k.acquireLocked(ctx)
}

func (k *sessionKeeper) acquireLocked(ctx context.Context) error {
	session, err := k.portal.AcquireSession(ctx)
	if err != nil {
		return err
	}
	k.session = session
	k.generation++
	k.tel.ReportDebug(report_harvest_session, "acquired", k.generation)
	return nil
}

// current returns the live session, acquiring one when none exists yet.
func (k *sessionKeeper) current(ctx context.Context) (planbuild.Session, int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.generation == 0 {
		if err := k.acquireLocked(ctx); err != nil {
			return planbuild.Session{}, 0, err
		}
	}
	return k.session, k.generation, nil
}

// renew replaces the session if rejected is still the live generation, otherwise it returns
// the session someone else already acquired.
func (k *sessionKeeper) renew(ctx context.Context, rejected int) (planbuild.Session, int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.generation != rejected {
		return k.session, k.generation, nil
	}
	k.tel.ReportWarning(report_harvest_session, "session rejected, re-acquiring", rejected)
	if err := k.acquireLocked(ctx); err != nil {
		return planbuild.Session{}, 0, err
	}
	return k.session, k.generation, nil
}

// withSession runs call with the live session. When the portal rejects it as
// unauthenticated the session is renewed once and call is retried once.
func withSession[T any](ctx context.Context, k *sessionKeeper, call func(planbuild.Session) (T, error)) (T, error) {
	session, generation, err := k.current(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	out, err := call(session)
	if !errors.Is(err, planbuild.ErrUnauthenticated) {
		return out, err
	}

	session, _, renewErr := k.renew(ctx, generation)
	if renewErr != nil {
		return out, fmt.Errorf("%w (re-acquire failed: %w)", err, renewErr)
	}
	return call(session)
}
