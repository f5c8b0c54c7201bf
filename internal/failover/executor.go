// Package failover implements the Failover Executor: select, lock,
// refresh-if-needed, dispatch, classify, release, retry-with-exclusion,
// generalized from the teacher's strategy.Strategy.Pick + OnResult
// wiring into the full attempt loop the spec requires.
package failover

import (
	"context"
	"errors"
	"time"

	apierrors "github.com/kestrel-oss/credrelay/internal/errors"
	"github.com/kestrel-oss/credrelay/internal/credlock"
	"github.com/kestrel-oss/credrelay/internal/healthpool"
	"github.com/kestrel-oss/credrelay/internal/selector"
)

// Dispatch performs one upstream call for the given credential id and
// returns either a nil error (success) or an *apierrors.APIError.
// Implementations live in the streaming proxy / handler layer; the
// executor only orchestrates selection, locking and retry.
type Dispatch func(ctx context.Context, credentialID string) error

// RefreshIfNeeded is invoked under the credential's lock before
// dispatch, to give the Token Refresher a chance to rotate an
// about-to-expire token. It is a no-op hook when nil.
type RefreshIfNeeded func(ctx context.Context, credentialID string) error

// Executor runs the select->lock->refresh->dispatch->classify->retry
// loop across a credential pool.
type Executor struct {
	Selector *selector.Selector
	Health   *healthpool.Tracker
	Locks    *credlock.Table
}

// ErrNoCredentials is returned when the pool is empty or every
// candidate has been excluded.
var ErrNoCredentials = errors.New("failover: no eligible credentials")

// Run executes the failover loop. strategy/stickyKey/stickyTTL are
// forwarded to the Selector. refresh may be nil.
func (e *Executor) Run(ctx context.Context, strategy selector.Strategy, candidates []selector.Candidate, stickyKey string, stickyTTL time.Duration, refresh RefreshIfNeeded, dispatch Dispatch) error {
	maxAttempts := len(candidates)
	if maxAttempts > 3 {
		maxAttempts = 3
	}
	if maxAttempts == 0 {
		return ErrNoCredentials
	}

	excluded := make(map[string]bool, maxAttempts)
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		picked, _ := e.Selector.Pick(strategy, candidates, stickyKey, excluded, stickyTTL)
		if picked == nil {
			if lastErr != nil {
				return lastErr
			}
			return ErrNoCredentials
		}

		err := e.attempt(ctx, picked, refresh, dispatch)
		if err == nil {
			return nil
		}
		lastErr = err
		excluded[picked.ID] = true

		var apiErr *apierrors.APIError
		if errors.As(err, &apiErr) && apiErr.Class() == apierrors.ClassBadRequest {
			// Client-input errors never benefit from trying another
			// credential; abort immediately instead of burning attempts.
			return err
		}
	}
	return lastErr
}

func (e *Executor) attempt(ctx context.Context, cand *selector.Candidate, refresh RefreshIfNeeded, dispatch Dispatch) error {
	release, err := e.Locks.Acquire(ctx, cand.ID)
	if err != nil {
		return err
	}
	defer release()

	if refresh != nil {
		if err := refresh(ctx, cand.ID); err != nil {
			e.recordFailure(cand, classifyRefreshErr(err))
			return err
		}
	}

	err = dispatch(ctx, cand.ID)
	if err == nil {
		e.recordSuccess(cand)
		return nil
	}

	class := apierrors.ClassTransient
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		class = apiErr.Class()
	}
	e.recordFailure(cand, class)
	return err
}

func (e *Executor) recordSuccess(cand *selector.Candidate) {
	if e.Health == nil {
		return
	}
	e.Health.RecordSuccess(healthpool.Key{Provider: cand.Provider, CredentialID: cand.ID})
}

func (e *Executor) recordFailure(cand *selector.Candidate, class apierrors.Class) {
	if e.Health == nil {
		return
	}
	e.Health.RecordFailure(healthpool.Key{Provider: cand.Provider, CredentialID: cand.ID}, mapClass(class))
}

func mapClass(c apierrors.Class) healthpool.ErrorClass {
	switch c {
	case apierrors.ClassAuth:
		return healthpool.ErrorClassAuth
	case apierrors.ClassRateLimit:
		return healthpool.ErrorClassRateLimit
	case apierrors.ClassBadRequest:
		return healthpool.ErrorClassBadRequest
	case apierrors.ClassUnavailable:
		return healthpool.ErrorClassUnavailable
	case apierrors.ClassLimitExceeded:
		return healthpool.ErrorClassLimitExceeded
	default:
		return healthpool.ErrorClassTransient
	}
}

func classifyRefreshErr(err error) apierrors.Class {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class()
	}
	return apierrors.ClassAuth
}
