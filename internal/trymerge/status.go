package trymerge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/githubclt"
	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/platformerr"
	"github.com/simplesurance/trymerger/internal/store"
)

const (
	// StatusSourceCombined evaluates the combined commit status.
	StatusSourceCombined = "combined"
	// StatusSourceRollup evaluates the status check rollup, it includes
	// the results of check runs.
	StatusSourceRollup = "rollup"
)

const statusPollInitialInterval = 2 * time.Second

func (o *Orchestrator) fetchStatus(ctx context.Context, repo *store.Repository, sha string) (string, error) {
	if o.statusSource == StatusSourceRollup {
		return o.clt.StatusCheckRollup(ctx, repo.Owner, repo.Name, sha)
	}

	return o.clt.CombinedStatus(ctx, repo.Owner, repo.Name, sha)
}

func (o *Orchestrator) newPollBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = min(statusPollInitialInterval, o.statusPollMaxInterval)
	bo.MaxInterval = o.statusPollMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	return bo
}

// waitForSuccessStatus polls the status of the commit sha until it is final.
// It returns nil if the state is success.
// If the state is not final when the status timeout expires, an error of
// kind platformerr.Timeout is returned.
// Every other state than success or pending causes an error that contains
// the state.
func (o *Orchestrator) waitForSuccessStatus(ctx context.Context, logger *zap.Logger, repo *store.Repository, sha string) error {
	ctx, cancelFn := context.WithTimeout(ctx, o.statusTimeout)
	defer cancelFn()

	var lastState string

	timer := time.NewTimer(o.statusInitialDelay)
	defer timer.Stop()

	bo := o.newPollBackoff()

	for {
		select {
		case <-ctx.Done():
			return o.statusWaitAbortedErr(ctx, sha, lastState)
		case <-timer.C:
		}

		state, err := o.fetchStatus(ctx, repo, sha)
		if err != nil {
			if ctx.Err() != nil {
				return o.statusWaitAbortedErr(ctx, sha, lastState)
			}

			if !platformerr.IsRetryable(err) {
				return fmt.Errorf("retrieving status of %s failed: %w", sha, err)
			}

			logger.Info(
				"retrieving status failed, retrying",
				logfields.Event("trymerge_status_fetch_failed"),
				logfields.Commit(sha),
				zap.Error(err),
			)
		} else {
			lastState = state

			logger.Debug(
				"retrieved status of try branch",
				logfields.Event("trymerge_status_retrieved"),
				logfields.Commit(sha),
				zap.String("status", state),
			)

			switch state {
			case githubclt.StatusSuccess:
				return nil
			case githubclt.StatusPending:
			default:
				return fmt.Errorf("status of try branch commit %s is %q", sha, state)
			}
		}

		delay := bo.NextBackOff()
		if retryAfter := platformerr.RetryAfter(err); !retryAfter.IsZero() {
			delay = max(delay, time.Until(retryAfter))
		}

		timer.Reset(delay)
	}
}

func (o *Orchestrator) statusWaitAbortedErr(ctx context.Context, sha, lastState string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return platformerr.New(
			platformerr.Timeout,
			"wait_for_status", 0,
			fmt.Errorf("status of try branch commit %s did not become final in time, last state: %q", sha, lastState),
		)
	}

	return fmt.Errorf("waiting for status of try branch commit %s aborted, last state: %q: %w", sha, lastState, ctx.Err())
}
