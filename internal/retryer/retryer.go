// Package retryer runs operations repeatedly while they fail with retryable
// platform errors.
package retryer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/platformerr"
)

const DefTimeout = 10 * time.Minute

const loggerName = "retryer"

// Retryer executes a function repeatedly until it was successful or cancel
// condition happened.
type Retryer struct {
	logger       *zap.Logger
	shutdownChan chan struct{}

	defTimeout                 time.Duration
	backoffInitialInterval     time.Duration
	backoffRandomizationFactor float64
}

func New() *Retryer {
	return &Retryer{
		logger:                     zap.L().Named(loggerName),
		shutdownChan:               make(chan struct{}),
		defTimeout:                 DefTimeout,
		backoffInitialInterval:     5 * time.Second,
		backoffRandomizationFactor: backoff.DefaultRandomizationFactor,
	}
}

func logFieldOperationResult(val string) zap.Field {
	return zap.String("operation_result", val)
}

// Run executes fn until it was successful, it returned an error that is not
// retryable according to platformerr.IsRetryable(), the context was
// cancelled or Stop() was called.
// If ctx has no deadline, a deadline of DefTimeout is applied.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, r.defTimeout)
		defer cancelFn()
	}

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval
	bo.RandomizationFactor = r.backoffRandomizationFactor
	bo.MaxElapsedTime = 0
	bo.Reset()

	baseLogger := r.logger.With(logF...)

	for {
		tryCnt++
		logger := baseLogger.With(zap.Uint("try_count", tryCnt))

		select {
		case <-ctx.Done():
			logger.Info(
				"operation execution cancelled",
				logfields.Event("operation_execution_cancelled"),
				logFieldOperationResult("cancelled"),
				zap.Error(ctx.Err()),
			)

			return ctx.Err()

		case <-retryTimer.C:
			err := fn(ctx)
			if err == nil {
				logger.Debug(
					"operation executed successfully",
					logfields.Event("operation_executed_successfully"),
					logFieldOperationResult("success"),
				)

				return nil
			}

			logger = logger.With(zap.Error(err))

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info(
					"operation cancelled",
					logfields.Event("operation_cancelled"),
					logFieldOperationResult("cancelled"),
				)

				return err
			}

			if !platformerr.IsRetryable(err) {
				logger.Debug(
					"operation failed, not retryable",
					logfields.Event("operation_failed"),
					logFieldOperationResult("failure"),
				)

				return err
			}

			var retryIn time.Duration
			if after := platformerr.RetryAfter(err); after.After(time.Now()) {
				if deadline, ok := ctx.Deadline(); ok && after.After(deadline) {
					logger.Info(
						"operation failed, next possible retry time is after the deadline",
						logfields.Event("operation_failed"),
						zap.Time("earliest_allowed_retry", after),
						logFieldOperationResult("failure"),
					)

					return err
				}

				retryIn = time.Until(after)
			} else {
				retryIn = bo.NextBackOff()
			}

			retryTimer.Reset(retryIn)
			logger.Info(
				"operation failed, retry scheduled",
				logfields.Event("operation_retry_scheduled"),
				zap.Duration("retry_in", retryIn),
				zap.Duration("age", bo.GetElapsedTime()),
			)

		case <-r.shutdownChan:
			logger.Info(
				"retryer terminating, operation not executed",
				logfields.Event("operation_execution_cancelled_retryer_terminated"),
				logFieldOperationResult("cancelled"),
			)

			return context.Canceled
		}
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}
