package trymerge

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/githubclt"
	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/registry"
	"github.com/simplesurance/trymerger/internal/retryer"
	"github.com/simplesurance/trymerger/internal/store"
)

const loggerName = "trymerge"

const (
	DefJobTimeout            = time.Hour
	DefStatusInitialDelay    = 5 * time.Second
	DefStatusPollMaxInterval = time.Minute
	DefStatusTimeout         = 30 * time.Minute

	// persistTimeout is the timeout for recording the final state of a
	// job and reporting it. It is applied independent of the job context,
	// to record the result of jobs that were cancelled.
	persistTimeout = 30 * time.Second
)

// AbandonedJobMsg is the error message of jobs that were still active when
// the service was restarted.
const AbandonedJobMsg = "abandoned: service restarted while job was running"

//go:generate mockgen -destination mocks/mocks.go -package mocks . PlatformClient,JobStore

// PlatformClient is the interface of the code hosting platform that is used
// to create try branches and evaluate them.
type PlatformClient interface {
	FetchPullRequest(ctx context.Context, owner, repo string, number int) (*githubclt.PullRequest, error)
	SynthesizeTryBranch(ctx context.Context, req *githubclt.TryBranchRequest) (*githubclt.TryBranch, error)
	CombinedStatus(ctx context.Context, owner, repo, ref string) (string, error)
	StatusCheckRollup(ctx context.Context, owner, repo, sha string) (string, error)
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
}

// JobStore persists repositories and jobs.
// Implementations are not a concurrency control point, the registry ensures
// that only one job per pull request is running.
type JobStore interface {
	// UpsertRepository creates the repository record or updates its
	// mutable fields. If another repository record has the same full name,
	// the record is outdated and its full name is released.
	UpsertRepository(ctx context.Context, repo *store.Repository) error
	// CreateJob inserts a new job. If a job with the same ID exists,
	// store.ErrAlreadyExists is returned.
	CreateJob(ctx context.Context, job *store.TryMergeJob) error
	// UpdateJob stores the status, updated_at and error_message fields of
	// a job that is not in a terminal state yet.
	// If no such job exists store.ErrNotFound is returned.
	UpdateJob(ctx context.Context, job *store.TryMergeJob) error
	// ActiveJobs returns all jobs in pending or running state, newest first.
	ActiveJobs(ctx context.Context) ([]*store.TryMergeJob, error)
}

// Retryer is an interface used for running PlatformClient methods
// repeatedly if they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
	Stop()
}

// Command is a bot command that triggers a try-merge.
type Command struct {
	Name string
	// BranchPrefix is the prefix of the try branch names, the try branch
	// of a pull request is named BranchPrefix/<PR-Number>.
	BranchPrefix string
}

// BranchName returns the name of the try branch for a pull request.
func BranchName(prefix string, prNumber int) string {
	return fmt.Sprintf("%s/%d", prefix, prNumber)
}

// Orchestrator runs try-merges for pull requests.
// Only one try-merge per pull request runs at the same time, commands for a
// pull request that has a running try-merge are ignored.
type Orchestrator struct {
	clt      PlatformClient
	store    JobStore
	registry *registry.Registry
	retryer  Retryer
	logger   *zap.Logger

	branchPrefixes map[string]string

	statusSource          string
	statusInitialDelay    time.Duration
	statusPollMaxInterval time.Duration
	statusTimeout         time.Duration
	jobTimeout            time.Duration

	routineDeferFn func()

	shutdownCtx context.Context
	shutdownFn  context.CancelFunc

	lock    sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

type Opt func(*Orchestrator)

// WithStatusSource sets how the status of a try branch is evaluated.
// Supported values are StatusSourceCombined and StatusSourceRollup.
func WithStatusSource(source string) Opt {
	return func(o *Orchestrator) {
		o.statusSource = source
	}
}

// WithStatusPolling configures how the status of try branches is polled.
// Polling starts after initialDelay, the interval between polls grows
// exponentially up to maxInterval. When the status is not final after
// timeout, the try-merge fails.
func WithStatusPolling(initialDelay, maxInterval, timeout time.Duration) Opt {
	return func(o *Orchestrator) {
		o.statusInitialDelay = initialDelay
		o.statusPollMaxInterval = maxInterval
		o.statusTimeout = timeout
	}
}

// WithJobTimeout sets the maximum duration of a try-merge.
func WithJobTimeout(timeout time.Duration) Opt {
	return func(o *Orchestrator) {
		o.jobTimeout = timeout
	}
}

// WithRetryer sets the retryer that is used to post result comments.
func WithRetryer(r Retryer) Opt {
	return func(o *Orchestrator) {
		o.retryer = r
	}
}

// WithRoutineDeferFunc sets a function that is deferred in every go-routine
// that is started by Dispatch.
// It can be used to set a panic handler.
func WithRoutineDeferFunc(fn func()) Opt {
	return func(o *Orchestrator) {
		o.routineDeferFn = fn
	}
}

func New(clt PlatformClient, jobStore JobStore, commands []*Command, opts ...Opt) *Orchestrator {
	o := Orchestrator{
		clt:                   clt,
		store:                 jobStore,
		registry:              registry.New(),
		logger:                zap.L().Named(loggerName),
		branchPrefixes:        make(map[string]string, len(commands)),
		statusSource:          StatusSourceCombined,
		statusInitialDelay:    DefStatusInitialDelay,
		statusPollMaxInterval: DefStatusPollMaxInterval,
		statusTimeout:         DefStatusTimeout,
		jobTimeout:            DefJobTimeout,
	}

	for _, cmd := range commands {
		o.branchPrefixes[cmd.Name] = cmd.BranchPrefix
	}

	for _, opt := range opts {
		opt(&o)
	}

	if o.retryer == nil {
		o.retryer = retryer.New()
	}

	o.shutdownCtx, o.shutdownFn = context.WithCancel(context.Background())

	return &o
}

func logFieldsJob(repo *store.Repository, prNumber int, command string) []zap.Field {
	return []zap.Field{
		logfields.Repository(repo.FullName),
		logfields.PullRequest(prNumber),
		logfields.Command(command),
	}
}

// begin validates the command, acquires the registry slot for the pull
// request and registers the try-merge in the wait group.
// On success the caller must call finish.
func (o *Orchestrator) begin(repo *store.Repository, prNumber int, command string) (key, branch string, err error) {
	prefix, exists := o.branchPrefixes[command]
	if !exists {
		metrics.DispatchIgnoredInc(ignoreReasonUnknownCommand)
		return "", "", ErrUnknownCommand
	}

	key = registry.Key(repo.FullName, prNumber)
	if !o.registry.TryAcquire(key) {
		metrics.DispatchIgnoredInc(ignoreReasonDuplicate)
		return "", "", ErrDuplicateInFlight
	}

	o.lock.Lock()
	defer o.lock.Unlock()

	if o.stopped {
		o.registry.Release(key)
		metrics.DispatchIgnoredInc(ignoreReasonStopped)
		return "", "", ErrStopped
	}

	o.wg.Add(1)

	return key, BranchName(prefix, prNumber), nil
}

func (o *Orchestrator) finish(key string) {
	o.registry.Release(key)
	o.wg.Done()
}

// execute runs a try-merge that was registered via begin.
// ctx is cancelled when the Orchestrator is stopped.
func (o *Orchestrator) execute(ctx context.Context, key string, repo *store.Repository, prNumber int, command, branch string) (*store.TryMergeJob, error) {
	defer o.finish(key)

	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	stop := context.AfterFunc(o.shutdownCtx, cancelFn)
	defer stop()

	return o.run(ctx, key, repo, prNumber, command, branch)
}

// Execute runs a try-merge for the pull request and returns the resulting
// job.
// ErrUnknownCommand is returned if no branch prefix is configured for
// command, ErrDuplicateInFlight if a try-merge for the pull request is
// already running and ErrStopped after Stop was called. In these cases no
// job is created.
// Failures of the try-merge itself are not returned as error, they are
// recorded in the returned job.
// A *PersistenceError is returned when storing the job state failed, the
// returned job is nil if the job could not be created.
// Stop cancels ctx and waits for Execute to return.
func (o *Orchestrator) Execute(ctx context.Context, repo *store.Repository, prNumber int, command string) (*store.TryMergeJob, error) {
	key, branch, err := o.begin(repo, prNumber, command)
	if err != nil {
		return nil, err
	}

	return o.execute(ctx, key, repo, prNumber, command, branch)
}

// Dispatch starts a try-merge for the pull request asynchronously.
// It returns true if a try-merge was started. False is returned if the
// command is unknown, a try-merge for the pull request is already running or
// the Orchestrator was stopped.
// The result of the try-merge is recorded in the JobStore and reported as
// comment on the pull request.
func (o *Orchestrator) Dispatch(_ context.Context, repo *store.Repository, prNumber int, command string) bool {
	key, branch, err := o.begin(repo, prNumber, command)
	if err != nil {
		o.logger.Info(
			"ignoring try-merge command",
			append(logFieldsJob(repo, prNumber, command),
				logfields.Event("trymerge_command_ignored"),
				zap.Error(err),
			)...,
		)
		return false
	}

	go func() {
		if o.routineDeferFn != nil {
			defer o.routineDeferFn()
		}

		// errors are logged by run()
		_, _ = o.execute(context.Background(), key, repo, prNumber, command, branch)
	}()

	return true
}

func (o *Orchestrator) run(ctx context.Context, key string, repo *store.Repository, prNumber int, command, branch string) (*store.TryMergeJob, error) {
	logger := o.logger.With(logFieldsJob(repo, prNumber, command)...).With(logfields.TryBranch(branch))

	if err := o.store.UpsertRepository(ctx, repo); err != nil {
		logger.Error(
			"storing repository failed, try-merge not started",
			logfields.Event("trymerge_persisting_repository_failed"),
			zap.Error(err),
		)
		return nil, &PersistenceError{Operation: "storing repository", Err: err}
	}

	job := store.NewRunningJob(repo.ID, prNumber, branch)
	if err := o.store.CreateJob(ctx, job); err != nil {
		logger.Error(
			"creating job failed, try-merge not started",
			logfields.Event("trymerge_persisting_job_failed"),
			zap.Error(err),
		)
		return nil, &PersistenceError{Operation: "creating job", Err: err}
	}

	o.registry.SetJobID(key, job.ID.String())
	logger = logger.With(logfields.JobID(job.ID.String()))

	logger.Info("try-merge started", logfields.Event("trymerge_started"))
	metrics.JobStarted()
	startTime := time.Now()

	jobCtx, cancelFn := context.WithTimeout(ctx, o.jobTimeout)
	err := o.runProtocol(jobCtx, logger, repo, prNumber, branch)
	cancelFn()

	if err == nil {
		job.Complete()
	} else {
		job.Fail(failureMessage(err))
	}

	metrics.JobFinished(job.Status, time.Since(startTime))

	logger.Info(
		"try-merge finished",
		logfields.Event("trymerge_finished"),
		logfields.JobStatus(string(job.Status)),
		zap.String("error_message", job.Error()),
		zap.Duration("duration", time.Since(startTime)),
	)

	persistCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelFn()

	var persistErr error
	if err := o.store.UpdateJob(persistCtx, job); err != nil {
		logger.Error(
			"recording job result failed",
			logfields.Event("trymerge_persisting_job_failed"),
			zap.Error(err),
		)
		persistErr = &PersistenceError{Operation: "updating job", Err: err}
	}

	o.report(persistCtx, logger, repo, prNumber, job)

	return job, persistErr
}

// runProtocol runs the try-merge steps.
// Panics are converted to errors, they must not prevent recording the job
// result.
func (o *Orchestrator) runProtocol(ctx context.Context, logger *zap.Logger, repo *store.Repository, prNumber int, branch string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(
				"try-merge panicked",
				logfields.Event("trymerge_panic"),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.ByteString("stacktrace", debug.Stack()),
			)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	pr, err := o.clt.FetchPullRequest(ctx, repo.Owner, repo.Name, prNumber)
	if err != nil {
		return fmt.Errorf("retrieving pull request failed: %w", err)
	}

	if pr.IsClosed() {
		return errPullRequestClosed
	}

	baseBranch := repo.DefaultBranch
	if baseBranch == "" {
		baseBranch = pr.BaseBranch
	}

	req := githubclt.TryBranchRequest{
		Owner:      repo.Owner,
		Repo:       repo.Name,
		Branch:     branch,
		BaseBranch: baseBranch,
		HeadBranch: pr.HeadBranch,
	}

	if pr.IsFromFork(repo.ID) {
		req.HeadSHA = pr.HeadSHA
	}

	tb, err := o.clt.SynthesizeTryBranch(ctx, &req)
	if err != nil {
		return err
	}

	logger.Debug(
		"try branch created, waiting for status",
		logfields.Event("trymerge_try_branch_created"),
		logfields.BaseBranch(baseBranch),
		logfields.Commit(tb.SHA),
	)

	return o.waitForSuccessStatus(ctx, logger, repo, tb.SHA)
}

// Stop cancels all running try-merges and waits until they terminated.
// Dispatch calls after Stop are ignored.
func (o *Orchestrator) Stop() {
	o.lock.Lock()
	o.stopped = true
	o.lock.Unlock()

	o.logger.Debug("stopping orchestrator, cancelling running try-merges", logfields.Event("trymerge_stopping"))

	o.shutdownFn()
	o.retryer.Stop()

	o.wg.Wait()

	o.logger.Debug("orchestrator stopped", logfields.Event("trymerge_stopped"))
}

// Reconcile marks all jobs that are in pending or running state as failed.
// It must be called on startup before jobs are dispatched, jobs that are
// active at that point were interrupted by a restart.
// It returns the number of jobs that were marked as failed.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	jobs, err := o.store.ActiveJobs(ctx)
	if err != nil {
		return 0, &PersistenceError{Operation: "listing active jobs", Err: err}
	}

	var cnt int
	var errs []error

	for _, job := range jobs {
		job.Fail(AbandonedJobMsg)

		if err := o.store.UpdateJob(ctx, job); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}

			errs = append(errs, fmt.Errorf("%s: %w", job.ID, err))
			continue
		}

		o.logger.Info(
			"marked abandoned job as failed",
			logfields.Event("trymerge_abandoned_job_failed"),
			logfields.JobID(job.ID.String()),
			logfields.PullRequest(job.PRNumber),
			logfields.TryBranch(job.BranchName),
		)

		cnt++
	}

	if len(errs) != 0 {
		return cnt, &PersistenceError{Operation: "updating abandoned jobs", Err: errors.Join(errs...)}
	}

	return cnt, nil
}

// Running returns the registry entries of the running try-merges, ordered
// by their start time.
func (o *Orchestrator) Running() []registry.Entry {
	return o.registry.Entries()
}
