package trymerge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/platformerr"
	"github.com/simplesurance/trymerger/internal/store"
)

func failureMessage(err error) string {
	if platformerr.KindOf(err) == platformerr.MergeConflict {
		return "conflicting changes, the pull request can not be merged into the base branch: " + err.Error()
	}

	return err.Error()
}

func resultComment(job *store.TryMergeJob) string {
	if job.Status == store.JobStatusCompleted {
		return fmt.Sprintf(
			"trymerger: try-merge succeeded :white_check_mark:\n\n"+
				"The pull request was merged into `%s` and all checks passed.",
			job.BranchName,
		)
	}

	return fmt.Sprintf(
		"trymerger: try-merge failed :x:\n\n"+
			"Try branch: `%s`\n"+
			"Error: %s",
		job.BranchName, job.Error(),
	)
}

// report posts the result of job as comment on the pull request.
// Failures are logged, they do not change the state of the job.
func (o *Orchestrator) report(ctx context.Context, logger *zap.Logger, repo *store.Repository, prNumber int, job *store.TryMergeJob) {
	comment := resultComment(job)

	err := o.retryer.Run(ctx, func(ctx context.Context) error {
		return o.clt.CreateIssueComment(ctx, repo.Owner, repo.Name, prNumber, comment)
	}, []zap.Field{
		logfields.Repository(repo.FullName),
		logfields.PullRequest(prNumber),
		logfields.JobID(job.ID.String()),
	})
	if err != nil {
		logger.Warn(
			"posting try-merge result comment failed",
			logfields.Event("trymerge_result_comment_failed"),
			zap.Error(err),
		)
		return
	}

	logger.Debug(
		"posted try-merge result comment",
		logfields.Event("trymerge_result_comment_posted"),
	)
}
