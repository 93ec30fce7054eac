package trymerge

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/githubclt"
	"github.com/simplesurance/trymerger/internal/logfields"
)

// BranchReader is implemented by platform clients that can read branch
// heads.
type BranchReader interface {
	BranchHead(ctx context.Context, owner, repo, branch string) (string, error)
}

// ReadPlatformClient is the PlatformClient that is wrapped by the
// DryPlatformClient.
type ReadPlatformClient interface {
	PlatformClient
	BranchReader
}

// DryPlatformClient is a PlatformClient that does not do any changes on
// github.
// All operations that could cause a change are simulated and always succeed.
// All other operations are forwarded to a wrapped client.
// Try branches are simulated by evaluating the status of the pull request
// head commit.
type DryPlatformClient struct {
	clt    ReadPlatformClient
	logger *zap.Logger
}

func NewDryPlatformClient(clt ReadPlatformClient, logger *zap.Logger) *DryPlatformClient {
	return &DryPlatformClient{
		clt:    clt,
		logger: logger.Named("dry_platform_client"),
	}
}

func (c *DryPlatformClient) FetchPullRequest(ctx context.Context, owner, repo string, number int) (*githubclt.PullRequest, error) {
	return c.clt.FetchPullRequest(ctx, owner, repo, number)
}

func (c *DryPlatformClient) SynthesizeTryBranch(ctx context.Context, req *githubclt.TryBranchRequest) (*githubclt.TryBranch, error) {
	baseSHA, err := c.clt.BranchHead(ctx, req.Owner, req.Repo, req.BaseBranch)
	if err != nil {
		return nil, err
	}

	headSHA := req.HeadSHA
	if headSHA == "" {
		headSHA, err = c.clt.BranchHead(ctx, req.Owner, req.Repo, req.HeadBranch)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Info(
		"simulated creating try branch, status of the pull request head is evaluated instead",
		logfields.Event("dry_try_branch_simulated"),
		logfields.RepositoryOwner(req.Owner),
		logfields.Repository(req.Repo),
		logfields.TryBranch(req.Branch),
		logfields.BaseBranch(req.BaseBranch),
		logfields.Commit(headSHA),
	)

	return &githubclt.TryBranch{
		Name:    req.Branch,
		BaseSHA: baseSHA,
		HeadSHA: headSHA,
		SHA:     headSHA,
	}, nil
}

func (c *DryPlatformClient) CombinedStatus(ctx context.Context, owner, repo, ref string) (string, error) {
	return c.clt.CombinedStatus(ctx, owner, repo, ref)
}

func (c *DryPlatformClient) StatusCheckRollup(ctx context.Context, owner, repo, sha string) (string, error) {
	return c.clt.StatusCheckRollup(ctx, owner, repo, sha)
}

func (c *DryPlatformClient) CreateIssueComment(_ context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	c.logger.Info(
		"simulated creating of github issue comment, no comment created on github",
		logfields.Event("dry_issue_comment_simulated"),
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(issueOrPRNr),
		zap.String("comment", comment),
	)
	return nil
}
