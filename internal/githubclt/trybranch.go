package githubclt

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/logfields"
)

// TryBranchRequest describes a try branch that combines the head of a pull
// request with its base branch.
type TryBranchRequest struct {
	Owner string
	Repo  string
	// Branch is the name of the try branch.
	Branch     string
	BaseBranch string
	HeadBranch string
	// HeadSHA, if set, is merged instead of the current head of HeadBranch.
	// It is required for pull requests from forks, their HeadBranch does
	// not exist in the base repository.
	HeadSHA string
}

// TryBranch is the result of a successful SynthesizeTryBranch call.
type TryBranch struct {
	Name    string
	BaseSHA string
	HeadSHA string
	// SHA is the commit id of the head of the try branch.
	SHA string
}

// SynthesizeTryBranch (re)creates the branch req.Branch at the head of
// req.BaseBranch and merges the head of the pull request into it.
// An existing branch with the same name is deleted first, failing to delete
// it is ignored.
// When the merge fails because of conflicting changes, an error of kind
// platformerr.MergeConflict is returned.
func (clt *Client) SynthesizeTryBranch(ctx context.Context, req *TryBranchRequest) (*TryBranch, error) {
	if req.Branch == "" {
		return nil, errors.New("try branch name is empty")
	}

	logger := clt.logger.With(
		logfields.RepositoryOwner(req.Owner),
		logfields.Repository(req.Repo),
		logfields.TryBranch(req.Branch),
	)

	baseSHA, err := clt.BranchHead(ctx, req.Owner, req.Repo, req.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("retrieving head of base branch %q failed: %w", req.BaseBranch, err)
	}

	headSHA := req.HeadSHA
	if headSHA == "" {
		headSHA, err = clt.BranchHead(ctx, req.Owner, req.Repo, req.HeadBranch)
		if err != nil {
			return nil, fmt.Errorf("retrieving head of branch %q failed: %w", req.HeadBranch, err)
		}
	}

	if err := clt.DeleteBranch(ctx, req.Owner, req.Repo, req.Branch); err != nil {
		logger.Debug(
			"deleting existing try branch failed, ignoring error",
			logfields.Event("github_try_branch_delete_failed"),
			zap.Error(err),
		)
	}

	if err := clt.CreateBranch(ctx, req.Owner, req.Repo, req.Branch, baseSHA); err != nil {
		return nil, fmt.Errorf("creating branch %q at %s failed: %w", req.Branch, baseSHA, err)
	}

	mergeSHA, err := clt.MergeIntoBranch(
		ctx, req.Owner, req.Repo, req.Branch, headSHA,
		"Try merge into "+req.Branch,
	)
	if err != nil {
		return nil, fmt.Errorf("merging %s into %q failed: %w", headSHA, req.Branch, err)
	}

	result := TryBranch{
		Name:    req.Branch,
		BaseSHA: baseSHA,
		HeadSHA: headSHA,
		SHA:     mergeSHA,
	}

	if mergeSHA == "" {
		// base already contains head, the branch was not changed
		result.SHA = baseSHA
	}

	logger.Debug(
		"try branch created",
		logfields.Event("github_try_branch_created"),
		logfields.BaseBranch(req.BaseBranch),
		logfields.Commit(result.SHA),
	)

	return &result, nil
}
