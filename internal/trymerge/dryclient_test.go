package trymerge

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/trymerger/internal/githubclt"
	"github.com/simplesurance/trymerger/internal/store"
	"github.com/simplesurance/trymerger/internal/store/memstore"
	"github.com/simplesurance/trymerger/internal/trymerge/mocks"
)

type branchReaderClient struct {
	*mocks.MockPlatformClient
	heads map[string]string
}

func (c *branchReaderClient) BranchHead(_ context.Context, _, _, branch string) (string, error) {
	return c.heads[branch], nil
}

func TestDryPlatformClientSimulatesWrites(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	clt := &branchReaderClient{
		MockPlatformClient: mocks.NewMockPlatformClient(mockctrl),
		heads:              map[string]string{"main": "basesha", "feature-x": "headsha"},
	}

	clt.EXPECT().
		FetchPullRequest(gomock.Any(), repoOwner, repoName, prNumber).
		Return(openPR(), nil)
	// the status of the pull request head is evaluated
	clt.EXPECT().
		CombinedStatus(gomock.Any(), repoOwner, repoName, "headsha").
		Return(githubclt.StatusSuccess, nil)
	// CreateIssueComment and SynthesizeTryBranch must not be forwarded

	dryClt := NewDryPlatformClient(clt, zap.L())
	jobStore := memstore.New()
	o := newTestOrchestrator(t, dryClt, jobStore)

	job, err := o.Execute(context.Background(), newRepo(), prNumber, "try")
	require.NoError(t, err)
	assert.Equal(t, store.JobStatusCompleted, job.Status)
}

func TestDryPlatformClientSynthesizeTryBranchUsesGivenHeadSHA(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mockctrl := gomock.NewController(t)
	clt := &branchReaderClient{
		MockPlatformClient: mocks.NewMockPlatformClient(mockctrl),
		heads:              map[string]string{"main": "basesha"},
	}

	dryClt := NewDryPlatformClient(clt, zap.L())

	tb, err := dryClt.SynthesizeTryBranch(context.Background(), &githubclt.TryBranchRequest{
		Owner:      repoOwner,
		Repo:       repoName,
		Branch:     tryBranch,
		BaseBranch: "main",
		HeadBranch: "branch-in-fork",
		HeadSHA:    "forksha",
	})
	require.NoError(t, err)

	assert.Equal(t, &githubclt.TryBranch{
		Name:    tryBranch,
		BaseSHA: "basesha",
		HeadSHA: "forksha",
		SHA:     "forksha",
	}, tb)
}
