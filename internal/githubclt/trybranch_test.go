package githubclt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/trymerger/internal/platformerr"
)

type fakeRepo struct {
	mu    sync.Mutex
	calls []string

	deleteStatus int
	createStatus int
	mergeStatus  int

	createBody map[string]string
	mergeBody  map[string]string
}

func (f *fakeRepo) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRepo) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRepo) mux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /repos/acme/widgets/branches/main", func(w http.ResponseWriter, _ *http.Request) {
		f.record("get_branch main")
		_, _ = io.WriteString(w, `{"name": "main", "commit": {"sha": "basesha"}}`)
	})

	mux.HandleFunc("GET /repos/acme/widgets/branches/feature-x", func(w http.ResponseWriter, _ *http.Request) {
		f.record("get_branch feature-x")
		_, _ = io.WriteString(w, `{"name": "feature-x", "commit": {"sha": "headsha"}}`)
	})

	mux.HandleFunc("DELETE /repos/acme/widgets/git/refs/heads/automation/bot/try/42", func(w http.ResponseWriter, _ *http.Request) {
		f.record("delete_ref")
		w.WriteHeader(f.deleteStatus)
		if f.deleteStatus != http.StatusNoContent {
			_, _ = io.WriteString(w, `{"message": "Reference does not exist"}`)
		}
	})

	mux.HandleFunc("POST /repos/acme/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		f.record("create_ref")
		var body struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.createBody = map[string]string{"ref": body.Ref, "sha": body.SHA}
		f.mu.Unlock()

		w.WriteHeader(f.createStatus)
		if f.createStatus == http.StatusCreated {
			_, _ = io.WriteString(w, `{"ref": "refs/heads/automation/bot/try/42", "object": {"sha": "basesha"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"message": "Reference already exists"}`)
	})

	mux.HandleFunc("POST /repos/acme/widgets/merges", func(w http.ResponseWriter, r *http.Request) {
		f.record("merge")
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.mergeBody = body
		f.mu.Unlock()

		w.WriteHeader(f.mergeStatus)
		switch f.mergeStatus {
		case http.StatusCreated:
			_, _ = io.WriteString(w, `{"sha": "mergesha"}`)
		case http.StatusConflict:
			_, _ = io.WriteString(w, `{"message": "Merge conflict"}`)
		}
	})

	return mux
}

func newTryBranchRequest() *TryBranchRequest {
	return &TryBranchRequest{
		Owner:      "acme",
		Repo:       "widgets",
		Branch:     "automation/bot/try/42",
		BaseBranch: "main",
		HeadBranch: "feature-x",
	}
}

func TestSynthesizeTryBranch(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	repo := fakeRepo{
		deleteStatus: http.StatusNoContent,
		createStatus: http.StatusCreated,
		mergeStatus:  http.StatusCreated,
	}
	clt := newTestClient(t, repo.mux(t))

	tb, err := clt.SynthesizeTryBranch(context.Background(), newTryBranchRequest())
	require.NoError(t, err)

	assert.Equal(t, "automation/bot/try/42", tb.Name)
	assert.Equal(t, "basesha", tb.BaseSHA)
	assert.Equal(t, "headsha", tb.HeadSHA)
	assert.Equal(t, "mergesha", tb.SHA)

	assert.Equal(t,
		[]string{"get_branch main", "get_branch feature-x", "delete_ref", "create_ref", "merge"},
		repo.Calls(),
	)

	assert.Equal(t, "refs/heads/automation/bot/try/42", repo.createBody["ref"])
	assert.Equal(t, "basesha", repo.createBody["sha"])

	assert.Equal(t, "automation/bot/try/42", repo.mergeBody["base"])
	assert.Equal(t, "headsha", repo.mergeBody["head"])
	assert.Equal(t, "Try merge into automation/bot/try/42", repo.mergeBody["commit_message"])
}

func TestSynthesizeTryBranchIgnoresDeleteFailure(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	repo := fakeRepo{
		deleteStatus: http.StatusUnprocessableEntity,
		createStatus: http.StatusCreated,
		mergeStatus:  http.StatusCreated,
	}
	clt := newTestClient(t, repo.mux(t))

	_, err := clt.SynthesizeTryBranch(context.Background(), newTryBranchRequest())
	require.NoError(t, err)
	assert.Contains(t, repo.Calls(), "merge")
}

func TestSynthesizeTryBranchCreateFailureSkipsMerge(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	repo := fakeRepo{
		deleteStatus: http.StatusNoContent,
		createStatus: http.StatusForbidden,
		mergeStatus:  http.StatusCreated,
	}
	clt := newTestClient(t, repo.mux(t))

	_, err := clt.SynthesizeTryBranch(context.Background(), newTryBranchRequest())
	require.Error(t, err)
	assert.Equal(t, platformerr.AuthFailure, platformerr.KindOf(err))
	assert.NotContains(t, repo.Calls(), "merge")
}

func TestSynthesizeTryBranchMergeConflict(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	repo := fakeRepo{
		deleteStatus: http.StatusNoContent,
		createStatus: http.StatusCreated,
		mergeStatus:  http.StatusConflict,
	}
	clt := newTestClient(t, repo.mux(t))

	_, err := clt.SynthesizeTryBranch(context.Background(), newTryBranchRequest())
	require.Error(t, err)
	assert.Equal(t, platformerr.MergeConflict, platformerr.KindOf(err))
	assert.False(t, platformerr.IsRetryable(err))
}

func TestSynthesizeTryBranchNothingToMergeUsesBaseSHA(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	repo := fakeRepo{
		deleteStatus: http.StatusNoContent,
		createStatus: http.StatusCreated,
		mergeStatus:  http.StatusNoContent,
	}
	clt := newTestClient(t, repo.mux(t))

	tb, err := clt.SynthesizeTryBranch(context.Background(), newTryBranchRequest())
	require.NoError(t, err)
	assert.Equal(t, "basesha", tb.SHA)
}

func TestSynthesizeTryBranchUsesGivenHeadSHA(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	repo := fakeRepo{
		deleteStatus: http.StatusNoContent,
		createStatus: http.StatusCreated,
		mergeStatus:  http.StatusCreated,
	}
	clt := newTestClient(t, repo.mux(t))

	req := newTryBranchRequest()
	req.HeadBranch = "branch-in-fork"
	req.HeadSHA = "forksha"

	tb, err := clt.SynthesizeTryBranch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "forksha", tb.HeadSHA)
	assert.Equal(t, "forksha", repo.mergeBody["head"])
	assert.NotContains(t, repo.Calls(), "get_branch branch-in-fork")
}
