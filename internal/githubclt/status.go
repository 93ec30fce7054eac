package githubclt

import (
	"context"
	"strings"

	"github.com/shurcooL/githubv4"
)

// Aggregated commit status states, as returned by CombinedStatus and
// StatusCheckRollup.
const (
	StatusSuccess = "success"
	StatusPending = "pending"
	StatusFailure = "failure"
	StatusError   = "error"
)

// StatusCheckRollup returns the [status check rollup] state of the commit
// sha.
// In contrast to CombinedStatus, it also considers GitHub check runs.
// The returned state is lowercase and uses the same values as CombinedStatus.
// If no check or status exists for the commit, StatusPending is returned.
//
// [status check rollup]: https://docs.github.com/en/graphql/reference/objects#statuscheckrollup
func (clt *Client) StatusCheckRollup(ctx context.Context, owner, repo, sha string) (string, error) {
	var q struct {
		Repository struct {
			Object struct {
				Commit struct {
					StatusCheckRollup *struct {
						State githubv4.StatusState
					}
				} `graphql:"... on Commit"`
			} `graphql:"object(oid: $oid)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	vars := map[string]any{
		"owner": githubv4.String(owner),
		"name":  githubv4.String(repo),
		"oid":   githubv4.GitObjectID(sha),
	}

	if err := clt.graphQLClt.Query(ctx, &q, vars); err != nil {
		return "", clt.wrapGraphQLErr("get_status_check_rollup", err)
	}

	rollup := q.Repository.Object.Commit.StatusCheckRollup
	if rollup == nil {
		return StatusPending, nil
	}

	return rollupStateToStatus(rollup.State), nil
}

func rollupStateToStatus(state githubv4.StatusState) string {
	switch state {
	case githubv4.StatusStateExpected, githubv4.StatusStatePending:
		return StatusPending
	default:
		return strings.ToLower(string(state))
	}
}
