// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/platformerr"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// New returns a new github api client for github.com.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

// NewEnterprise returns a new github api client for a GitHub Enterprise
// Server installation.
// baseURL is the URL of the REST API, e.g. https://ghe.example.com/api/v3/.
func NewEnterprise(baseURL, oauthAPItoken string) (*Client, error) {
	httpClient := newHTTPClient(oauthAPItoken)

	restClt, err := github.NewClient(httpClient).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid github api url: %w", err)
	}

	graphQLURL := strings.TrimSuffix(restClt.BaseURL.String(), "/")
	graphQLURL = strings.TrimSuffix(graphQLURL, "/v3") + "/graphql"

	return &Client{
		restClt:    restClt,
		graphQLClt: githubv4.NewEnterpriseClient(graphQLURL, httpClient),
		logger:     zap.L().Named(loggerName),
	}, nil
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All methods return errors wrapping a *platformerr.Error that describes the
// kind of the failure.
// Methods do not retry failed operations.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// PullRequest is a snapshot of a GitHub pull request.
type PullRequest struct {
	ID     int64
	Number int
	Title  string
	State  string
	// Mergeable is nil when GitHub did not compute the mergeability yet.
	Mergeable *bool

	HeadBranch       string
	HeadSHA          string
	// HeadRepoID is 0 when the repository of the head branch was deleted.
	HeadRepoID       int64
	HeadRepoFullName string
	BaseBranch       string
}

// IsClosed returns true if the pull request is closed or merged.
func (p *PullRequest) IsClosed() bool {
	return p.State == "closed"
}

// IsFromFork returns true if the head branch of the pull request does not
// belong to the repository with the ID baseRepoID.
// A pull request whose head repository was deleted is also considered to be
// from a fork, its head branch can not be resolved by name.
func (p *PullRequest) IsFromFork(baseRepoID int64) bool {
	return p.HeadRepoID == 0 || p.HeadRepoID != baseRepoID
}

// FetchPullRequest retrieves the current state of a pull request.
func (clt *Client) FetchPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	pr, _, err := clt.restClt.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, clt.wrapErr("get_pull_request", err)
	}

	head := pr.GetHead()
	if head == nil || head.GetRef() == "" {
		return nil, platformerr.New(
			platformerr.MalformedResponse, "get_pull_request", 0,
			errors.New("got pull request object with empty head ref"),
		)
	}

	base := pr.GetBase()
	if base == nil || base.GetRef() == "" {
		return nil, platformerr.New(
			platformerr.MalformedResponse, "get_pull_request", 0,
			errors.New("got pull request object with empty base ref"),
		)
	}

	return &PullRequest{
		ID:               pr.GetID(),
		Number:           pr.GetNumber(),
		Title:            pr.GetTitle(),
		State:            pr.GetState(),
		Mergeable:        pr.Mergeable,
		HeadBranch:       head.GetRef(),
		HeadSHA:          head.GetSHA(),
		HeadRepoID:       head.GetRepo().GetID(),
		HeadRepoFullName: head.GetRepo().GetFullName(),
		BaseBranch:       base.GetRef(),
	}, nil
}

// BranchHead returns the commit id of the head of a branch.
func (clt *Client) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	br, _, err := clt.restClt.Repositories.GetBranch(ctx, owner, repo, branch, 1)
	if err != nil {
		return "", clt.wrapErr("get_branch", err)
	}

	sha := br.GetCommit().GetSHA()
	if sha == "" {
		return "", platformerr.New(
			platformerr.MalformedResponse, "get_branch", 0,
			fmt.Errorf("no commit sha found for branch %s", branch),
		)
	}

	return sha, nil
}

// DeleteBranch deletes a branch.
func (clt *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	_, err := clt.restClt.Git.DeleteRef(ctx, owner, repo, "refs/heads/"+branch)
	return clt.wrapErr("delete_ref", err)
}

// CreateBranch creates a branch pointing to the commit sha.
func (clt *Client) CreateBranch(ctx context.Context, owner, repo, branch, sha string) error {
	_, _, err := clt.restClt.Git.CreateRef(ctx, owner, repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(sha)},
	})
	return clt.wrapErr("create_ref", err)
}

// MergeIntoBranch merges the commit headSHA into branch.
// It returns the commit id of the created merge commit. If branch already
// contains headSHA, no commit is created and an empty string is returned.
// If the merge is not possible because of conflicting changes, an error of
// kind platformerr.MergeConflict is returned.
func (clt *Client) MergeIntoBranch(ctx context.Context, owner, repo, branch, headSHA, commitMsg string) (string, error) {
	commit, _, err := clt.restClt.Repositories.Merge(ctx, owner, repo, &github.RepositoryMergeRequest{
		Base:          github.String(branch),
		Head:          github.String(headSHA),
		CommitMessage: github.String(commitMsg),
	})
	if err != nil {
		return "", clt.wrapErr("merge", err)
	}

	return commit.GetSHA(), nil
}

// CombinedStatus returns the combined commit status state of ref.
// The state is one of "success", "pending", "failure" or "error".
func (clt *Client) CombinedStatus(ctx context.Context, owner, repo, ref string) (string, error) {
	status, _, err := clt.restClt.Repositories.GetCombinedStatus(ctx, owner, repo, ref, nil)
	if err != nil {
		return "", clt.wrapErr("get_combined_status", err)
	}

	if status.State == nil {
		return "", platformerr.New(
			platformerr.MalformedResponse, "get_combined_status", 0,
			errors.New("combined status has no state field"),
		)
	}

	return status.GetState(), nil
}

// CreateIssueComment creates a comment in a issue or pull request
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	_, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	return clt.wrapErr("create_issue_comment", err)
}

func (clt *Client) wrapErr(operation string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return platformerr.New(platformerr.Timeout, operation, 0, err)
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.String("operation", operation),
			zap.Int("github_api_rate_limit", rateLimitErr.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", rateLimitErr.Rate.Reset.Time),
		)

		perr := platformerr.New(platformerr.RateLimited, operation, responseStatusCode(rateLimitErr.Response), err)
		perr.RetryAfter = rateLimitErr.Rate.Reset.Time
		return perr
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		perr := platformerr.New(platformerr.RateLimited, operation, responseStatusCode(abuseErr.Response), err)
		if d := abuseErr.GetRetryAfter(); d > 0 {
			perr.RetryAfter = time.Now().Add(d)
		}
		return perr
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		code := responseStatusCode(respErr.Response)
		return platformerr.New(platformerr.KindFromStatusCode(code), operation, code, err)
	}

	if isJSONDecodeErr(err) {
		return platformerr.New(platformerr.MalformedResponse, operation, 0, err)
	}

	if errors.Is(err, context.Canceled) {
		return platformerr.New(platformerr.Unknown, operation, 0, err)
	}

	return platformerr.New(platformerr.Transport, operation, 0, err)
}

func responseStatusCode(resp *http.Response) int {
	if resp == nil {
		return 0
	}

	return resp.StatusCode
}
