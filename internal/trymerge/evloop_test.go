package trymerge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/trymerger/internal/command"
	"github.com/simplesurance/trymerger/internal/filter"
	"github.com/simplesurance/trymerger/internal/provider"
	"github.com/simplesurance/trymerger/internal/store"
)

type dispatchCall struct {
	Repo     *store.Repository
	PRNumber int
	Command  string
}

type recordingDispatcher struct {
	lock  sync.Mutex
	calls []dispatchCall
}

func (d *recordingDispatcher) Dispatch(_ context.Context, repo *store.Repository, prNumber int, command string) bool {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.calls = append(d.calls, dispatchCall{Repo: repo, PRNumber: prNumber, Command: command})
	return true
}

func (d *recordingDispatcher) Calls() []dispatchCall {
	d.lock.Lock()
	defer d.lock.Unlock()

	return append([]dispatchCall(nil), d.calls...)
}

func commentEvent(body, authorAssociation string) *provider.Event {
	return &provider.Event{
		JSON:       []byte(`{"comment": {"body": "` + body + `", "author_association": "` + authorAssociation + `"}}`),
		Provider:   "github",
		DeliveryID: "123",
		EventType:  "issue_comment",
		Repository: &provider.Repository{
			ID:            repoID,
			Name:          repoName,
			FullName:      repoOwner + "/" + repoName,
			Owner:         repoOwner,
			DefaultBranch: "main",
		},
		PullRequestNr: prNumber,
		CommentBody:   body,
		CommentAuthor: "alice",
	}
}

func runEvents(t *testing.T, evLoop *EvLoop, events ...*provider.Event) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		evLoop.Start()
	}()

	for _, ev := range events {
		evLoop.C() <- ev
	}

	evLoop.Stop()
	<-done
}

func TestEvLoopDispatchesCommands(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	dispatcher := recordingDispatcher{}
	evLoop := NewEventLoop(&dispatcher, command.NewExtractor("bot"))

	runEvents(t, evLoop,
		commentEvent("@bot try", "MEMBER"),
		commentEvent("looks good to me", "MEMBER"),
		commentEvent("@bot TRY-MERGE please", "MEMBER"),
	)

	calls := dispatcher.Calls()
	require.Len(t, calls, 2)

	assert.Equal(t, "try", calls[0].Command)
	assert.Equal(t, prNumber, calls[0].PRNumber)
	assert.Equal(t, newRepo(), calls[0].Repo)

	assert.Equal(t, "try-merge", calls[1].Command)
}

func TestEvLoopIgnoresEventsWithoutPullRequest(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	dispatcher := recordingDispatcher{}
	evLoop := NewEventLoop(&dispatcher, command.NewExtractor("bot"))

	noRepo := commentEvent("@bot try", "MEMBER")
	noRepo.Repository = nil

	noPR := commentEvent("@bot try", "MEMBER")
	noPR.PullRequestNr = 0

	runEvents(t, evLoop, noRepo, noPR)

	assert.Empty(t, dispatcher.Calls())
}

func TestEvLoopAppliesFilter(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	f, err := filter.New(`.comment.author_association == "MEMBER"`)
	require.NoError(t, err)

	dispatcher := recordingDispatcher{}
	evLoop := NewEventLoop(&dispatcher, command.NewExtractor("bot"), WithFilter(f))

	invalidJSON := commentEvent("@bot try", "MEMBER")
	invalidJSON.JSON = []byte("{")

	runEvents(t, evLoop,
		commentEvent("@bot try", "NONE"),
		invalidJSON,
		commentEvent("@bot try", "MEMBER"),
	)

	calls := dispatcher.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "try", calls[0].Command)
}
