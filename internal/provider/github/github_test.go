package github

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/trymerger/internal/provider"
)

const testSecret = "s3cr3t"

const issueCommentPayload = `{
  "action": "created",
  "issue": {
    "number": 42,
    "title": "Add feature x",
    "pull_request": {"url": "https://api.github.com/repos/acme/widgets/pulls/42"}
  },
  "comment": {
    "id": 1,
    "body": "@bot try please",
    "user": {"login": "alice"}
  },
  "repository": {
    "id": 1296269,
    "name": "widgets",
    "full_name": "acme/widgets",
    "default_branch": "main",
    "owner": {"login": "acme"}
  }
}`

const issueCommentOnIssuePayload = `{
  "action": "created",
  "issue": {"number": 7},
  "comment": {"id": 1, "body": "@bot try", "user": {"login": "alice"}},
  "repository": {"id": 1, "name": "widgets", "full_name": "acme/widgets", "owner": {"login": "acme"}}
}`

const issueCommentEditedPayload = `{
  "action": "edited",
  "issue": {"number": 42, "pull_request": {"url": "x"}},
  "comment": {"id": 1, "body": "@bot try", "user": {"login": "alice"}},
  "repository": {"id": 1, "name": "widgets", "full_name": "acme/widgets", "owner": {"login": "acme"}}
}`

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newWebhookReq(eventType, payload, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/listener/github", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "3355fab0-b22c-11eb-9936-51d9540c0cdc")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}

	return req
}

func TestHTTPHandlerIssueCommentOnPullRequest(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event, 1)
	p := New(evChan, WithPayloadSecret(testSecret))

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq(
		"issue_comment", issueCommentPayload, sign([]byte(issueCommentPayload), testSecret),
	))
	require.Equal(t, http.StatusOK, respRecorder.Code)

	require.Len(t, evChan, 1)
	event := <-evChan

	assert.Equal(t, issueCommentPayload, string(event.JSON))
	assert.Equal(t, "github", event.Provider)
	assert.Equal(t, "issue_comment", event.EventType)
	assert.Equal(t, "3355fab0-b22c-11eb-9936-51d9540c0cdc", event.DeliveryID)
	assert.Equal(t, 42, event.PullRequestNr)
	assert.Equal(t, "@bot try please", event.CommentBody)
	assert.Equal(t, "alice", event.CommentAuthor)

	require.NotNil(t, event.Repository)
	assert.Equal(t, &provider.Repository{
		ID:            1296269,
		Name:          "widgets",
		FullName:      "acme/widgets",
		Owner:         "acme",
		DefaultBranch: "main",
	}, event.Repository)
}

func TestHTTPHandlerRejectsInvalidSignature(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event, 1)
	p := New(evChan, WithPayloadSecret(testSecret))

	for name, signature := range map[string]string{
		"wrong_secret": sign([]byte(issueCommentPayload), "other"),
		"missing":      "",
	} {
		t.Run(name, func(t *testing.T) {
			respRecorder := httptest.NewRecorder()
			p.HTTPHandler(respRecorder, newWebhookReq("issue_comment", issueCommentPayload, signature))
			assert.Equal(t, http.StatusBadRequest, respRecorder.Code)
			assert.Empty(t, evChan)
		})
	}
}

func TestHTTPHandlerIgnoresUnrelatedEvents(t *testing.T) {
	tcs := []struct {
		name      string
		eventType string
		payload   string
	}{
		{"comment_on_issue", "issue_comment", issueCommentOnIssuePayload},
		{"edited_comment", "issue_comment", issueCommentEditedPayload},
		{"ping", "ping", `{"zen": "Keep it logically awesome."}`},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

			evChan := make(chan *provider.Event, 1)
			p := New(evChan, WithPayloadSecret(testSecret))

			respRecorder := httptest.NewRecorder()
			p.HTTPHandler(respRecorder, newWebhookReq(tc.eventType, tc.payload, sign([]byte(tc.payload), testSecret)))
			assert.Equal(t, http.StatusOK, respRecorder.Code)
			assert.Empty(t, evChan)
		})
	}
}

func TestHTTPHandlerFullChannel(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	evChan := make(chan *provider.Event)
	p := New(evChan, WithPayloadSecret(testSecret))

	respRecorder := httptest.NewRecorder()
	p.HTTPHandler(respRecorder, newWebhookReq(
		"issue_comment", issueCommentPayload, sign([]byte(issueCommentPayload), testSecret),
	))
	assert.Equal(t, http.StatusServiceUnavailable, respRecorder.Code)
}
