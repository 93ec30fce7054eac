package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commentEvent = `{
  "action": "created",
  "comment": {"body": "@bot try", "user": {"login": "alice"}, "author_association": "MEMBER"},
  "repository": {"full_name": "acme/widgets"}
}`

func TestMatch(t *testing.T) {
	tcs := []struct {
		query    string
		expected bool
	}{
		{`.comment.author_association == "MEMBER"`, true},
		{`.comment.author_association == "OWNER"`, false},
		{`.repository.full_name | startswith("acme/")`, true},
		{`.comment.user.login as $l | ["alice", "bob"] | index($l) != null`, true},
		{`true`, true},
	}

	for _, tc := range tcs {
		t.Run(tc.query, func(t *testing.T) {
			f, err := New(tc.query)
			require.NoError(t, err)

			match, err := f.Match(context.Background(), []byte(commentEvent))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, match)
		})
	}
}

func TestMatchFailsOnNonSingleBoolResult(t *testing.T) {
	for _, query := range []string{
		`.comment.body`,
		`empty`,
		`true, false`,
		`error("boom")`,
	} {
		t.Run(query, func(t *testing.T) {
			f, err := New(query)
			require.NoError(t, err)

			_, err = f.Match(context.Background(), []byte(commentEvent))
			assert.Error(t, err)
		})
	}
}

func TestMatchFailsOnInvalidJSON(t *testing.T) {
	f, err := New(`true`)
	require.NoError(t, err)

	_, err = f.Match(context.Background(), nil)
	assert.Error(t, err)

	_, err = f.Match(context.Background(), []byte("{"))
	assert.Error(t, err)
}

func TestNewFailsOnInvalidQuery(t *testing.T) {
	_, err := New(`.comment.body ==`)
	assert.Error(t, err)
}
