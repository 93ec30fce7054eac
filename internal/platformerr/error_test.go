package platformerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("creating branch failed: %w", New(NotFound, "create_ref", http.StatusNotFound, errors.New("404")))

	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
}

func TestRetryable(t *testing.T) {
	testcases := []struct {
		kind      Kind
		status    int
		retryable bool
	}{
		{kind: Transport, retryable: true},
		{kind: RateLimited, status: http.StatusForbidden, retryable: true},
		{kind: Unknown, status: http.StatusBadGateway, retryable: true},
		{kind: Unknown, status: http.StatusUnprocessableEntity, retryable: false},
		{kind: AuthFailure, status: http.StatusUnauthorized, retryable: false},
		{kind: NotFound, status: http.StatusNotFound, retryable: false},
		{kind: MergeConflict, status: http.StatusConflict, retryable: false},
		{kind: MalformedResponse, retryable: false},
		{kind: Timeout, retryable: false},
	}

	for _, tc := range testcases {
		t.Run(fmt.Sprintf("%s_%d", tc.kind, tc.status), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", New(tc.kind, "op", tc.status, errors.New("err")))
			assert.Equal(t, tc.retryable, IsRetryable(err))
		})
	}
}

func TestKindFromStatusCode(t *testing.T) {
	assert.Equal(t, AuthFailure, KindFromStatusCode(http.StatusUnauthorized))
	assert.Equal(t, AuthFailure, KindFromStatusCode(http.StatusForbidden))
	assert.Equal(t, NotFound, KindFromStatusCode(http.StatusNotFound))
	assert.Equal(t, MergeConflict, KindFromStatusCode(http.StatusConflict))
	assert.Equal(t, Unknown, KindFromStatusCode(http.StatusInternalServerError))
}

func TestErrorStringContainsStatus(t *testing.T) {
	err := New(AuthFailure, "merge", http.StatusForbidden, errors.New("denied"))
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "auth_failure")
	assert.Contains(t, err.Error(), "merge")
}
