package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("await: %w", ErrLinkTimeout)
	got := FromError(wrapped)
	assert.Equal(t, http.StatusRequestTimeout, got.Status)
	assert.Equal(t, "REQUEST_TIMEOUT", got.Code)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.EqualError(t, got, "internal server error: disk full")
}

func TestCloneOverridesMessage(t *testing.T) {
	clone := Clone(ErrForbidden, "not staff")
	assert.Equal(t, "not staff", clone.Message)
	assert.Equal(t, "forbidden", ErrForbidden.Message)
	assert.Nil(t, Clone(nil, "x"))
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("permission denied")
	err := Wrap(cause, ErrStorage.Code, ErrStorage.Status, "save submission")
	assert.ErrorIs(t, err, cause)
}

func TestCloneMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("start: %w", Clone(ErrValidation, "invalid link identifier"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, ErrStorage, ErrInternal)
}

func TestRetryable(t *testing.T) {
	for _, status := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		assert.True(t, Retryable(status), status)
	}
	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusRequestEntityTooLarge} {
		assert.False(t, Retryable(status), status)
	}
}
