package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	cloned := Clone(ErrInvalidTransition, "request already finalized")
	assert.Equal(t, "request already finalized", cloned.Message)
	assert.True(t, stdErrors.Is(cloned, ErrInvalidTransition))
	assert.False(t, stdErrors.Is(cloned, ErrForbidden))
	assert.Equal(t, "request cannot move to the requested status", ErrInvalidTransition.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)

	wrapped := fmt.Errorf("outer: %w", Clone(ErrNotFound, "request not found"))
	assert.Equal(t, ErrNotFound.Code, FromError(wrapped).Code)
	assert.Nil(t, FromError(nil))
}

func TestWithDetailsCopies(t *testing.T) {
	details := map[string]string{"subject": "subject is a required field"}
	appErr := ErrValidation.WithDetails(details)
	details["subject"] = "mutated"

	assert.Equal(t, "subject is a required field", appErr.Details["subject"])
	assert.Nil(t, ErrValidation.Details)
	assert.True(t, stdErrors.Is(appErr, ErrValidation))
}

func TestFromErrorMapsDeadline(t *testing.T) {
	appErr := FromError(fmt.Errorf("query requests: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrUnavailable.Code, appErr.Code)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)
}
