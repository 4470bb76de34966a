package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
)

type signup struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func TestFieldsUsesJSONNames(t *testing.T) {
	err := New().Struct(signup{Email: "not-an-email", Password: "123"})
	require.Error(t, err)

	fields := Fields(err)
	assert.Equal(t, "email must be a valid email address", fields["email"])
	assert.Equal(t, "password must be at least 6 characters in length", fields["password"])
	assert.Equal(t, "email must be a valid email address; password must be at least 6 characters in length", Message(err))
}

func TestFieldsNonValidationError(t *testing.T) {
	assert.Equal(t, map[string]string{"detail": "boom"}, Fields(errors.New("boom")))
	assert.Nil(t, Fields(nil))
	assert.Same(t, New(), New())
}

func TestErrorCarriesFieldDetails(t *testing.T) {
	appErr := Error(New().Struct(signup{Email: "siti@example.edu"}))
	require.NotNil(t, appErr)
	assert.True(t, errors.Is(appErr, appErrors.ErrValidation))
	assert.Equal(t, 400, appErr.Status)
	assert.Equal(t, "password is a required field", appErr.Details["password"])
	assert.Equal(t, "password is a required field", appErr.Message)
}
