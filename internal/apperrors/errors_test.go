package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusError(t *testing.T) {
	err := fmt.Errorf("login: %w", NewStatusError("login", http.StatusUnauthorized, ErrAuthRejected))

	require.ErrorIs(t, err, ErrAuthRejected, "status error must unwrap to sentinel")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "login: status 401: authentication rejected", statusErr.Error())
}

func TestFormError(t *testing.T) {
	t.Run("single field", func(t *testing.T) {
		err := NewFormError(ErrEmailTaken, "email", "Email already exists")

		require.ErrorIs(t, err, ErrEmailTaken)
		assert.Equal(t, "email already exists (email: Email already exists)", err.Error())
	})

	t.Run("fields sorted in message", func(t *testing.T) {
		err := &FormError{
			Fields: map[string]string{"password": "too short", "email": "invalid"},
			Err:    ErrInvalidForm,
		}

		assert.Equal(t, "invalid form (email: invalid; password: too short)", err.Error())
	})

	t.Run("no fields", func(t *testing.T) {
		err := &FormError{Err: ErrAuthRejected}

		assert.Equal(t, "authentication rejected", err.Error())
	})
}
