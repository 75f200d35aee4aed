package errors_test

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/agentstation/labsync/pkg/errors"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "notification",
			ID:       "01HZX",
		}
		assert.Equal(t, "notification with ID 01HZX not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("toast", "abc")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := pkgerrors.NewValidationError("bell.max_history", -1, "must be positive")
		assert.Equal(t, "validation failed for field bell.max_history: must be positive", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid settings"}
		assert.Equal(t, "validation failed: invalid settings", err.Error())
	})
}

func TestConnectionError(t *testing.T) {
	err := pkgerrors.NewConnectionError("lab-1", "dial", 2, io.EOF)
	assert.Contains(t, err.Error(), "lab lab-1")
	assert.Contains(t, err.Error(), "attempt 2")
	assert.True(t, pkgerrors.IsTransport(err))
	assert.True(t, errors.Is(err, io.EOF))

	var connErr *pkgerrors.ConnectionError
	require.True(t, errors.As(error(err), &connErr))
	assert.Equal(t, "dial", connErr.Op)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{"unauthorized", http.StatusUnauthorized, pkgerrors.ErrUnauthenticated},
		{"forbidden", http.StatusForbidden, pkgerrors.ErrUnauthenticated},
		{"not found", http.StatusNotFound, pkgerrors.ErrNotFound},
		{"bad gateway", http.StatusBadGateway, pkgerrors.ErrServerUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pkgerrors.NewAPIError("/auth/preferences", tt.status, "nope")
			assert.True(t, errors.Is(err, tt.target))
		})
	}

	err := pkgerrors.NewAPIError("/auth/preferences", http.StatusBadRequest, "bad patch")
	assert.False(t, errors.Is(err, pkgerrors.ErrServerUnavailable))
	assert.Equal(t, "API error from /auth/preferences (status 400): bad patch", err.Error())
}

func TestParseError(t *testing.T) {
	err := pkgerrors.WrapParse("json", "node_state", io.ErrUnexpectedEOF)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsMalformed(err))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, "json parse error in node_state: unexpected EOF", err.Error())
}

func TestWrapHelpersNil(t *testing.T) {
	assert.NoError(t, pkgerrors.WrapIO("read", "/tmp/x", nil))
	assert.NoError(t, pkgerrors.WrapResource("fetch", "preferences", "", nil))
	assert.NoError(t, pkgerrors.WrapParse("yaml", "", nil))
	assert.NoError(t, pkgerrors.WrapValidation("field", nil))
}

func TestResourceError(t *testing.T) {
	err := pkgerrors.WrapResource("patch", "preferences", "", io.EOF)
	assert.Equal(t, "failed to patch preferences: EOF", err.Error())
	assert.True(t, errors.Is(err, io.EOF))
}
