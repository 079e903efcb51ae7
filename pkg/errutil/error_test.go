package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseErrorWrapsCause(t *testing.T) {
	cause := errors.New("secret missing")
	err := Configuration("webhook secret not configured", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, StatusConfiguration, StatusOf(err))
	require.Equal(t, http.StatusInternalServerError, StatusOf(err).HTTPStatus())
	require.Contains(t, err.Error(), "secret missing")
}

func TestStatusOfWrappedError(t *testing.T) {
	err := fmt.Errorf("verify: %w", BadRequest("invalid signature", nil))

	require.Equal(t, StatusBadRequest, StatusOf(err))
	require.Equal(t, http.StatusBadRequest, StatusOf(err).HTTPStatus())
}

func TestStatusOfPlainError(t *testing.T) {
	require.Equal(t, StatusInternal, StatusOf(errors.New("boom")))
}

func TestBaseErrorJSONIncludesDetails(t *testing.T) {
	err := New(StatusValidationFailed, "bad metadata", WithDetails(Detail{Field: "plan", Message: "unknown"}))

	var base BaseError
	require.True(t, errors.As(err, &base))
	body := base.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, StatusValidationFailed, body["code"])
	require.Len(t, body["details"], 1)
}
