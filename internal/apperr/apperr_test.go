package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationErrorMatching(t *testing.T) {
	err := fmt.Errorf("configure: %w", Config("decay_rate", "must be within [0,1], got %v", 1.5))

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.False(t, errors.Is(err, ErrNotFound))

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "decay_rate", cfgErr.Field)
	assert.Contains(t, err.Error(), "1.5")
}

func TestNotFoundError(t *testing.T) {
	err := NotFound("component", "svcA")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, `component "svcA" not found`, err.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Config("x", "bad")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("component", "x")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Invalid("name is required")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
