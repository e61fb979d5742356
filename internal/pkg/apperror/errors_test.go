package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCauseAndStatus(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeSubscription, "подписка прервана")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.True(t, IsSubscription(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("feed: %w", ErrActorRequired)

	assert.ErrorIs(t, err, ErrActorRequired)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, ErrCodeUnauthorized, CodeOf(err))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err    error
		code   ErrorCode
		status int
	}{
		{ErrInvalidViewScope, ErrCodeInvalidCriteria, http.StatusBadRequest},
		{ErrBeaconUnknown, ErrCodeNotFound, http.StatusNotFound},
		{ErrSnapshotTimeout, ErrCodeSnapshotTimeout, http.StatusGatewayTimeout},
		{ErrCampusRequired, ErrCodeValidation, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
			var appErr *AppError
			if assert.ErrorAs(t, tt.err, &appErr) {
				assert.Equal(t, tt.status, appErr.HTTPStatus)
			}
		})
	}

	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("boom")))
	assert.True(t, IsValidation(ErrInvalidPageSize))
	assert.False(t, IsNotFound(ErrInvalidPageSize))
}
