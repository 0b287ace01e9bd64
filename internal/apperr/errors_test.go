package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByCode(t *testing.T) {
	err := New(CodeInsufficientStock, "not enough").WithDetails(map[string]any{"stock": 1})
	wrapped := fmt.Errorf("create order: %w", err)

	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	assert.False(t, errors.Is(wrapped, ErrProductInactive))
	assert.Equal(t, KindConflict, err.Kind())
	assert.Equal(t, 1, err.Details["stock"])
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(CodeGatewayUnavailable, cause, "gateway unreachable").WithOp("payment.confirm")

	assert.Equal(t, "payment.confirm: gateway unreachable: dial tcp: timeout", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindExternal, err.Kind())
}

func TestAsWrapsForeignErrorsAsInternal(t *testing.T) {
	e := As(errors.New("boom"))
	require.NotNil(t, e)
	assert.Equal(t, CodeInternal, e.Code)
	assert.Equal(t, KindInternal, e.Kind())

	orig := New(CodeOrderNotFound, "")
	assert.Same(t, orig, As(fmt.Errorf("wrap: %w", orig)))
	assert.Nil(t, As(nil))
}

func TestWithDetailsDoesNotShareMaps(t *testing.T) {
	details := map[string]any{"allowed": []string{}}
	err := New(CodeIllegalTransition, "").WithDetails(details)
	details["extra"] = true

	_, ok := err.Details["extra"]
	assert.False(t, ok)
	assert.Equal(t, "illegal_transition", err.Message)
}

func TestOrInternalKeepsTypedErrors(t *testing.T) {
	typed := fmt.Errorf("apply: %w", New(CodeIllegalTransition, "paid -> pending"))
	assert.Same(t, typed, OrInternal("payment.webhook", typed))

	err := OrInternal("payment.webhook", errors.New("disk full"))
	require.ErrorIs(t, err, &Error{Code: CodeInternal})
	assert.Equal(t, "payment.webhook", As(err).Op)

	assert.NoError(t, OrInternal("noop", nil))
}
