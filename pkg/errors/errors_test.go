package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))
	assert.Nil(t, Wrapf(nil, "ctx %d", 1))
}

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(ErrUnknownTool, "dispatch")
	assert.True(t, errors.Is(err, ErrUnknownTool))
	assert.Equal(t, "dispatch: unknown tool", err.Error())
}

func TestToolExecutionErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := NewToolExecutionError("echo", inner)
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "echo")
}

func TestRecoverable(t *testing.T) {
	assert.True(t, Recoverable(NewToolExecutionError("add", ErrInvalidArg)))
	assert.True(t, Recoverable(Wrap(ErrToolTimeout, "dispatch")))
	assert.True(t, Recoverable(Wrap(ErrUnknownTool, "dispatch")))
	assert.False(t, Recoverable(Wrap(ErrStepLimitExceeded, "session")))
	assert.False(t, Recoverable(Wrap(ErrNoProgress, "session")))
	assert.False(t, Recoverable(Wrap(ErrBackendUnavailable, "llm")))
}
