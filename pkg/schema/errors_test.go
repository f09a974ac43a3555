package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraphError_Format(t *testing.T) {
	err := NewErrorf(ErrCodePortNotFound, "output %q not declared", "Value")
	assert.Equal(t, `[PORT_NOT_FOUND] output "Value" not declared`, err.Error())

	err.WithNode("five")
	assert.Equal(t, `[PORT_NOT_FOUND] node five: output "Value" not declared`, err.Error())
}

func TestGraphError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "append event").WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, ErrCodeStore))
	assert.False(t, HasCode(err, ErrCodeNotFound))
	assert.False(t, HasCode(cause, ErrCodeStore))
}

func TestNodeState_IsBreak(t *testing.T) {
	assert.True(t, NodeStateBreakStart.IsBreak())
	assert.True(t, NodeStateBreakEnd.IsBreak())
	assert.False(t, NodeStateFreezeByBreak.IsBreak())
	assert.False(t, NodeStateStarted.IsBreak())
}
