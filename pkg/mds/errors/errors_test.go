package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesCode(t *testing.T) {
	t.Parallel()

	err := NewCloseConflictError(7, "binding changed")
	wrapped := fmt.Errorf("close /file-2: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrCloseConflict))
	assert.True(t, stderrors.Is(wrapped, &MDSError{Code: ErrCloseConflict}))
	assert.False(t, stderrors.Is(wrapped, ErrAlreadyLeased))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `AlreadyLeased: lease held by "client-1" (file: 3)`, NewAlreadyLeasedError(3, "client-1").Error())
	assert.Equal(t, "InvalidArgument: bad", NewInvalidArgumentError(0, "bad").Error())
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrNoViableReplica, CodeOf(fmt.Errorf("x: %w", NewNoViableReplicaError(1, 2))))
	assert.Equal(t, ErrNotFound, CodeOf(ErrNotFound))
	assert.Equal(t, ErrorCode(0), CodeOf(stderrors.New("plain")))
	assert.Equal(t, ErrorCode(0), CodeOf(nil))
}

func TestParseCodeRoundTrip(t *testing.T) {
	t.Parallel()

	for c := ErrAlreadyLeased; c <= ErrUnrecoverable; c++ {
		assert.Equal(t, c, ParseCode(c.String()))
	}
	assert.Equal(t, ErrorCode(0), ParseCode("Bogus"))
	assert.Equal(t, "Unknown(99)", ErrorCode(99).String())
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, IsConflict(NewAlreadyLeasedError(1, "a")))
	assert.False(t, IsConflict(NewNotFoundError(1, "file")))
	assert.True(t, IsNotFound(NewNotFoundError(1, "file")))
}
