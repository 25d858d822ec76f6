package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorWrapping(t *testing.T) {
	cause := errors.New("field missing")
	verr := NewValidationError("bad message", cause)

	assert.True(t, IsValidation(verr))
	assert.ErrorIs(t, verr, cause)

	wrapped := fmt.Errorf("handling payload: %w", verr)
	assert.True(t, IsValidation(wrapped), "IsValidation sees through wrapping")
}

func TestIsValidationOnPlainErrors(t *testing.T) {
	assert.False(t, IsValidation(errors.New("transient")))
	assert.False(t, IsValidation(nil))
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	wrapped := fmt.Errorf("client abc: %w", ErrNotFound)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrDuplicateEntry)
}
