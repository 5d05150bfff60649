package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndCodeOf(t *testing.T) {
	err := New(CodeWindowClosed, "too late")
	assert.Equal(t, "window_closed: too late", err.Error())
	assert.Equal(t, CodeWindowClosed, CodeOf(err))
	assert.True(t, HasCode(err, CodeWindowClosed))
	assert.False(t, HasCode(err, CodeNotFound))
}

func TestWrap(t *testing.T) {
	cause := errors.New("row not found")
	err := Wrap(cause, CodeNotFound, "capital call not found")

	assert.True(t, errors.Is(err, cause), "the cause stays reachable")
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Contains(t, err.Error(), "row not found")

	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestHasCodeThroughLayers(t *testing.T) {
	inner := New(CodeZeroSupply, "supply is zero")
	middle := fmt.Errorf("convert: %w", inner)
	outer := Wrap(middle, CodeInternal, "operation failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeZeroSupply), "inner codes remain visible")
	assert.False(t, HasCode(outer, CodeConflict))
}

func TestCodeOfUncodedError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
