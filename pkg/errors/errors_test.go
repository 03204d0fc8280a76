package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineErrorFormatting(t *testing.T) {
	cause := stderrors.New("context deadline exceeded")

	err := NewTab("ORB 15", "first page did not load", cause)
	assert.Equal(t, "[tab] ORB 15: first page did not load - context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, cause)

	err = NewRecord("", "missing symbol", nil)
	assert.Equal(t, "[record] : missing symbol", err.Error())
}

func TestIsFatal(t *testing.T) {
	assert.True(t, NewFatal("source", "login wait timed out", nil).IsFatal())
	assert.True(t, NewConfiguration("ORB_EMAIL is required", nil).IsFatal())
	assert.False(t, NewPage("ORB 30", "stale wait timed out", nil).IsFatal())
	assert.False(t, NewPersistence("TCS", "insert failed", nil).IsFatal())

	assert.True(t, IsFatal(fmt.Errorf("open source: %w", NewFatal("chrome", "browser did not start", nil))))
	assert.False(t, IsFatal(fmt.Errorf("walk: %w", NewTab("ORB 15", "tab not found", nil))))
	assert.False(t, IsFatal(stderrors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("normalize: %w", NewRecord("INFY", "bad price", nil))
	assert.Equal(t, ErrorTypeRecord, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))

	var pe *PipelineError
	assert.True(t, stderrors.As(wrapped, &pe))
	assert.Equal(t, "INFY", pe.Component)
}
