package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/devtelemetry/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrWriterIO)
	assert.Equal(t, "Dataset write failed", err.Error())

	wrapped := errFactory.Wrap(errors.ErrWriterIO, stderrors.New("no space left on device"))
	assert.Equal(t, "Dataset write failed: no space left on device", wrapped.Error())

	custom := wrapped.WithMessage("append failed")
	assert.Equal(t, "append failed: no space left on device", custom.Error())
	assert.Equal(t, errors.ErrWriterIO, custom.Code())
}

func TestWithData(t *testing.T) {
	err := errors.New().WithData(errors.ErrMalformedField, "cpu_percent")
	assert.Equal(t, "Malformed field: cpu_percent", err.Error())
	assert.Equal(t, "cpu_percent", err.GetData())
}

func TestHasCodeThroughChain(t *testing.T) {
	inner := errors.New().Wrap(errors.ErrWriterIO, stderrors.New("disk full"))
	outer := fmt.Errorf("tick 3: %w", inner)

	assert.True(t, errors.HasCode(outer, errors.ErrWriterIO))
	assert.False(t, errors.HasCode(outer, errors.ErrSensorUnavailable))
	assert.Equal(t, errors.ErrWriterIO, errors.CodeOf(outer))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}

func TestIsFatal(t *testing.T) {
	errFactory := errors.New()

	assert.True(t, errors.IsFatal(errFactory.New(errors.ErrWriterIO)))
	assert.True(t, errors.IsFatal(errFactory.New(errors.ErrConfigInvalid)))
	assert.False(t, errors.IsFatal(errFactory.New(errors.ErrSensorUnavailable)))
	assert.False(t, errors.IsFatal(errFactory.New(errors.ErrMalformedField)))
	assert.False(t, errors.IsFatal(nil))
}
