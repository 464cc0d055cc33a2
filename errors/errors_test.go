package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapFormatsContext(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Client", "Publish", "send message")
	require.Error(t, err)
	assert.Equal(t, "Client.Publish: send message failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "Client", "Publish", "send"))
	assert.NoError(t, WrapTransient(nil, "Client", "Publish", "send"))
	assert.NoError(t, WrapInvalid(nil, "Client", "Publish", "send"))
	assert.NoError(t, WrapFatal(nil, "Client", "Publish", "send"))
}

func TestClassifiedWrappersPreserveClass(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"transient", WrapTransient(base, "C", "M", "a"), ErrorTransient},
		{"invalid", WrapInvalid(base, "C", "M", "a"), ErrorInvalid},
		{"fatal", WrapFatal(base, "C", "M", "a"), ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ce *ClassifiedError
			require.True(t, stderrors.As(tt.err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "C", ce.Component)
			assert.True(t, stderrors.Is(tt.err, base))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrNotConnected))
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(ErrPublishTimeout))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: network is unreachable")))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(WrapInvalid(stderrors.New("bad"), "C", "M", "a")))
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrInvalidName))
	assert.True(t, IsInvalid(ErrMalformedPayload))
	assert.True(t, IsInvalid(fmt.Errorf("reject: %w", ErrInvalidName)))
	assert.False(t, IsInvalid(ErrNotConnected))
	assert.False(t, IsInvalid(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidName))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}
