package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTraceIDAndGetTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-123")
	assert.Equal(t, "trace-123", GetTraceID(ctx))
}

func TestGetTraceID_AbsentReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", GetTraceID(context.Background()))
}

func TestNewTraceID_IsNonEmptyAndVaries(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
