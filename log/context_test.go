package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, GetLogger(ctx), L) // default logger before any WithLogger
	assert.Equal(t, G(ctx), GetLogger(ctx))

	ctx = WithLogger(ctx, G(ctx).WithField("container.id", "c-one"))
	assert.Equal(t, "c-one", GetLogger(ctx).Data["container.id"])
	assert.Equal(t, G(ctx), GetLogger(ctx))
}

func TestModuleContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetModulePath(ctx))

	ctx = WithModule(ctx, "agent")
	assert.Equal(t, "agent", GetModulePath(ctx))
	assert.Equal(t, "agent", GetLogger(ctx).Data["module"])

	parent, ctx := ctx, WithModule(ctx, "agent")
	assert.Equal(t, ctx, parent) // repeated leaf module is a no-op
	assert.Equal(t, "agent", GetModulePath(ctx))
	assert.Equal(t, "agent", GetLogger(ctx).Data["module"])

	ctx = WithModule(ctx, "inputs")
	assert.Equal(t, "agent/inputs", GetModulePath(ctx))
	assert.Equal(t, "agent/inputs", GetLogger(ctx).Data["module"])

	ctx = WithModule(ctx, "reader")
	assert.Equal(t, "agent/inputs/reader", GetModulePath(ctx))
	assert.Equal(t, "agent/inputs/reader", GetLogger(ctx).Data["module"])
}
