package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "marketplace/internal/core/context"
	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
)

func TestFromContext_AddsTraceAndActor(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := &Logger{zap.New(core).Sugar()}

	actor := security.Actor{ID: id.New(), Role: security.RoleVendor}
	ctx := appctx.WithTrace(context.Background(), &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})
	ctx = appctx.WithActor(ctx, actor)
	ctx = WithLogger(ctx, base)

	Info(ctx, "item status changed", "item_id", "i-1")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "r-1", fields["request_id"])
	assert.Equal(t, actor.ID.String(), fields["user_id"])
	assert.Equal(t, "vendor", fields["role"])
	assert.Equal(t, "i-1", fields["item_id"])
}

func TestFromContext_NoValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := WithLogger(context.Background(), &Logger{zap.New(core).Sugar()})

	Warn(ctx, "broadcast dropped")

	require.Equal(t, 1, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "user_id")
}
