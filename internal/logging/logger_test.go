package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Underlying())
	assert.NoError(t, logger.Sync())
}

func TestNewLoggerRejectsInvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestContextCorrelation(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithRunID(context.Background(), "run-123")
	ctx = WithUserID(ctx, "user-9")
	tl.Info(ctx, "scoring pair", zap.String("candidate", "user-10"))

	tl.AssertLogged(t, zapcore.InfoLevel, "scoring pair")
	tl.AssertField(t, "scoring pair", "run.id", "run-123")
	tl.AssertField(t, "scoring pair", "user.id", "user-9")
	tl.AssertField(t, "scoring pair", "candidate", "user-10")
}

func TestWithAndNamed(t *testing.T) {
	tl := NewTestLogger()

	child := tl.With(zap.String("component", "cluster"))
	child.Info(context.Background(), "forming groups")

	tl.AssertField(t, "forming groups", "component", "cluster")

	named := tl.Named("advisory")
	named.Info(context.Background(), "scoring")
	found := false
	for _, entry := range tl.All() {
		if entry.LoggerName == "advisory" {
			found = true
		}
	}
	assert.True(t, found, "expected a log from the named logger")
}

func TestTraceOnlyWhenEnabled(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "pair detail")
	tl.AssertLogged(t, TraceLevel, "pair detail")
}

func TestFromContextFallsBackToNop(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	// Nop logger swallows output without panicking.
	logger.Info(context.Background(), "ignored")

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestInvalidIDsPanic(t *testing.T) {
	assert.Panics(t, func() { WithRunID(context.Background(), "") })
	assert.Panics(t, func() { WithUserID(context.Background(), "has spaces") })
	assert.Panics(t, func() { WithRequestID(context.Background(), string(make([]byte, 200))) })
}
