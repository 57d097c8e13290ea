package logging

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/tribed/internal/config"
)

func TestSamplingDisabledPassesCoreThrough(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	wrapped := newSampledCore(core, SamplingConfig{Enabled: false})
	assert.Equal(t, core, wrapped)
}

func TestSamplingDropsRepeatedInfo(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := zap.New(newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels:  DefaultLevelSamplingConfig(),
	}))

	for i := 0; i < 500; i++ {
		logger.Info("repeated message")
	}
	assert.Less(t, observed.FilterMessage("repeated message").Len(), 500)
}

func TestSamplingNeverDropsErrors(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := zap.New(newSampledCore(core, SamplingConfig{
		Enabled: true,
		Tick:    config.Duration(time.Minute),
		Levels:  DefaultLevelSamplingConfig(),
	}))

	for i := 0; i < 200; i++ {
		logger.Error(fmt.Sprintf("error %d", i))
	}
	errs := 0
	for _, e := range observed.All() {
		if e.Level == zapcore.ErrorLevel {
			errs++
		}
	}
	assert.Equal(t, 200, errs)
}
