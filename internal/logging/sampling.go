package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with level-aware sampling. Trace through warn
// share one sampler driven by the info-level rates; error and above
// always pass through.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	rates := cfg.Levels[zapcore.InfoLevel]
	sampled := zapcore.NewSamplerWithOptions(
		newBandCore(core, TraceLevel, zapcore.WarnLevel),
		cfg.Tick.Duration(),
		rates.Initial,
		rates.Thereafter,
	)

	return zapcore.NewTee(newBandCore(core, zapcore.ErrorLevel, zapcore.FatalLevel), sampled)
}

// bandCore restricts a core to an inclusive level band.
type bandCore struct {
	zapcore.Core
	min zapcore.Level
	max zapcore.Level
}

func newBandCore(core zapcore.Core, min, max zapcore.Level) *bandCore {
	return &bandCore{Core: core, min: min, max: max}
}

func (c *bandCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *bandCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

// With keeps the band on child cores.
func (c *bandCore) With(fields []zapcore.Field) zapcore.Core {
	return &bandCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
