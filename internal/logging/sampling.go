package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore gives every configured level below Error its own sampler.
// Error and above, and levels without a sampling entry, pass through.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled || len(cfg.Levels) == 0 {
		return core
	}

	sampled := make(map[zapcore.Level]bool, len(cfg.Levels))
	cores := make([]zapcore.Core, 0, len(cfg.Levels)+1)
	for level, rate := range cfg.Levels {
		if level >= zapcore.ErrorLevel {
			continue
		}
		sampled[level] = true
		only := &levelFilterCore{Core: core, accept: exactly(level)}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick, rate.Initial, rate.Thereafter))
	}

	cores = append(cores, &levelFilterCore{
		Core:   core,
		accept: func(l zapcore.Level) bool { return !sampled[l] },
	})
	return zapcore.NewTee(cores...)
}

func exactly(level zapcore.Level) func(zapcore.Level) bool {
	return func(l zapcore.Level) bool { return l == level }
}

// levelFilterCore only admits entries whose level passes accept.
type levelFilterCore struct {
	zapcore.Core
	accept func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.accept(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.accept(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), accept: c.accept}
}
