// Package logging builds the process logger: zap underneath, logr on top.
package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logr.Logger for level "debug", "info", "warn" or "error".
// "debug" also switches zap to its development encoder. The returned func
// flushes buffered entries.
func New(level string) (logr.Logger, func(), error) {
	var cfg zap.Config
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	switch lvl {
	case "", "info":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return logr.Discard(), func() {}, fmt.Errorf("unknown log level %q", level)
	}
	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, err
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}
