package obslog

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// #region logger

// New builds the process-wide structured logger. verbose switches the
// minimum level from Info to Debug; every reasoning-cycle log line goes
// through the returned logger's Sugar() form so field keys stay uniform
// across the bayes, reasoner and host packages.
func New(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Nop returns a logger that discards everything, for tests and library
// callers that don't want console noise.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// #endregion logger
