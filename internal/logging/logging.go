// Package logging builds the zap loggers shared by both routers, one per
// long-lived component, each tagged with its component name.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production JSON logger unless debug is set, in which case it
// builds a human-readable development logger with debug level enabled.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	return zap.NewProduction()
}

// Component returns a named child logger, e.g. log.Component("binlogrouter").
func Component(base *zap.Logger, name string) *zap.Logger {
	return base.With(zap.String("component", name))
}

// Session returns a further-scoped logger for one client/slave session.
func Session(base *zap.Logger, id string) *zap.Logger {
	return base.With(zap.String("session", id))
}
