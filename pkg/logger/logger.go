package logger

import (
	"go.uber.org/zap"
)

// New returns a sugared logger, human-readable in development,
// JSON in production.
func New(development bool) (*zap.SugaredLogger, error) {
	var l *zap.Logger
	var err error
	if development {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// NewNop is for tests and optional dependencies.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
