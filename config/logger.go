package config

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewLogger builds a JSON production logger, or a console logger in development mode.
func NewLogger(l Log) (*zap.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	return cfg.Build()
}

func parseLevel(s string) (zap.AtomicLevel, error) {
	if s == "" {
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	}
	level, err := zap.ParseAtomicLevel(s)
	if err != nil {
		return level, errors.Wrapf(err, "log level %q", s)
	}
	return level, nil
}
