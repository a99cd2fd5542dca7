package config

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger: console output at debug level in
// development, JSON at info level otherwise.  LOG_LEVEL overrides the level.
func NewLogger(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "dev" || env == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if lvl := envStr("LOG_LEVEL", ""); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, err
		}
		cfg.Level = level
	}
	return cfg.Build()
}
