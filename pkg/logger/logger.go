// pkg/logger/logger.go
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Sugared = *zap.SugaredLogger

// New builds the process logger. LOG_LEVEL (debug|info|warn|error) overrides the env default.
func New(env, service string) Sugared {
	var zc zap.Config
	if env == "prod" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if l, err := zapcore.ParseLevel(lvl); err == nil {
			zc.Level = zap.NewAtomicLevelAt(l)
		}
	}
	z, err := zc.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return z.Sugar().With("service", service)
}
