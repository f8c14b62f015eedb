// Package logger wraps a process-wide zap sugared logger.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar *zap.SugaredLogger
	level = zap.NewAtomicLevel()
	once  sync.Once
)

// Init builds the global logger once. "production" logs JSON at info,
// "test" discards everything, anything else logs to the console at debug.
func Init(env string) {
	once.Do(func() {
		var cfg zap.Config
		switch env {
		case "test":
			sugar = zap.NewNop().Sugar()
			return
		case "production":
			cfg = zap.NewProductionConfig()
			level.SetLevel(zapcore.InfoLevel)
		default:
			cfg = zap.NewDevelopmentConfig()
			level.SetLevel(zapcore.DebugLevel)
		}
		cfg.Level = level

		base, err := cfg.Build()
		if err != nil {
			base = zap.NewNop()
		}
		sugar = base.Sugar()
	})
}

// SetLevel changes the minimum level at runtime, e.g. "warn".
func SetLevel(name string) error {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("unknown log level %q", name)
	}
	level.SetLevel(l)
	return nil
}

// Get returns the global sugared logger, initializing a development
// logger on first use.
func Get() *zap.SugaredLogger {
	Init("development")
	return sugar
}

// Named returns a child logger for one component (budgets, sqlstore...).
func Named(component string) *zap.SugaredLogger {
	return Get().Named(component)
}

// Sync flushes buffered entries.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
