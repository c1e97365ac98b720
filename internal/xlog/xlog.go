// Package xlog provides the process-wide structured logger.
package xlog

import (
	"os"
	"sync"

	"github.com/petermattis/goid"
	"go.uber.org/zap"
)

var (
	once sync.Once
	l    *zap.Logger
)

func logger() *zap.Logger {
	once.Do(func() {
		var err error
		if os.Getenv("ASYNC_DEBUG") != "" {
			l, err = zap.NewDevelopment()
		} else {
			l, err = zap.NewProduction()
		}
		if err != nil {
			l = zap.NewNop()
		}
	})
	return l
}

// Goroutine tags every log line with the calling goroutine's id, which
// stands in for the OS thread id the original runs one query worker on.
func Goroutine() zap.Field {
	return zap.Int64("goroutine", goid.Get())
}

func Error(msg string, fields ...zap.Field) {
	logger().Error(msg, append(fields, Goroutine())...)
}

func Warn(msg string, fields ...zap.Field) {
	logger().Warn(msg, append(fields, Goroutine())...)
}

func Info(msg string, fields ...zap.Field) {
	logger().Info(msg, append(fields, Goroutine())...)
}

func Debug(msg string, fields ...zap.Field) {
	logger().Debug(msg, append(fields, Goroutine())...)
}

func Sync() error {
	return logger().Sync()
}
