package engine

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

var nopLogger = zap.NewNop()

// Logger returns the logger used while loading artifacts and running
// program lifecycles. Until SetLogger is called it discards everything.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return nopLogger
}

// SetLogger replaces the logger. A nil l restores the discarding default.
// Programs loaded earlier pick up the new logger on their next log call.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
