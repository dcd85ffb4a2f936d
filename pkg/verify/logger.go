package verify

import "go.uber.org/zap"

var log = zap.NewNop()

// SetLogger installs a logger for the package. Defaults to a no-op logger.
func SetLogger(l *zap.Logger) {
	if l != nil {
		log = l
	}
}

// Logger returns the package logger.
func Logger() *zap.Logger {
	return log
}
